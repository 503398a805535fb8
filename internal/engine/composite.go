package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

// The composite plan entity: one characterization parent record plus at
// most one record per satellite table, each keyed back to the parent.
const (
	ParentTable     = "characterization"
	ParentKeyColumn = "characterization_id"
)

// SatelliteTables lists the satellite facets of a plan in workflow order.
var SatelliteTables = []string{
	"diagnostic",
	"formulation",
	"execution",
	"validations",
	"exit_survey",
}

// trainingChecklistItems is the fixed checklist evaluated for training
// progress. Shipped with the component, deliberately not derived from the
// schema: the checklist is a business definition, not a table shape.
var trainingChecklistItems = []string{
	"training_business_model",
	"training_finances",
	"training_marketing",
	"training_formalization",
	"training_environment",
	"training_soft_skills",
}

// availableBudgetAmount is the fixed funding amount compared against a
// plan's budgeted total to derive the counterpart requirement.
const availableBudgetAmount = 200000.0

// budgetLinesTable holds the execution satellite's budget lines.
const budgetLinesTable = "execution_budget"

// IsSatellite reports whether the name is a known satellite table.
func IsSatellite(name string) bool {
	for _, s := range SatelliteTables {
		if s == name {
			return true
		}
	}
	return false
}

// GetOrCreateSatellite returns the satellite record for (parent, table),
// creating it with the seed fields merged with the parent reference when
// no row exists yet. At most one satellite row per parent per table is a
// data-integrity precondition; with multiple rows the first is used.
// Idempotent: a second call with no intervening delete returns the same
// record id.
func GetOrCreateSatellite(ctx context.Context, s *store.Store, reg *metadata.Registry, parentID, satellite string, seed Record, user *metadata.UserContext) (Record, error) {
	if !IsSatellite(satellite) {
		return nil, SchemaFetchError(satellite)
	}
	td, err := reg.Descriptor(ctx, s.Pool, satellite)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s::text = $1", td.Table, ParentKeyColumn)
	rows, err := store.QueryRows(ctx, s.Pool, sql, parentID)
	if err != nil {
		return nil, fmt.Errorf("query satellite %s for parent %s: %w", satellite, parentID, err)
	}
	if len(rows) > 0 {
		return Record(rows[0]), nil
	}

	fields := make(Record, len(seed)+1)
	for k, v := range seed {
		fields[k] = v
	}
	fields[ParentKeyColumn] = parentID

	record, err := CreateRecord(ctx, s, td, fields, user)
	if err != nil {
		return nil, mutationError(satellite, parentID, err)
	}
	return record, nil
}

// ChecklistProgress computes training progress over the fixed checklist:
// items marked true divided by the total item count, as an integer
// percentage. Marked values are read with the same lenient coercion as
// compliance verdicts.
func ChecklistProgress(record Record) int {
	if len(trainingChecklistItems) == 0 {
		return 0
	}
	marked := 0
	for _, item := range trainingChecklistItems {
		if NormalizeVerdict(record[item]) == VerdictCompliant {
			marked++
		}
	}
	return int(math.Round(float64(marked) / float64(len(trainingChecklistItems)) * 100))
}

// CategoryTotal is one budget category's aggregated amount.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// BudgetSummary aggregates a plan's budget lines: per-category totals, the
// grand total, and the counterpart funding required beyond the available
// amount (clamped to zero).
type BudgetSummary struct {
	Categories  []CategoryTotal `json:"categories"`
	GrandTotal  float64         `json:"grand_total"`
	Available   float64         `json:"available"`
	Counterpart float64         `json:"counterpart"`
}

// ComputeBudget aggregates budget lines in memory: for every line,
// quantity × unit price, grouped by category. Category order follows first
// appearance in the input.
func ComputeBudget(lines []Record) BudgetSummary {
	summary := BudgetSummary{Available: availableBudgetAmount}
	index := make(map[string]int)

	for _, line := range lines {
		category := stringifyValue(line["category"])
		amount := toNumber(line["quantity"]) * toNumber(line["unit_price"])

		i, ok := index[category]
		if !ok {
			i = len(summary.Categories)
			index[category] = i
			summary.Categories = append(summary.Categories, CategoryTotal{Category: category})
		}
		summary.Categories[i].Total += amount
		summary.GrandTotal += amount
	}

	if summary.GrandTotal > summary.Available {
		summary.Counterpart = summary.GrandTotal - summary.Available
	}
	return summary
}

func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		var f float64
		fmt.Sscanf(fmt.Sprintf("%v", v), "%f", &f)
		return f
	}
}

// LoadBudgetSummary fetches the plan's budget lines and aggregates them.
func LoadBudgetSummary(ctx context.Context, q store.Querier, parentID string) (BudgetSummary, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s::text = $1", budgetLinesTable, ParentKeyColumn)
	rows, err := store.QueryRows(ctx, q, sql, parentID)
	if err != nil {
		return BudgetSummary{}, fmt.Errorf("load budget lines for %s: %w", parentID, err)
	}
	lines := make([]Record, len(rows))
	for i, row := range rows {
		lines[i] = Record(row)
	}
	return ComputeBudget(lines), nil
}

// SatelliteStatus is one facet's standing within the composite plan.
type SatelliteStatus struct {
	Table      string `json:"table"`
	Exists     bool   `json:"exists"`
	RecordID   string `json:"record_id,omitempty"`
	Completion int    `json:"completion"`
}

// PlanOverview reports, per satellite, whether the facet exists and how
// complete it is. Read-side only.
func PlanOverview(ctx context.Context, s *store.Store, reg *metadata.Registry, parentID string) ([]SatelliteStatus, error) {
	statuses := make([]SatelliteStatus, len(SatelliteTables))

	g, gctx := errgroup.WithContext(ctx)
	for i, satellite := range SatelliteTables {
		g.Go(func() error {
			td, err := reg.Descriptor(gctx, s.Pool, satellite)
			if err != nil {
				return err
			}
			sql := fmt.Sprintf("SELECT * FROM %s WHERE %s::text = $1", td.Table, ParentKeyColumn)
			rows, err := store.QueryRows(gctx, s.Pool, sql, parentID)
			if err != nil {
				return err
			}
			status := SatelliteStatus{Table: satellite}
			if len(rows) > 0 {
				record := Record(rows[0])
				status.Exists = true
				status.RecordID = metadata.NormalizeID(record[td.IdentityColumn()])
				status.Completion = ComputeCompletion(record, td)
			}
			statuses[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("plan overview for %s: %w", parentID, err)
	}
	return statuses, nil
}

// MergedHistory aggregates the audit trails of the parent record and every
// existing satellite record, newest first. Per-satellite fetches run
// concurrently but the merge waits for all of them: a failure on any fetch
// fails the aggregate rather than presenting partial history as complete.
func MergedHistory(ctx context.Context, s *store.Store, reg *metadata.Registry, parentID string) ([]HistoryEntry, error) {
	var mu sync.Mutex
	var merged []HistoryEntry

	appendEntries := func(entries []HistoryEntry) {
		mu.Lock()
		merged = append(merged, entries...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := LoadHistory(gctx, s.Pool, ParentTable, parentID)
		if err != nil {
			return err
		}
		appendEntries(entries)
		return nil
	})

	for _, satellite := range SatelliteTables {
		g.Go(func() error {
			td, err := reg.Descriptor(gctx, s.Pool, satellite)
			if err != nil {
				return err
			}
			sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s::text = $1",
				td.IdentityColumn(), td.Table, ParentKeyColumn)
			rows, err := store.QueryRows(gctx, s.Pool, sql, parentID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			recordID := metadata.NormalizeID(rows[0][td.IdentityColumn()])
			entries, err := LoadHistory(gctx, s.Pool, satellite, recordID)
			if err != nil {
				return err
			}
			appendEntries(entries)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("merged history for %s: %w", parentID, err)
	}

	sortHistoryDesc(merged)
	if merged == nil {
		merged = []HistoryEntry{}
	}
	return merged, nil
}
