package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

// FieldChange is one before/after cell difference captured by a save.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// fetchRecord loads one row by identity. Id comparison is string-based:
// ids arrive as numbers or strings depending on the caller.
func fetchRecord(ctx context.Context, q store.Querier, td *metadata.TableDescriptor, id string) (Record, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s::text = $1", td.Table, td.IdentityColumn())
	return store.QueryRow(ctx, q, sql, id)
}

// fetchAllRecords loads the full record set sorted ascending by numeric
// identity, the load-time ordering every collection view starts from.
func fetchAllRecords(ctx context.Context, q store.Querier, td *metadata.TableDescriptor) ([]Record, error) {
	sql := fmt.Sprintf("SELECT * FROM %s", td.Table)
	rows, err := store.QueryRows(ctx, q, sql)
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record(row)
	}
	SortByNumericID(records, td.IdentityColumn())
	return records, nil
}

// restrictPatch drops everything that is not an editable column. The
// status column never passes through here; status changes have their own
// mutation path.
func restrictPatch(td *metadata.TableDescriptor, patch Record) Record {
	editable := make(map[string]bool)
	for _, c := range td.EditableColumns() {
		editable[c.Name] = true
	}
	out := make(Record, len(patch))
	for k, v := range patch {
		if editable[k] {
			out[k] = v
		}
	}
	return out
}

// DiffRecord captures per-field before/after changes over the editable
// projection. Pure; values compare by their normalized string form.
func DiffRecord(before, after Record, editable []metadata.ColumnDescriptor) []FieldChange {
	var changes []FieldChange
	for _, col := range editable {
		newVal, present := after[col.Name]
		if !present {
			continue
		}
		oldStr := stringifyValue(before[col.Name])
		newStr := stringifyValue(newVal)
		if oldStr != newStr {
			changes = append(changes, FieldChange{Field: col.Name, Old: oldStr, New: newStr})
		}
	}
	return changes
}

func stringifyValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// SaveRecord applies a partial field patch to one record and appends one
// UPDATE history entry per changed field, in a single transaction.
func SaveRecord(ctx context.Context, s *store.Store, td *metadata.TableDescriptor, id string, patch Record, user *metadata.UserContext) (Record, error) {
	patch = restrictPatch(td, patch)
	if len(patch) == 0 {
		return nil, FieldValidationError("", "required", "No editable fields in patch")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	before, err := fetchRecord(ctx, tx, td, id)
	if err != nil {
		return nil, err
	}

	sql, params := buildUpdateSQL(td, id, patch)
	after, err := store.QueryRow(ctx, tx, sql, params...)
	if err != nil {
		return nil, err
	}

	for _, change := range DiffRecord(before, after, td.EditableColumns()) {
		entry := historyActor(HistoryEntry{
			Table:      td.Table,
			RecordID:   id,
			ChangeKind: ChangeUpdate,
			FieldName:  change.Field,
			OldValue:   change.Old,
			NewValue:   change.New,
		}, user)
		if err := appendHistory(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}

// CreateRecord inserts a new record and appends a CREATE history entry.
// Used by both the authenticated path and the public intake form (user nil).
func CreateRecord(ctx context.Context, s *store.Store, td *metadata.TableDescriptor, fields Record, user *metadata.UserContext) (Record, error) {
	fields = restrictPatch(td, fields)

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sql, params := buildInsertSQL(td, fields)
	record, err := store.QueryRow(ctx, tx, sql, params...)
	if err != nil {
		return nil, err
	}

	newID := metadata.NormalizeID(record[td.IdentityColumn()])
	entry := historyActor(HistoryEntry{
		Table:      td.Table,
		RecordID:   newID,
		ChangeKind: ChangeCreate,
	}, user)
	if err := appendHistory(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return record, nil
}

// ChangeStatus is the dedicated status mutation path. Status never moves
// through the generic field patch, so the STATUS_CHANGE audit entry is
// always produced. Any status value from the field's option set is
// reachable from any other.
func ChangeStatus(ctx context.Context, s *store.Store, td *metadata.TableDescriptor, id, newStatus string, user *metadata.UserContext) (Record, error) {
	if !td.HasStatus {
		return nil, FieldValidationError(metadata.StatusColumn, "unsupported", fmt.Sprintf("Table %s has no status column", td.Table))
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	before, err := fetchRecord(ctx, tx, td, id)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s::text = $2 RETURNING *",
		td.Table, metadata.StatusColumn, td.IdentityColumn())
	after, err := store.QueryRow(ctx, tx, sql, newStatus, id)
	if err != nil {
		return nil, err
	}

	entry := historyActor(HistoryEntry{
		Table:      td.Table,
		RecordID:   id,
		ChangeKind: ChangeStatusKind,
		FieldName:  metadata.StatusColumn,
		OldValue:   stringifyValue(before[metadata.StatusColumn]),
		NewValue:   newStatus,
	}, user)
	if err := appendHistory(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}

// ComputeCompletion returns the percentage of editable fields holding a
// non-empty value, rounded to the nearest integer. Read-side derived
// statistic, never persisted.
func ComputeCompletion(record Record, td *metadata.TableDescriptor) int {
	editable := td.EditableColumns()
	if len(editable) == 0 {
		return 0
	}
	filled := 0
	for _, col := range editable {
		if !isEmptyValue(record[col.Name]) {
			filled++
		}
	}
	return int(math.Round(float64(filled) / float64(len(editable)) * 100))
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

func buildUpdateSQL(td *metadata.TableDescriptor, id string, patch Record) (string, []any) {
	var sets []string
	var params []any
	n := 0
	// Walk the descriptor for deterministic column order.
	for _, col := range td.EditableColumns() {
		v, ok := patch[col.Name]
		if !ok {
			continue
		}
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", col.Name, n))
		params = append(params, v)
	}
	params = append(params, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s::text = $%d RETURNING *",
		td.Table, strings.Join(sets, ", "), td.IdentityColumn(), n+1)
	return sql, params
}

func buildInsertSQL(td *metadata.TableDescriptor, fields Record) (string, []any) {
	var cols, placeholders []string
	var params []any
	n := 0
	for _, col := range td.EditableColumns() {
		v, ok := fields[col.Name]
		if !ok {
			continue
		}
		n++
		cols = append(cols, col.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", n))
		params = append(params, v)
	}
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", td.Table), nil
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		td.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return sql, params
}

// mutationError maps store sentinels onto the client-facing taxonomy.
func mutationError(table, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(table, id)
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError("A record with this value already exists")
	}
	if errors.Is(err, store.ErrUndefinedTable) {
		return SchemaFetchError(table)
	}
	return err
}
