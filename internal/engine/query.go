package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"planadmin-backend/internal/metadata"
)

// Record is a dynamic row: column name to scalar value.
type Record = map[string]any

// PageSize is the fixed collection page size.
const PageSize = 25

// AttributeFilter matches records whose column equals (string-compared)
// the filter value.
type AttributeFilter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// QueryOptions is one collection view request: free-text search across the
// visible columns, exact attribute filters, and the requested page.
type QueryOptions struct {
	VisibleColumns []string
	SearchText     string
	Filters        []AttributeFilter
	Page           int
}

// QueryResult is a filtered, paginated view over a record set.
type QueryResult struct {
	Records    []Record `json:"records"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
}

// SortByNumericID sorts records ascending by the numeric parse of their
// identity column, in place, stably. Unparsable ids parse as NaN and sort
// after every parsable id; NaN cannot feed `<` directly or the comparator
// loses strict weak ordering and parsable ids drift out of order.
func SortByNumericID(records []Record, idColumn string) {
	sort.SliceStable(records, func(i, j int) bool {
		a := numericID(records[i][idColumn])
		b := numericID(records[j][idColumn])
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a < b
	})
}

func numericID(v any) float64 {
	s := metadata.NormalizeID(v)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// displayValue resolves one cell to the string a reader would see:
// foreign keys go through the related index, everything else is
// stringified as-is.
func displayValue(td *metadata.TableDescriptor, index metadata.RelatedDataIndex, column string, v any) string {
	if td.IsForeignKeyColumn(column) {
		return metadata.Resolve(index, column, v)
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// matchesSearch reports whether any visible column's resolved display value
// contains the search text, case-insensitively. Empty search matches all.
func matchesSearch(td *metadata.TableDescriptor, index metadata.RelatedDataIndex, record Record, visibleColumns []string, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, col := range visibleColumns {
		val, ok := record[col]
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(displayValue(td, index, col, val)), needle) {
			return true
		}
	}
	return false
}

// matchesFilters reports whether every active filter's column equals
// (string-compared) the filter value.
func matchesFilters(record Record, filters []AttributeFilter) bool {
	for _, f := range filters {
		if metadata.NormalizeID(record[f.Column]) != f.Value {
			return false
		}
	}
	return true
}

// Query composes role visibility, search, attribute filters and pagination
// into one view. Visibility is applied first, then search and filters; the
// result only ever removes records from the input, never adds.
func Query(records []Record, td *metadata.TableDescriptor, index metadata.RelatedDataIndex, opts QueryOptions, user *metadata.UserContext, vis *Visibility) QueryResult {
	visible := opts.VisibleColumns
	if len(visible) == 0 {
		visible = td.ColumnNames()
	}

	filtered := make([]Record, 0, len(records))
	for _, rec := range records {
		if vis != nil && !vis.CanSee(td.Table, user, rec) {
			continue
		}
		if !matchesSearch(td, index, rec, visible, opts.SearchText) {
			continue
		}
		if !matchesFilters(rec, opts.Filters) {
			continue
		}
		filtered = append(filtered, rec)
	}

	return paginate(filtered, opts.Page)
}

// paginate slices one page out of the filtered set. Pages are 1-based; a
// page past the end clamps to the last page so a shrinking result set
// never yields an empty page when records remain.
func paginate(records []Record, page int) QueryResult {
	total := len(records)
	totalPages := (total + PageSize - 1) / PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	pageRecords := records[start:end]
	if pageRecords == nil {
		pageRecords = []Record{}
	}

	return QueryResult{
		Records:    pageRecords,
		Page:       page,
		PerPage:    PageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}
