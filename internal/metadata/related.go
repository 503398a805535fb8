package metadata

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"planadmin-backend/internal/store"
)

// RelatedRecord is one row of a referenced table reduced to its identity
// and a human-readable display value.
type RelatedRecord struct {
	ID           any    `json:"id"`
	DisplayValue string `json:"display_value"`
}

// RelatedDataIndex maps a foreign-key column name to the ordered related
// records of its referenced table. Built once per table load, read-only
// afterward.
type RelatedDataIndex map[string][]RelatedRecord

// NormalizeID returns the canonical string form of an id value. Ids arrive
// as numbers from some endpoints and strings from others, so every id
// comparison goes through this function.
func NormalizeID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == math.Trunc(id) && !math.IsInf(id, 0) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return NormalizeID(float64(id))
	case int:
		return strconv.Itoa(id)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Resolve maps a raw foreign-key value to its display string. Total: it
// always returns a string, falling back to "ID: <raw>" when the column has
// no related entry or the id is unknown. Pure — callers supply the
// already-loaded index.
func Resolve(index RelatedDataIndex, column string, raw any) string {
	fallback := "ID: " + NormalizeID(raw)
	related, ok := index[column]
	if !ok {
		return fallback
	}
	want := NormalizeID(raw)
	for _, rec := range related {
		if NormalizeID(rec.ID) == want {
			return rec.DisplayValue
		}
	}
	return fallback
}

// displayColumnCandidates are tried in order when picking the
// human-readable column of a referenced table.
var displayColumnCandidates = []string{"name", "full_name", "title", "description"}

// displayColumn picks the column of a referenced table used as the display
// value: the first well-known name column, else the first non-identity
// column, else the identity itself.
func displayColumn(td *TableDescriptor) string {
	for _, want := range displayColumnCandidates {
		if td.HasColumn(want) {
			return want
		}
	}
	pk := td.IdentityColumn()
	for _, c := range td.Columns {
		if c.Name != pk {
			return c.Name
		}
	}
	return pk
}

// LoadRelatedData builds the RelatedDataIndex for every foreign-key column
// of the table. A referenced table that fails to introspect contributes no
// entry; Resolve degrades to the fallback for that column.
func LoadRelatedData(ctx context.Context, q store.Querier, reg *Registry, td *TableDescriptor) (RelatedDataIndex, error) {
	index := make(RelatedDataIndex)
	for _, col := range td.Columns {
		if !col.IsForeignKey() || col.RefTable == "" {
			continue
		}

		refDesc, err := reg.Descriptor(ctx, q, col.RefTable)
		if err != nil {
			continue
		}

		refColumn := col.RefColumn
		if refColumn == "" {
			refColumn = refDesc.IdentityColumn()
		}
		display := displayColumn(refDesc)

		var sql string
		if display == refColumn {
			sql = fmt.Sprintf("SELECT %s AS id FROM %s ORDER BY %s", refColumn, col.RefTable, refColumn)
		} else {
			sql = fmt.Sprintf("SELECT %s AS id, %s AS display FROM %s ORDER BY %s",
				refColumn, display, col.RefTable, refColumn)
		}
		rows, err := store.QueryRows(ctx, q, sql)
		if err != nil {
			return nil, fmt.Errorf("load related data for %s.%s: %w", td.Table, col.Name, err)
		}

		records := make([]RelatedRecord, 0, len(rows))
		for _, row := range rows {
			rec := RelatedRecord{ID: row["id"]}
			if d, ok := row["display"]; ok && d != nil {
				rec.DisplayValue = fmt.Sprintf("%v", d)
			} else {
				rec.DisplayValue = NormalizeID(row["id"])
			}
			records = append(records, rec)
		}
		index[col.Name] = records
	}
	return index, nil
}
