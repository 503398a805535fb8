package metadata

import (
	"context"
	"errors"
	"fmt"

	"planadmin-backend/internal/store"
)

// ErrSchemaFetch is returned when the backend cannot resolve a table's
// column metadata (unknown table, empty schema).
var ErrSchemaFetch = errors.New("schema fetch failed")

const columnsSQL = `
SELECT c.column_name,
       c.is_nullable,
       c.data_type
FROM information_schema.columns c
WHERE c.table_schema = 'public'
  AND c.table_name = $1
ORDER BY c.ordinal_position`

const constraintsSQL = `
SELECT kcu.column_name,
       tc.constraint_type,
       ccu.table_name  AS ref_table,
       ccu.column_name AS ref_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name
 AND ccu.table_schema = tc.table_schema
WHERE tc.table_schema = 'public'
  AND tc.table_name = $1
  AND tc.constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')`

// LoadTableDescriptor introspects one table's column metadata and builds a
// fresh TableDescriptor. Fails with ErrSchemaFetch when the table does not
// exist in the backend schema.
func LoadTableDescriptor(ctx context.Context, q store.Querier, table string) (*TableDescriptor, error) {
	colRows, err := store.QueryRows(ctx, q, columnsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("introspect columns for %s: %w", table, err)
	}
	if len(colRows) == 0 {
		return nil, fmt.Errorf("%w: unknown table %s", ErrSchemaFetch, table)
	}

	conRows, err := store.QueryRows(ctx, q, constraintsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("introspect constraints for %s: %w", table, err)
	}

	type conInfo struct {
		kind      ConstraintKind
		refTable  string
		refColumn string
	}
	constraints := make(map[string]conInfo, len(conRows))
	for _, row := range conRows {
		name, _ := row["column_name"].(string)
		ctype, _ := row["constraint_type"].(string)
		info := constraints[name]
		switch ctype {
		case "PRIMARY KEY":
			// PK wins when a column carries both constraints
			info.kind = ConstraintPrimaryKey
		case "FOREIGN KEY":
			if info.kind != ConstraintPrimaryKey {
				info.kind = ConstraintForeignKey
			}
			info.refTable, _ = row["ref_table"].(string)
			info.refColumn, _ = row["ref_column"].(string)
		}
		constraints[name] = info
	}

	columns := make([]ColumnDescriptor, 0, len(colRows))
	for _, row := range colRows {
		name, _ := row["column_name"].(string)
		nullable, _ := row["is_nullable"].(string)
		dataType, _ := row["data_type"].(string)

		col := ColumnDescriptor{
			Name:       name,
			Constraint: ConstraintNone,
			Nullable:   nullable == "YES",
			DataType:   dataType,
		}
		if info, ok := constraints[name]; ok && info.kind != "" {
			col.Constraint = info.kind
			col.RefTable = info.refTable
			col.RefColumn = info.refColumn
		}
		columns = append(columns, col)
	}

	return NewTableDescriptor(table, columns), nil
}

const enumOptionsSQL = `
SELECT e.enumlabel
FROM pg_type t
JOIN pg_enum e ON e.enumtypid = t.oid
JOIN information_schema.columns c
  ON c.udt_name = t.typname
WHERE c.table_schema = 'public'
  AND c.table_name = $1
  AND c.column_name = $2
ORDER BY e.enumsortorder`

// LoadFieldOptions returns the option list for a status-like column: the
// enum labels when the column is enum-typed, otherwise the distinct
// non-null values currently stored.
func LoadFieldOptions(ctx context.Context, q store.Querier, td *TableDescriptor, column string) ([]string, error) {
	col := td.GetColumn(column)
	if col == nil {
		return nil, fmt.Errorf("%w: no column %s on %s", ErrSchemaFetch, column, td.Table)
	}

	rows, err := store.QueryRows(ctx, q, enumOptionsSQL, td.Table, column)
	if err != nil {
		return nil, fmt.Errorf("load enum options for %s.%s: %w", td.Table, column, err)
	}
	if len(rows) > 0 {
		options := make([]string, 0, len(rows))
		for _, row := range rows {
			if label, ok := row["enumlabel"].(string); ok {
				options = append(options, label)
			}
		}
		return options, nil
	}

	distinctSQL := fmt.Sprintf(
		"SELECT DISTINCT %s AS value FROM %s WHERE %s IS NOT NULL ORDER BY value",
		column, td.Table, column)
	rows, err = store.QueryRows(ctx, q, distinctSQL)
	if err != nil {
		return nil, fmt.Errorf("load distinct options for %s.%s: %w", td.Table, column, err)
	}
	options := make([]string, 0, len(rows))
	for _, row := range rows {
		options = append(options, NormalizeID(row["value"]))
	}
	return options, nil
}
