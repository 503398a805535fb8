package metadata

// editExcluded columns stay in the full descriptor (status drives the
// status workflow, consent is immutable once given) but never appear in
// the editable projection.
var editExcluded = map[string]bool{
	StatusColumn:  true,
	ConsentColumn: true,
	"created_at":  true,
	"updated_at":  true,
}

// TableDescriptor is the introspected shape of one table. Built fresh per
// table-name lookup and cached by the Registry until invalidated.
type TableDescriptor struct {
	Table      string             `json:"table"`
	Columns    []ColumnDescriptor `json:"columns"`
	HasStatus  bool               `json:"has_status"`
	HasAdvisor bool               `json:"has_advisor"`

	fkColumns map[string]bool
}

// NewTableDescriptor builds a descriptor from already-classified columns.
func NewTableDescriptor(table string, columns []ColumnDescriptor) *TableDescriptor {
	td := &TableDescriptor{
		Table:     table,
		Columns:   columns,
		fkColumns: make(map[string]bool),
	}
	for i := range td.Columns {
		td.Columns[i].classify()
		col := td.Columns[i]
		if col.IsForeignKey() {
			td.fkColumns[col.Name] = true
		}
		switch col.Name {
		case StatusColumn:
			td.HasStatus = true
		case AdvisorColumn:
			td.HasAdvisor = true
		}
	}
	return td
}

// GetColumn returns the column with the given name, or nil.
func (t *TableDescriptor) GetColumn(name string) *ColumnDescriptor {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether the table has a column with the given name.
func (t *TableDescriptor) HasColumn(name string) bool {
	return t.GetColumn(name) != nil
}

// ColumnNames returns all column names in introspection order.
func (t *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKeyColumns returns the names of columns that require related-data
// resolution.
func (t *TableDescriptor) ForeignKeyColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.IsForeignKey() {
			names = append(names, c.Name)
		}
	}
	return names
}

// IsForeignKeyColumn reports whether the named column is a foreign key.
func (t *TableDescriptor) IsForeignKeyColumn(name string) bool {
	return t.fkColumns[name]
}

// IdentityColumn returns the primary key column name, defaulting to "id"
// when introspection reported no primary key.
func (t *TableDescriptor) IdentityColumn() string {
	for _, c := range t.Columns {
		if c.Constraint == ConstraintPrimaryKey {
			return c.Name
		}
	}
	return "id"
}

// EditableColumns is the projection used for field rendering and patches:
// the full column list minus the identity column and the fixed exclusion
// set. The excluded columns remain in Columns for status-workflow logic.
func (t *TableDescriptor) EditableColumns() []ColumnDescriptor {
	var cols []ColumnDescriptor
	pk := t.IdentityColumn()
	for _, c := range t.Columns {
		if c.Name == pk || editExcluded[c.Name] {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}
