package metadata

// ConstraintKind classifies a column by its backend constraint.
type ConstraintKind string

const (
	ConstraintNone       ConstraintKind = "NONE"
	ConstraintForeignKey ConstraintKind = "FOREIGN_KEY"
	ConstraintPrimaryKey ConstraintKind = "PRIMARY_KEY"
)

// FieldKind is the render/validate variant selected once per column at
// schema-load time. All downstream dispatch keys off this tag instead of
// re-testing column names and constraints.
type FieldKind string

const (
	KindIdentity   FieldKind = "identity"
	KindForeignKey FieldKind = "foreign_key"
	KindStatus     FieldKind = "status"
	KindPlain      FieldKind = "plain"
)

// StatusColumn and AdvisorColumn are well-known column names that
// downstream components special-case when present.
const (
	StatusColumn  = "status"
	AdvisorColumn = "advisor_id"
	ConsentColumn = "consent_accepted"
)

type ColumnDescriptor struct {
	Name       string         `json:"name"`
	Constraint ConstraintKind `json:"constraint"`
	Nullable   bool           `json:"nullable"`
	DataType   string         `json:"data_type"`
	Kind       FieldKind      `json:"kind"`
	RefTable   string         `json:"ref_table,omitempty"`
	RefColumn  string         `json:"ref_column,omitempty"`
}

// classify assigns the FieldKind tag. Constraint wins over name: a
// foreign-key status column would still resolve as a foreign key.
func (c *ColumnDescriptor) classify() {
	switch {
	case c.Constraint == ConstraintPrimaryKey:
		c.Kind = KindIdentity
	case c.Constraint == ConstraintForeignKey:
		c.Kind = KindForeignKey
	case c.Name == StatusColumn:
		c.Kind = KindStatus
	default:
		c.Kind = KindPlain
	}
}

// IsForeignKey reports whether the column participates in related-data
// resolution.
func (c ColumnDescriptor) IsForeignKey() bool {
	return c.Constraint == ConstraintForeignKey
}
