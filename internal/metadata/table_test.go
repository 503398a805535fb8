package metadata

import "testing"

func testDescriptor() *TableDescriptor {
	return NewTableDescriptor("characterization", []ColumnDescriptor{
		{Name: "id", Constraint: ConstraintPrimaryKey, DataType: "integer"},
		{Name: "name", Constraint: ConstraintNone, DataType: "text"},
		{Name: "advisor_id", Constraint: ConstraintForeignKey, DataType: "integer", RefTable: "users", RefColumn: "id"},
		{Name: "status", Constraint: ConstraintNone, DataType: "text"},
		{Name: "consent_accepted", Constraint: ConstraintNone, DataType: "boolean"},
		{Name: "created_at", Constraint: ConstraintNone, DataType: "timestamp with time zone"},
	})
}

func TestDescriptorFlags(t *testing.T) {
	td := testDescriptor()

	if !td.HasStatus {
		t.Error("expected HasStatus for table with status column")
	}
	if !td.HasAdvisor {
		t.Error("expected HasAdvisor for table with advisor_id column")
	}

	fks := td.ForeignKeyColumns()
	if len(fks) != 1 || fks[0] != "advisor_id" {
		t.Fatalf("expected foreign key columns [advisor_id], got %v", fks)
	}
	if !td.IsForeignKeyColumn("advisor_id") {
		t.Error("expected advisor_id to be a foreign key column")
	}
	if td.IsForeignKeyColumn("name") {
		t.Error("name must not be a foreign key column")
	}
}

func TestFieldKindClassification(t *testing.T) {
	td := testDescriptor()

	cases := map[string]FieldKind{
		"id":         KindIdentity,
		"name":       KindPlain,
		"advisor_id": KindForeignKey,
		"status":     KindStatus,
	}
	for name, want := range cases {
		col := td.GetColumn(name)
		if col == nil {
			t.Fatalf("missing column %s", name)
		}
		if col.Kind != want {
			t.Errorf("column %s: expected kind %s, got %s", name, want, col.Kind)
		}
	}
}

func TestEditableColumnsExcludesDenylist(t *testing.T) {
	td := testDescriptor()

	editable := td.EditableColumns()
	names := make(map[string]bool, len(editable))
	for _, c := range editable {
		names[c.Name] = true
	}

	for _, excluded := range []string{"id", "status", "consent_accepted", "created_at"} {
		if names[excluded] {
			t.Errorf("column %s must not be editable", excluded)
		}
	}
	if !names["name"] || !names["advisor_id"] {
		t.Errorf("expected name and advisor_id to be editable, got %v", names)
	}

	// Excluded columns stay in the full descriptor.
	if td.GetColumn("status") == nil || td.GetColumn("consent_accepted") == nil {
		t.Error("excluded columns must remain in the full descriptor")
	}
}

func TestIdentityColumnDefault(t *testing.T) {
	td := NewTableDescriptor("notes", []ColumnDescriptor{
		{Name: "id", Constraint: ConstraintNone},
		{Name: "body", Constraint: ConstraintNone},
	})
	if got := td.IdentityColumn(); got != "id" {
		t.Fatalf("expected identity fallback to id, got %s", got)
	}
}
