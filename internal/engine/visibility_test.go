package engine

import (
	"testing"

	"planadmin-backend/internal/config"
	"planadmin-backend/internal/metadata"
)

func testVisibility() *Visibility {
	return NewVisibility([]config.VisibilityPolicy{
		{
			Table:           "characterization",
			OwnerColumn:     "advisor_id",
			PrivilegedRoles: []string{"coordinator"},
		},
	})
}

func TestCanSeeNoPolicy(t *testing.T) {
	vis := testVisibility()
	user := &metadata.UserContext{ID: "1", Roles: []string{"advisor"}}

	if !vis.CanSee("diagnostic", user, Record{"advisor_id": 99}) {
		t.Error("expected tables without a policy to be fully visible")
	}
}

func TestCanSeeOwnerColumn(t *testing.T) {
	vis := testVisibility()
	user := &metadata.UserContext{ID: "7", Roles: []string{"advisor"}}

	if !vis.CanSee("characterization", user, Record{"advisor_id": 7}) {
		t.Error("expected owner to see their own record")
	}
	if !vis.CanSee("characterization", user, Record{"advisor_id": "7"}) {
		t.Error("expected owner match across id representations")
	}
	if vis.CanSee("characterization", user, Record{"advisor_id": 8}) {
		t.Error("expected non-owner to be filtered out")
	}
	if vis.CanSee("characterization", nil, Record{"advisor_id": 7}) {
		t.Error("expected nil user to see nothing under a policy")
	}
}

func TestCanSeePrivilegedRoles(t *testing.T) {
	vis := testVisibility()

	coordinator := &metadata.UserContext{ID: "1", Roles: []string{"coordinator"}}
	if !vis.CanSee("characterization", coordinator, Record{"advisor_id": 99}) {
		t.Error("expected privileged role to see every record")
	}

	admin := &metadata.UserContext{ID: "2", Roles: []string{"admin"}}
	if !vis.CanSee("characterization", admin, Record{"advisor_id": 99}) {
		t.Error("expected admin to see every record")
	}
}

func TestCanSeeGuardExpression(t *testing.T) {
	vis := NewVisibility([]config.VisibilityPolicy{
		{
			Table:       "characterization",
			OwnerColumn: "advisor_id",
			Guard:       `record.status != "archived"`,
		},
	})
	user := &metadata.UserContext{ID: "7", Roles: []string{"advisor"}}

	if !vis.CanSee("characterization", user, Record{"advisor_id": 7, "status": "draft"}) {
		t.Error("expected guard to pass for non-archived record")
	}
	if vis.CanSee("characterization", user, Record{"advisor_id": 7, "status": "archived"}) {
		t.Error("expected guard to filter archived record")
	}
}

func TestQueryAppliesVisibility(t *testing.T) {
	td := queryDescriptor()
	vis := testVisibility()
	user := &metadata.UserContext{ID: "7", Roles: []string{"advisor"}}
	records := []Record{
		{"id": 1, "advisor_id": 7},
		{"id": 2, "advisor_id": 8},
		{"id": 3, "advisor_id": "7"},
	}

	res := Query(records, td, nil, QueryOptions{}, user, vis)
	if res.Total != 2 {
		t.Fatalf("expected only owned records, got %d", res.Total)
	}
	for _, rec := range res.Records {
		if metadata.NormalizeID(rec["advisor_id"]) != "7" {
			t.Errorf("leaked record %v", rec["id"])
		}
	}
}
