package engine

import "testing"

func TestIsSatellite(t *testing.T) {
	for _, name := range SatelliteTables {
		if !IsSatellite(name) {
			t.Errorf("expected %s to be a satellite", name)
		}
	}
	for _, name := range []string{ParentTable, "execution_budget", "_users", ""} {
		if IsSatellite(name) {
			t.Errorf("expected %s not to be a satellite", name)
		}
	}
}

func TestChecklistProgress(t *testing.T) {
	if got := ChecklistProgress(Record{}); got != 0 {
		t.Errorf("expected 0%% for empty record, got %d%%", got)
	}

	all := Record{}
	for _, item := range trainingChecklistItems {
		all[item] = true
	}
	if got := ChecklistProgress(all); got != 100 {
		t.Errorf("expected 100%% when every item is marked, got %d%%", got)
	}

	// 3 of 6 marked, across the lenient wire representations.
	half := Record{
		"training_business_model": true,
		"training_finances":       "true",
		"training_marketing":      float64(1),
		"training_environment":    false,
		"training_soft_skills":    nil,
	}
	if got := ChecklistProgress(half); got != 50 {
		t.Errorf("expected 50%%, got %d%%", got)
	}
}

func TestComputeBudgetGroupsByCategory(t *testing.T) {
	lines := []Record{
		{"category": "equipment", "quantity": float64(2), "unit_price": float64(100)},
		{"category": "services", "quantity": float64(1), "unit_price": float64(50)},
		{"category": "equipment", "quantity": float64(1), "unit_price": float64(25)},
	}

	summary := ComputeBudget(lines)
	if summary.GrandTotal != 275 {
		t.Fatalf("expected grand total 275, got %v", summary.GrandTotal)
	}
	if len(summary.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(summary.Categories))
	}
	// Category order follows first appearance in the input.
	if summary.Categories[0].Category != "equipment" || summary.Categories[0].Total != 225 {
		t.Errorf("unexpected first category: %+v", summary.Categories[0])
	}
	if summary.Categories[1].Category != "services" || summary.Categories[1].Total != 50 {
		t.Errorf("unexpected second category: %+v", summary.Categories[1])
	}
}

func TestComputeBudgetCounterpart(t *testing.T) {
	// Under the available amount: no counterpart required.
	under := ComputeBudget([]Record{
		{"category": "equipment", "quantity": float64(2), "unit_price": float64(100)},
	})
	if under.Available != availableBudgetAmount {
		t.Errorf("expected available %v, got %v", availableBudgetAmount, under.Available)
	}
	if under.Counterpart != 0 {
		t.Errorf("expected zero counterpart under the available amount, got %v", under.Counterpart)
	}

	// Over the available amount: counterpart is the excess.
	over := ComputeBudget([]Record{
		{"category": "works", "quantity": float64(1), "unit_price": availableBudgetAmount + 50000},
	})
	if over.Counterpart != 50000 {
		t.Errorf("expected counterpart 50000, got %v", over.Counterpart)
	}
}

func TestComputeBudgetToleratesDirtyLines(t *testing.T) {
	lines := []Record{
		{"category": "equipment", "quantity": "2", "unit_price": "100"},
		{"category": nil, "quantity": nil, "unit_price": float64(10)},
	}

	summary := ComputeBudget(lines)
	if summary.GrandTotal != 200 {
		t.Errorf("expected string quantities to parse and nil to count as zero, got %v", summary.GrandTotal)
	}
}

func TestComputeBudgetEmpty(t *testing.T) {
	summary := ComputeBudget(nil)
	if summary.GrandTotal != 0 || summary.Counterpart != 0 {
		t.Errorf("expected zeroed summary, got %+v", summary)
	}
	if summary.Available != availableBudgetAmount {
		t.Errorf("expected available %v, got %v", availableBudgetAmount, summary.Available)
	}
}
