package metadata

import (
	"context"
	"errors"
	"fmt"

	"planadmin-backend/internal/store"
)

// ViewPreferences is the per-user, per-table view state (visible columns,
// last search text). It is an explicit value object loaded and saved at
// component boundaries, never ambient state.
type ViewPreferences struct {
	Table          string   `json:"table"`
	VisibleColumns []string `json:"visible_columns"`
	SearchText     string   `json:"search_text"`
}

// LoadViewPreferences returns the stored preferences for (user, table),
// or an empty value when none were saved yet.
func LoadViewPreferences(ctx context.Context, q store.Querier, userID, table string) (*ViewPreferences, error) {
	row, err := store.QueryRow(ctx, q,
		"SELECT visible_columns, search_text FROM _view_prefs WHERE user_id = $1 AND table_name = $2",
		userID, table)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ViewPreferences{Table: table}, nil
		}
		return nil, fmt.Errorf("load view prefs: %w", err)
	}

	prefs := &ViewPreferences{Table: table}
	switch cols := row["visible_columns"].(type) {
	case []string:
		prefs.VisibleColumns = cols
	case []any:
		for _, c := range cols {
			if s, ok := c.(string); ok {
				prefs.VisibleColumns = append(prefs.VisibleColumns, s)
			}
		}
	}
	prefs.SearchText, _ = row["search_text"].(string)
	return prefs, nil
}

// SaveViewPreferences upserts the preferences for (user, table).
func SaveViewPreferences(ctx context.Context, q store.Querier, userID string, prefs *ViewPreferences) error {
	cols := prefs.VisibleColumns
	if cols == nil {
		cols = []string{}
	}
	_, err := store.Exec(ctx, q, `
		INSERT INTO _view_prefs (user_id, table_name, visible_columns, search_text, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, table_name)
		DO UPDATE SET visible_columns = $3, search_text = $4, updated_at = NOW()`,
		userID, prefs.Table, cols, prefs.SearchText)
	if err != nil {
		return fmt.Errorf("save view prefs: %w", err)
	}
	return nil
}
