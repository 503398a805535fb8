package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

// Change kinds written to the audit trail. The trail is append-only: the
// engine only writes entries on its own mutation paths and never
// synthesizes history on read.
const (
	ChangeCreate       = "CREATE"
	ChangeUpdate       = "UPDATE"
	ChangeDelete       = "DELETE"
	ChangeStatusKind   = "STATUS_CHANGE"
	ChangeUpload       = "UPLOAD"
	ChangeFileDelete   = "FILE_DELETE"
	ChangeCompliance   = "COMPLIANCE"
	ChangeComment      = "COMMENT"
	ChangeBulkUpdate   = "BULK_UPDATE"
)

type HistoryEntry struct {
	ID          string    `json:"id,omitempty"`
	Table       string    `json:"table_name"`
	RecordID    string    `json:"record_id"`
	UserID      string    `json:"user_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	ChangeKind  string    `json:"change_kind"`
	FieldName   string    `json:"field_name,omitempty"`
	OldValue    string    `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// appendHistory writes one audit entry. Runs inside the mutation's
// transaction so history never records a change that did not commit.
func appendHistory(ctx context.Context, q store.Querier, entry HistoryEntry) error {
	_, err := store.Exec(ctx, q, `
		INSERT INTO _history (table_name, record_id, user_id, username, change_kind, field_name, old_value, new_value, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Table, entry.RecordID,
		nullIfEmpty(entry.UserID), nullIfEmpty(entry.Username),
		entry.ChangeKind,
		nullIfEmpty(entry.FieldName), nullIfEmpty(entry.OldValue), nullIfEmpty(entry.NewValue),
		nullIfEmpty(entry.Description))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// historyActor fills the user fields of an entry from the caller context.
func historyActor(entry HistoryEntry, user *metadata.UserContext) HistoryEntry {
	if user != nil {
		entry.UserID = user.ID
		entry.Username = user.Username
	}
	return entry
}

// LoadHistory returns the audit trail for one record, newest first.
// Descending order is a display convention applied here, not a storage
// invariant.
func LoadHistory(ctx context.Context, q store.Querier, table, recordID string) ([]HistoryEntry, error) {
	rows, err := store.QueryRows(ctx, q, `
		SELECT id, table_name, record_id, user_id, username, change_kind, field_name, old_value, new_value, description, created_at
		FROM _history
		WHERE table_name = $1 AND record_id = $2
		ORDER BY created_at DESC`,
		table, recordID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s/%s: %w", table, recordID, err)
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, historyEntryFromRow(row))
	}
	return entries, nil
}

func historyEntryFromRow(row map[string]any) HistoryEntry {
	entry := HistoryEntry{}
	entry.ID, _ = row["id"].(string)
	entry.Table, _ = row["table_name"].(string)
	entry.RecordID, _ = row["record_id"].(string)
	entry.UserID, _ = row["user_id"].(string)
	entry.Username, _ = row["username"].(string)
	entry.ChangeKind, _ = row["change_kind"].(string)
	entry.FieldName, _ = row["field_name"].(string)
	entry.OldValue, _ = row["old_value"].(string)
	entry.NewValue, _ = row["new_value"].(string)
	entry.Description, _ = row["description"].(string)
	if t, ok := row["created_at"].(time.Time); ok {
		entry.CreatedAt = t
	}
	return entry
}

// sortHistoryDesc orders merged entries newest first.
func sortHistoryDesc(entries []HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
