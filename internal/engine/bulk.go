package engine

import (
	"context"
	"fmt"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

// BulkUpdateRequest applies the same partial patch to every selected
// record in one call.
type BulkUpdateRequest struct {
	RecordIDs []string `json:"record_ids"`
	Updates   Record   `json:"updates"`
}

// BulkUpdate applies the patch to each selected record inside one
// transaction, capturing per-field audit entries against the pre-update
// values. Status is the one protected column allowed here: a bulk status
// change goes through its own UPDATE and produces STATUS_CHANGE entries,
// keeping the status-specific audit kind even in batch form.
// All-or-nothing: a failure on any record rolls back the batch, so partial
// completion is never observable.
func BulkUpdate(ctx context.Context, s *store.Store, td *metadata.TableDescriptor, req BulkUpdateRequest, user *metadata.UserContext) (int, error) {
	if len(req.RecordIDs) == 0 {
		return 0, FieldValidationError("record_ids", "required", "No records selected")
	}

	updates := restrictPatch(td, req.Updates)
	statusValue, hasStatusUpdate := "", false
	if td.HasStatus {
		if v, ok := req.Updates[metadata.StatusColumn]; ok {
			statusValue = stringifyValue(v)
			hasStatusUpdate = true
		}
	}
	if len(updates) == 0 && !hasStatusUpdate {
		return 0, FieldValidationError("updates", "required", "No editable fields in updates")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	desc := fmt.Sprintf("Bulk update of %d records", len(req.RecordIDs))
	updated := 0
	for _, id := range req.RecordIDs {
		before, err := fetchRecord(ctx, tx, td, id)
		if err != nil {
			return 0, mutationError(td.Table, id, err)
		}
		if len(updates) > 0 {
			sql, params := buildUpdateSQL(td, id, updates)
			after, err := store.QueryRow(ctx, tx, sql, params...)
			if err != nil {
				return 0, mutationError(td.Table, id, err)
			}

			for _, change := range DiffRecord(before, after, td.EditableColumns()) {
				entry := historyActor(HistoryEntry{
					Table:       td.Table,
					RecordID:    id,
					ChangeKind:  ChangeBulkUpdate,
					FieldName:   change.Field,
					OldValue:    change.Old,
					NewValue:    change.New,
					Description: desc,
				}, user)
				if err := appendHistory(ctx, tx, entry); err != nil {
					return 0, err
				}
			}
		}

		if hasStatusUpdate {
			sql := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s::text = $2",
				td.Table, metadata.StatusColumn, td.IdentityColumn())
			if _, err := store.Exec(ctx, tx, sql, statusValue, id); err != nil {
				return 0, mutationError(td.Table, id, err)
			}
			entry := historyActor(HistoryEntry{
				Table:       td.Table,
				RecordID:    id,
				ChangeKind:  ChangeStatusKind,
				FieldName:   metadata.StatusColumn,
				OldValue:    stringifyValue(before[metadata.StatusColumn]),
				NewValue:    statusValue,
				Description: desc,
			}, user)
			if err := appendHistory(ctx, tx, entry); err != nil {
				return 0, err
			}
		}

		updated++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}
