package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

type Comment struct {
	ID        string    `json:"id"`
	Table     string    `json:"table_name"`
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// AddComment stores a comment and returns the canonical stored row, so
// callers prepend exactly what the backend holds rather than a
// client-constructed copy. Empty text after trimming is rejected before
// any write.
func AddComment(ctx context.Context, s *store.Store, table, recordID, body string, user *metadata.UserContext) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, FieldValidationError("body", "required", "Comment text is required")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var userID, username any
	if user != nil {
		userID, username = user.ID, user.Username
	}
	row, err := store.QueryRow(ctx, tx, `
		INSERT INTO _comments (table_name, record_id, user_id, username, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, table_name, record_id, user_id, username, body, created_at`,
		table, recordID, userID, username, body)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}

	entry := historyActor(HistoryEntry{
		Table:       table,
		RecordID:    recordID,
		ChangeKind:  ChangeComment,
		Description: body,
	}, user)
	if err := appendHistory(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return commentFromRow(row), nil
}

// ListComments returns a record's comments, newest first.
func ListComments(ctx context.Context, q store.Querier, table, recordID string) ([]Comment, error) {
	rows, err := store.QueryRows(ctx, q, `
		SELECT id, table_name, record_id, user_id, username, body, created_at
		FROM _comments
		WHERE table_name = $1 AND record_id = $2
		ORDER BY created_at DESC`,
		table, recordID)
	if err != nil {
		return nil, fmt.Errorf("list comments for %s/%s: %w", table, recordID, err)
	}

	comments := make([]Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, *commentFromRow(row))
	}
	return comments, nil
}

func commentFromRow(row map[string]any) *Comment {
	c := &Comment{}
	c.ID, _ = row["id"].(string)
	c.Table, _ = row["table_name"].(string)
	c.RecordID, _ = row["record_id"].(string)
	c.UserID, _ = row["user_id"].(string)
	c.Username, _ = row["username"].(string)
	c.Body, _ = row["body"].(string)
	if t, ok := row["created_at"].(time.Time); ok {
		c.CreatedAt = t
	}
	return c
}
