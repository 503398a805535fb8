package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/storage"
	"planadmin-backend/internal/store"
)

// Attachment is one file registered against a record, with its optional
// compliance annotation.
type Attachment struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	URL            string    `json:"url"`
	MimeType       string    `json:"mime_type"`
	Size           int64     `json:"size"`
	SourceTag      string    `json:"source_tag,omitempty"`
	Compliant      *bool     `json:"compliant"`
	ComplianceNote string    `json:"compliance_note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type FileHandler struct {
	store   *store.Store
	storage storage.FileStorage
	baseURL string
	maxSize int64
}

func NewFileHandler(s *store.Store, fs storage.FileStorage, baseURL string, maxSize int64) *FileHandler {
	return &FileHandler{store: s, storage: fs, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize}
}

// downloadURL builds the absolute content URL stored with each upload, so
// clients follow it without knowing the backend origin.
func (h *FileHandler) downloadURL(table, recordID, fileID string) string {
	return fmt.Sprintf("%s/tables/%s/record/%s/file/%s/content", h.baseURL, table, recordID, fileID)
}

// List handles GET /tables/:table/record/:id/file, optionally filtered by
// ?source=tag.
func (h *FileHandler) List(c *fiber.Ctx) error {
	table := c.Params("table")
	recordID := c.Params("id")

	sql := `SELECT id, display_name, url, mime_type, size, source_tag, compliant, compliance_note, created_at
	        FROM _files WHERE table_name = $1 AND record_id = $2`
	args := []any{table, recordID}
	if tag := c.Query("source"); tag != "" {
		sql += " AND source_tag = $3"
		args = append(args, tag)
	}
	sql += " ORDER BY created_at DESC"

	rows, err := store.QueryRows(c.Context(), h.store.Pool, sql, args...)
	if err != nil {
		return fmt.Errorf("list files for %s/%s: %w", table, recordID, err)
	}

	attachments := make([]Attachment, 0, len(rows))
	for _, row := range rows {
		attachments = append(attachments, attachmentFromRow(row))
	}
	return c.JSON(fiber.Map{"data": attachments})
}

// Upload handles POST /tables/:table/record/:id/file. The display name is
// required and validated before any storage write happens.
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	table := c.Params("table")
	recordID := c.Params("id")

	displayName := strings.TrimSpace(c.FormValue("display_name"))
	if displayName == "" {
		return respondError(c, FieldValidationError("display_name", "required", "A display name is required"))
	}

	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, FieldValidationError("file", "required", "Missing file in form data"))
	}
	if file.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, h.maxSize)
		return respondError(c, NewAppError("FILE_TOO_LARGE", 413, msg))
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	fileID := uuid.New().String()
	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	sourceTag := c.FormValue("source_tag")

	storagePath, err := h.storage.Save(c.Context(), table, fileID, file.Filename, src)
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}

	url := h.downloadURL(table, recordID, fileID)

	tx, err := h.store.BeginTx(c.Context())
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(c.Context()) //nolint:errcheck

	user := getUser(c)
	var uploadedBy any
	if user != nil {
		uploadedBy = user.ID
	}
	_, err = store.Exec(c.Context(), tx, `
		INSERT INTO _files (id, table_name, record_id, display_name, storage_path, url, mime_type, size, source_tag, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		fileID, table, recordID, displayName, storagePath, url, mimeType, file.Size,
		nullIfEmpty(sourceTag), uploadedBy)
	if err != nil {
		_ = h.storage.Delete(c.Context(), storagePath)
		return fmt.Errorf("insert _files: %w", err)
	}

	entry := historyActor(HistoryEntry{
		Table:       table,
		RecordID:    recordID,
		ChangeKind:  ChangeUpload,
		Description: displayName,
	}, user)
	if err := appendHistory(c.Context(), tx, entry); err != nil {
		_ = h.storage.Delete(c.Context(), storagePath)
		return err
	}

	if err := tx.Commit(c.Context()); err != nil {
		_ = h.storage.Delete(c.Context(), storagePath)
		return fmt.Errorf("commit: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{"data": Attachment{
		ID:          fileID,
		DisplayName: displayName,
		URL:         url,
		MimeType:    mimeType,
		Size:        file.Size,
		SourceTag:   sourceTag,
	}})
}

// Content handles GET /tables/:table/record/:id/file/:fileId/content.
func (h *FileHandler) Content(c *fiber.Ctx) error {
	fileID := c.Params("fileId")

	row, err := h.fetchFileRow(c, c.Params("table"), c.Params("id"), fileID)
	if err != nil {
		return err
	}

	storagePath, _ := row["storage_path"].(string)
	mimeType, _ := row["mime_type"].(string)
	displayName, _ := row["display_name"].(string)

	reader, err := h.storage.Open(c.Context(), storagePath)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	c.Set("Content-Type", mimeType)
	c.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, displayName))
	return c.SendStream(reader)
}

// Delete handles DELETE /tables/:table/record/:id/file/:fileId. The
// confirmation dialog is the client's duty; from here the deletion is
// immediate and irreversible.
func (h *FileHandler) Delete(c *fiber.Ctx) error {
	table := c.Params("table")
	recordID := c.Params("id")
	fileID := c.Params("fileId")

	row, err := h.fetchFileRow(c, table, recordID, fileID)
	if err != nil {
		return err
	}
	storagePath, _ := row["storage_path"].(string)
	displayName, _ := row["display_name"].(string)

	if err := h.storage.Delete(c.Context(), storagePath); err != nil {
		return fmt.Errorf("delete stored file: %w", err)
	}

	tx, err := h.store.BeginTx(c.Context())
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(c.Context()) //nolint:errcheck

	if _, err := store.Exec(c.Context(), tx, "DELETE FROM _files WHERE id = $1", fileID); err != nil {
		return fmt.Errorf("delete _files row: %w", err)
	}

	entry := historyActor(HistoryEntry{
		Table:       table,
		RecordID:    recordID,
		ChangeKind:  ChangeFileDelete,
		Description: displayName,
	}, getUser(c))
	if err := appendHistory(c.Context(), tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(c.Context()); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// SetCompliance handles PUT /tables/:table/record/:id/file/:fileId/compliance.
// The verdict is read leniently (bool, string or number) and written back
// in the canonical bool/null form.
func (h *FileHandler) SetCompliance(c *fiber.Ctx) error {
	table := c.Params("table")
	recordID := c.Params("id")
	fileID := c.Params("fileId")

	var body struct {
		Verdict     any    `json:"verdict"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	if _, err := h.fetchFileRow(c, table, recordID, fileID); err != nil {
		return err
	}

	verdict := NormalizeVerdict(body.Verdict)

	tx, err := h.store.BeginTx(c.Context())
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(c.Context()) //nolint:errcheck

	_, err = store.Exec(c.Context(), tx,
		"UPDATE _files SET compliant = $1, compliance_note = $2 WHERE id = $3",
		verdict.Bool(), nullIfEmpty(body.Description), fileID)
	if err != nil {
		return fmt.Errorf("update compliance: %w", err)
	}

	entry := historyActor(HistoryEntry{
		Table:       table,
		RecordID:    recordID,
		ChangeKind:  ChangeCompliance,
		FieldName:   "compliant",
		NewValue:    verdict.String(),
		Description: body.Description,
	}, getUser(c))
	if err := appendHistory(c.Context(), tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(c.Context()); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"verdict": verdict.String()}})
}

// fetchFileRow resolves a file id scoped to the record named in the URL.
// An id belonging to another record 404s instead of acting (and writing
// history) against the wrong table/record pair.
func (h *FileHandler) fetchFileRow(c *fiber.Ctx, table, recordID, fileID string) (map[string]any, error) {
	row, err := store.QueryRow(c.Context(), h.store.Pool, `
		SELECT id, display_name, storage_path, url, mime_type, size, source_tag, compliant, compliance_note, created_at
		FROM _files WHERE id = $1 AND table_name = $2 AND record_id = $3`,
		fileID, table, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, respondError(c, NewAppError("NOT_FOUND", 404, fmt.Sprintf("File %s not found on %s/%s", fileID, table, recordID)))
		}
		return nil, fmt.Errorf("fetch file %s: %w", fileID, err)
	}
	return row, nil
}

func attachmentFromRow(row map[string]any) Attachment {
	a := Attachment{}
	a.ID, _ = row["id"].(string)
	a.DisplayName, _ = row["display_name"].(string)
	a.URL, _ = row["url"].(string)
	a.MimeType, _ = row["mime_type"].(string)
	if size, ok := row["size"].(int64); ok {
		a.Size = size
	}
	a.SourceTag, _ = row["source_tag"].(string)
	if verdict := NormalizeVerdict(row["compliant"]); verdict != VerdictUnset {
		a.Compliant = verdict.Bool()
	}
	a.ComplianceNote, _ = row["compliance_note"].(string)
	if t, ok := row["created_at"].(time.Time); ok {
		a.CreatedAt = t
	}
	return a
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}
