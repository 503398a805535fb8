package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

type Handler struct {
	store      *store.Store
	registry   *metadata.Registry
	visibility *Visibility
}

func NewHandler(s *store.Store, reg *metadata.Registry, vis *Visibility) *Handler {
	return &Handler{store: s, registry: reg, visibility: vis}
}

// Fields handles GET /tables/:table/fields — the introspected column
// metadata plus the editable projection.
func (h *Handler) Fields(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	editable := make([]string, 0)
	for _, col := range td.EditableColumns() {
		editable = append(editable, col.Name)
	}

	return c.JSON(fiber.Map{
		"data": td.Columns,
		"meta": fiber.Map{
			"table":       td.Table,
			"editable":    editable,
			"has_status":  td.HasStatus,
			"has_advisor": td.HasAdvisor,
		},
	})
}

// ListRecords handles GET /tables/:table/records. Query params: search,
// page, columns (comma-separated visible columns), filter[col]=value.
func (h *Handler) ListRecords(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	records, err := fetchAllRecords(c.Context(), h.store.Pool, td)
	if err != nil {
		return fmt.Errorf("list %s: %w", td.Table, err)
	}

	index, err := metadata.LoadRelatedData(c.Context(), h.store.Pool, h.registry, td)
	if err != nil {
		return fmt.Errorf("related data for %s: %w", td.Table, err)
	}

	opts := parseQueryOptions(c, td)
	result := Query(records, td, index, opts, getUser(c), h.visibility)

	return c.JSON(fiber.Map{
		"data": result.Records,
		"meta": fiber.Map{
			"page":        result.Page,
			"per_page":    result.PerPage,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

// RelatedData handles GET /tables/:table/related-data — the display index
// for every foreign-key column.
func (h *Handler) RelatedData(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	index, err := metadata.LoadRelatedData(c.Context(), h.store.Pool, h.registry, td)
	if err != nil {
		return fmt.Errorf("related data for %s: %w", td.Table, err)
	}
	return c.JSON(fiber.Map{"data": index})
}

// FieldOptions handles GET /tables/:table/field-options/:column.
func (h *Handler) FieldOptions(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	column := c.Params("column")
	options, err := metadata.LoadFieldOptions(c.Context(), h.store.Pool, td, column)
	if err != nil {
		if errors.Is(err, metadata.ErrSchemaFetch) {
			return respondError(c, SchemaFetchError(td.Table+"."+column))
		}
		return fmt.Errorf("field options for %s.%s: %w", td.Table, column, err)
	}
	return c.JSON(fiber.Map{"data": options})
}

// BulkUpdate handles PUT /tables/:table/bulk-update.
func (h *Handler) BulkUpdate(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var req BulkUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	updated, err := BulkUpdate(c.Context(), h.store, td, req, getUser(c))
	if err != nil {
		return handleMutationError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": updated}})
}

// GetViewPrefs handles GET /tables/:table/view-prefs.
func (h *Handler) GetViewPrefs(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return respondError(c, UnauthorizedError("Authentication required"))
	}
	prefs, err := metadata.LoadViewPreferences(c.Context(), h.store.Pool, user.ID, c.Params("table"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": prefs})
}

// PutViewPrefs handles PUT /tables/:table/view-prefs.
func (h *Handler) PutViewPrefs(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return respondError(c, UnauthorizedError("Authentication required"))
	}

	var prefs metadata.ViewPreferences
	if err := c.BodyParser(&prefs); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	prefs.Table = c.Params("table")

	if err := metadata.SaveViewPreferences(c.Context(), h.store.Pool, user.ID, &prefs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": prefs})
}

func (h *Handler) resolveTable(c *fiber.Ctx) (*metadata.TableDescriptor, error) {
	table := c.Params("table")
	td, err := h.registry.Descriptor(c.Context(), h.store.Pool, table)
	if err != nil {
		if errors.Is(err, metadata.ErrSchemaFetch) || errors.Is(err, store.ErrUndefinedTable) {
			return nil, respondError(c, SchemaFetchError(table))
		}
		return nil, fmt.Errorf("resolve table %s: %w", table, err)
	}
	return td, nil
}

func parseQueryOptions(c *fiber.Ctx, td *metadata.TableDescriptor) QueryOptions {
	opts := QueryOptions{
		SearchText: c.Query("search"),
		Page:       1,
	}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			opts.Page = v
		}
	}

	if cols := c.Query("columns"); cols != "" {
		for _, name := range strings.Split(cols, ",") {
			name = strings.TrimSpace(name)
			if name != "" && td.HasColumn(name) {
				opts.VisibleColumns = append(opts.VisibleColumns, name)
			}
		}
	}

	// filter[column]=value
	for key, vals := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		column := key[7 : len(key)-1]
		if !td.HasColumn(column) {
			continue
		}
		opts.Filters = append(opts.Filters, AttributeFilter{Column: column, Value: vals})
	}

	return opts
}

func handleMutationError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respondError(c, appErr)
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return respondError(c, ConflictError("A record with this value already exists"))
	}
	if errors.Is(err, store.ErrNotFound) {
		return respondError(c, NewAppError("NOT_FOUND", 404, "Record not found"))
	}
	return err
}
