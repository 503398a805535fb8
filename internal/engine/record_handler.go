package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

// GetRecord handles GET /tables/:table/record/:id.
func (h *Handler) GetRecord(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	record, err := fetchRecord(c.Context(), h.store.Pool, td, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(td.Table, id))
		}
		return fmt.Errorf("get %s/%s: %w", td.Table, id, err)
	}

	if user := getUser(c); h.visibility != nil && !h.visibility.CanSee(td.Table, user, record) {
		return respondError(c, ForbiddenError(fmt.Sprintf("No access to %s/%s", td.Table, id)))
	}

	return c.JSON(fiber.Map{"data": record})
}

// UpdateRecord handles PUT /tables/:table/record/:id — the generic field
// patch. Status is stripped here; it only moves through ChangeStatus.
func (h *Handler) UpdateRecord(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var patch Record
	if err := c.BodyParser(&patch); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	id := c.Params("id")
	record, err := SaveRecord(c.Context(), h.store, td, id, patch, getUser(c))
	if err != nil {
		return handleMutationError(c, mutationError(td.Table, id, err))
	}
	return c.JSON(fiber.Map{"data": record})
}

// CreateRecord handles POST /tables/:table/record.
func (h *Handler) CreateRecord(c *fiber.Ctx) error {
	return h.createRecord(c, getUser(c))
}

// PublicCreate handles POST /tables/:table/record/create — the
// unauthenticated intake form variant. The CREATE audit entry carries no
// actor.
func (h *Handler) PublicCreate(c *fiber.Ctx) error {
	return h.createRecord(c, nil)
}

func (h *Handler) createRecord(c *fiber.Ctx, user *metadata.UserContext) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var fields Record
	if err := c.BodyParser(&fields); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	record, err := CreateRecord(c.Context(), h.store, td, fields, user)
	if err != nil {
		return handleMutationError(c, mutationError(td.Table, "", err))
	}
	return c.Status(201).JSON(fiber.Map{"data": record})
}

// ChangeStatus handles PUT /tables/:table/record/:id/status.
func (h *Handler) ChangeStatus(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	id := c.Params("id")
	record, err := ChangeStatus(c.Context(), h.store, td, id, body.Status, getUser(c))
	if err != nil {
		return handleMutationError(c, mutationError(td.Table, id, err))
	}
	return c.JSON(fiber.Map{"data": record})
}

// Completion handles GET /tables/:table/record/:id/completion.
func (h *Handler) Completion(c *fiber.Ctx) error {
	td, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	record, err := fetchRecord(c.Context(), h.store.Pool, td, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(td.Table, id))
		}
		return fmt.Errorf("get %s/%s: %w", td.Table, id, err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"completion": ComputeCompletion(record, td)}})
}

// History handles GET /tables/:table/record/:id/history.
func (h *Handler) History(c *fiber.Ctx) error {
	table := c.Params("table")
	id := c.Params("id")

	entries, err := LoadHistory(c.Context(), h.store.Pool, table, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entries})
}

// ListComments handles GET /tables/:table/record/:id/comments.
func (h *Handler) ListComments(c *fiber.Ctx) error {
	comments, err := ListComments(c.Context(), h.store.Pool, c.Params("table"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": comments})
}

// AddComment handles POST /tables/:table/record/:id/comments.
func (h *Handler) AddComment(c *fiber.Ctx) error {
	var body struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	comment, err := AddComment(c.Context(), h.store, c.Params("table"), c.Params("id"), body.Body, getUser(c))
	if err != nil {
		return handleMutationError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"data": comment})
}
