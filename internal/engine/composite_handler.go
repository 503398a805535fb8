package engine

import (
	"github.com/gofiber/fiber/v2"

	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

// CompositeHandler exposes the plan-level view over the characterization
// parent and its satellite tables.
type CompositeHandler struct {
	store    *store.Store
	registry *metadata.Registry
}

func NewCompositeHandler(s *store.Store, reg *metadata.Registry) *CompositeHandler {
	return &CompositeHandler{store: s, registry: reg}
}

// GetOrCreateSatellite handles POST /plans/:parentId/satellites/:satellite.
// The body supplies optional seed fields for a first-time create.
func (h *CompositeHandler) GetOrCreateSatellite(c *fiber.Ctx) error {
	seed := Record{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&seed); err != nil {
			return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
		}
	}

	record, err := GetOrCreateSatellite(c.Context(), h.store, h.registry,
		c.Params("parentId"), c.Params("satellite"), seed, getUser(c))
	if err != nil {
		return handleMutationError(c, err)
	}
	return c.JSON(fiber.Map{"data": record})
}

// Overview handles GET /plans/:parentId/overview.
func (h *CompositeHandler) Overview(c *fiber.Ctx) error {
	statuses, err := PlanOverview(c.Context(), h.store, h.registry, c.Params("parentId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statuses})
}

// TrainingProgress handles GET /plans/:parentId/training-progress. The
// first read creates the formulation satellite when absent, per the
// create-if-absent rule.
func (h *CompositeHandler) TrainingProgress(c *fiber.Ctx) error {
	record, err := GetOrCreateSatellite(c.Context(), h.store, h.registry,
		c.Params("parentId"), "formulation", Record{}, getUser(c))
	if err != nil {
		return handleMutationError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"progress": ChecklistProgress(record)}})
}

// Budget handles GET /plans/:parentId/budget.
func (h *CompositeHandler) Budget(c *fiber.Ctx) error {
	summary, err := LoadBudgetSummary(c.Context(), h.store.Pool, c.Params("parentId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// History handles GET /plans/:parentId/history — the merged audit trail
// of the parent and every existing satellite.
func (h *CompositeHandler) History(c *fiber.Ctx) error {
	entries, err := MergedHistory(c.Context(), h.store, h.registry, c.Params("parentId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entries})
}
