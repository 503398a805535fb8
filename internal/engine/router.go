package engine

import "github.com/gofiber/fiber/v2"

// RegisterPublicRoutes mounts the unauthenticated intake form endpoint.
// Must be registered before the auth middleware.
func RegisterPublicRoutes(app *fiber.App, h *Handler) {
	app.Post("/tables/:table/record/create", h.PublicCreate)
}

// RegisterTableRoutes mounts the dynamic table surface.
func RegisterTableRoutes(app *fiber.App, h *Handler, fh *FileHandler, authMW fiber.Handler) {
	tables := app.Group("/tables", authMW)

	tables.Get("/:table/fields", h.Fields)
	tables.Get("/:table/records", h.ListRecords)
	tables.Get("/:table/related-data", h.RelatedData)
	tables.Get("/:table/field-options/:column", h.FieldOptions)
	tables.Put("/:table/bulk-update", h.BulkUpdate)
	tables.Get("/:table/view-prefs", h.GetViewPrefs)
	tables.Put("/:table/view-prefs", h.PutViewPrefs)

	tables.Post("/:table/record", h.CreateRecord)
	tables.Get("/:table/record/:id", h.GetRecord)
	tables.Put("/:table/record/:id", h.UpdateRecord)
	tables.Put("/:table/record/:id/status", h.ChangeStatus)
	tables.Get("/:table/record/:id/completion", h.Completion)
	tables.Get("/:table/record/:id/history", h.History)
	tables.Get("/:table/record/:id/comments", h.ListComments)
	tables.Post("/:table/record/:id/comments", h.AddComment)

	tables.Get("/:table/record/:id/file", fh.List)
	tables.Post("/:table/record/:id/file", fh.Upload)
	tables.Get("/:table/record/:id/file/:fileId/content", fh.Content)
	tables.Delete("/:table/record/:id/file/:fileId", fh.Delete)
	tables.Put("/:table/record/:id/file/:fileId/compliance", fh.SetCompliance)
}

// RegisterPlanRoutes mounts the composite plan surface.
func RegisterPlanRoutes(app *fiber.App, h *CompositeHandler, authMW fiber.Handler) {
	plans := app.Group("/plans", authMW)

	plans.Post("/:parentId/satellites/:satellite", h.GetOrCreateSatellite)
	plans.Get("/:parentId/overview", h.Overview)
	plans.Get("/:parentId/training-progress", h.TrainingProgress)
	plans.Get("/:parentId/budget", h.Budget)
	plans.Get("/:parentId/history", h.History)
}
