package engine

import "github.com/gofiber/fiber/v2"

// RegisterTableRoutes mounts the table resource and execution surface.
// The action, bulk-action and export endpoints derive their table from the
// capability token rather than the path.
func RegisterTableRoutes(app *fiber.App, h *Handler, vh *ViewsHandler, middleware ...fiber.Handler) {
	api := app.Group("/api/tables")
	for _, mw := range middleware {
		api.Use(mw)
	}

	api.Post("/action", h.Action)
	api.Post("/bulk-action", h.BulkAction)
	api.Get("/export", h.Export)

	api.Get("/:table", h.Resource)
	api.Get("/:table/views", vh.List)
	api.Post("/:table/views", vh.Create)
	api.Put("/:table/views/:id", vh.Update)
	api.Delete("/:table/views/:id", vh.Delete)
	api.Post("/:table/views/:id/default", vh.SetDefault)
}
