package admin

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"tablekit-backend/internal/instrument"
	"tablekit-backend/internal/table"
)

// Handler exposes a read-only introspection surface over the registered
// table definitions plus the recorded operation events. Definitions live
// in code, so there is no write side.
type Handler struct {
	registry *table.Registry
	events   *instrument.EventHandler
}

func NewHandler(reg *table.Registry, events *instrument.EventHandler) *Handler {
	return &Handler{registry: reg, events: events}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler) {
	admin := app.Group("/api/_admin", h.requireAdmin)

	admin.Get("/tables", h.ListTables)
	admin.Get("/tables/:name", h.GetTable)
	if h.events != nil {
		admin.Get("/events", h.events.List)
	}
}

func (h *Handler) requireAdmin(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(*table.UserContext)
	if user == nil || !user.IsAdmin() {
		return c.Status(403).JSON(fiber.Map{"error": fiber.Map{"code": "FORBIDDEN", "message": "Admin access required"}})
	}
	return c.Next()
}

// ListTables handles GET /api/_admin/tables: a summary of every
// registered definition, sorted by name.
func (h *Handler) ListTables(c *fiber.Ctx) error {
	defs := h.registry.All()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	out := make([]fiber.Map, 0, len(defs))
	for _, def := range defs {
		out = append(out, fiber.Map{
			"name":         def.Name,
			"table":        def.Table,
			"keyColumn":    def.KeyColumn,
			"columns":      len(def.Columns),
			"filters":      len(def.Filters),
			"actions":      len(def.Actions),
			"bulkActions":  len(def.BulkActions),
			"exports":      len(def.Exports),
			"viewsEnabled": def.Config.ViewsEnabled,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetTable handles GET /api/_admin/tables/:name: the full serializable
// shape of one definition.
func (h *Handler) GetTable(c *fiber.Ctx) error {
	name := c.Params("name")
	def := h.registry.Get(name)
	if def == nil {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Table not found: " + name}})
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"name":        def.Name,
		"table":       def.Table,
		"keyColumn":   def.KeyColumn,
		"config":      def.Config,
		"columns":     def.Columns,
		"filters":     def.Filters,
		"actions":     def.Actions,
		"bulkActions": def.BulkActions,
		"exports":     def.Exports,
		"emptyState":  def.EmptyState,
	}})
}
