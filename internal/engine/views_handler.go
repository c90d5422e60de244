package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"tablekit-backend/internal/store"
	"tablekit-backend/internal/table"
	"tablekit-backend/internal/views"
)

// ViewStore is the persistence surface underlying the saved-view
// endpoints, satisfied by views.Repository.
type ViewStore interface {
	ListVisible(ctx context.Context, tableName, ownerID string) ([]views.View, error)
	Get(ctx context.Context, id, ownerID string) (*views.View, error)
	Create(ctx context.Context, v *views.View) error
	Update(ctx context.Context, v *views.View, ownerID string) error
	Delete(ctx context.Context, id, ownerID string) error
	SetDefault(ctx context.Context, id, ownerID string) error
	ClearDefault(ctx context.Context, id, ownerID string) error
}

// ViewsHandler exposes saved-view CRUD for tables that enable views.
type ViewsHandler struct {
	registry *table.Registry
	repo     ViewStore
}

func NewViewsHandler(reg *table.Registry, repo ViewStore) *ViewsHandler {
	return &ViewsHandler{registry: reg, repo: repo}
}

// List handles GET /api/tables/:table/views
func (h *ViewsHandler) List(c *fiber.Ctx) error {
	def, user, appErr := h.resolve(c)
	if appErr != nil {
		return respondError(c, appErr)
	}

	list, err := h.repo.ListVisible(c.Context(), def.Name, user.ID)
	if err != nil {
		return respondError(c, notFoundToAppErr(err, def.Name, ""))
	}
	if list == nil {
		list = []views.View{}
	}
	return c.JSON(fiber.Map{"data": list})
}

type viewRequest struct {
	Name     string   `json:"name"`
	IsPublic bool     `json:"isPublic"`
	Filters  any      `json:"filters"`
	Sort     any      `json:"sort"`
	Columns  []string `json:"columns"`
	PerPage  int      `json:"perPage"`
	// pointer so an omitted flag leaves the stored default untouched
	IsDefault *bool `json:"isDefault"`
}

// Create handles POST /api/tables/:table/views
func (h *ViewsHandler) Create(c *fiber.Ctx) error {
	def, user, appErr := h.resolve(c)
	if appErr != nil {
		return respondError(c, appErr)
	}

	var req viewRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidParamsError("Invalid JSON body"))
	}
	if req.Name == "" {
		return respondError(c, InvalidParamsError("View name is required"))
	}

	v := &views.View{
		Name:      req.Name,
		TableName: def.Name,
		OwnerID:   user.ID,
		IsPublic:  req.IsPublic,
		Filters:   marshalRaw(req.Filters),
		Sort:      marshalRaw(req.Sort),
		Columns:   req.Columns,
		PerPage:   req.PerPage,
	}
	if err := h.repo.Create(c.Context(), v); err != nil {
		return respondError(c, viewWriteError(err, def.Name))
	}
	if req.IsDefault != nil && *req.IsDefault {
		if err := h.repo.SetDefault(c.Context(), v.ID, user.ID); err != nil {
			return respondError(c, viewWriteError(err, def.Name))
		}
		v.IsDefault = true
	}
	return c.Status(201).JSON(fiber.Map{"data": v})
}

// Update handles PUT /api/tables/:table/views/:id
func (h *ViewsHandler) Update(c *fiber.Ctx) error {
	def, user, appErr := h.resolve(c)
	if appErr != nil {
		return respondError(c, appErr)
	}

	var req viewRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidParamsError("Invalid JSON body"))
	}

	v := &views.View{
		ID:       c.Params("id"),
		Name:     req.Name,
		IsPublic: req.IsPublic,
		Filters:  marshalRaw(req.Filters),
		Sort:     marshalRaw(req.Sort),
		Columns:  req.Columns,
		PerPage:  req.PerPage,
	}
	if err := h.repo.Update(c.Context(), v, user.ID); err != nil {
		return respondError(c, viewWriteError(err, def.Name))
	}
	if req.IsDefault != nil {
		var err error
		if *req.IsDefault {
			err = h.repo.SetDefault(c.Context(), v.ID, user.ID)
		} else {
			err = h.repo.ClearDefault(c.Context(), v.ID, user.ID)
		}
		if err != nil {
			return respondError(c, viewWriteError(err, def.Name))
		}
	}
	updated, err := h.repo.Get(c.Context(), v.ID, user.ID)
	if err != nil {
		return respondError(c, viewWriteError(err, def.Name))
	}
	return c.JSON(fiber.Map{"data": updated})
}

// Delete handles DELETE /api/tables/:table/views/:id
func (h *ViewsHandler) Delete(c *fiber.Ctx) error {
	_, user, appErr := h.resolve(c)
	if appErr != nil {
		return respondError(c, appErr)
	}

	id := c.Params("id")
	if err := h.repo.Delete(c.Context(), id, user.ID); err != nil {
		return respondError(c, viewWriteError(err, id))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// SetDefault handles POST /api/tables/:table/views/:id/default
func (h *ViewsHandler) SetDefault(c *fiber.Ctx) error {
	_, user, appErr := h.resolve(c)
	if appErr != nil {
		return respondError(c, appErr)
	}

	id := c.Params("id")
	if err := h.repo.SetDefault(c.Context(), id, user.ID); err != nil {
		return respondError(c, viewWriteError(err, id))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "isDefault": true}})
}

func (h *ViewsHandler) resolve(c *fiber.Ctx) (*table.Definition, *table.UserContext, *AppError) {
	def := h.registry.Get(c.Params("table"))
	if def == nil {
		return nil, nil, UnknownTableError(c.Params("table"))
	}
	if !def.Config.ViewsEnabled {
		return nil, nil, NewAppError("VIEWS_DISABLED", 404, "Saved views are not enabled for this table")
	}
	user := getUser(c)
	if user == nil {
		return nil, nil, UnauthorizedError("Authentication required")
	}
	return def, user, nil
}

func viewWriteError(err error, subject string) *AppError {
	switch {
	case errors.Is(err, views.ErrNotOwner):
		return ForbiddenError("Only the owner can modify this view")
	case errors.Is(err, store.ErrUniqueViolation):
		return NewAppError("CONFLICT", 409, "A view with this name already exists")
	default:
		return notFoundToAppErr(err, "view", subject)
	}
}

func notFoundToAppErr(err error, tableName, id string) *AppError {
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(tableName, id)
	}
	log.Printf("ERROR: %v", err)
	return NewAppError("INTERNAL_ERROR", 500, "Internal server error")
}

func marshalRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
