package engine

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"tablekit-backend/internal/instrument"
	"tablekit-backend/internal/table"
)

type Handler struct {
	registry  *table.Registry
	assembler *Assembler
	executor  *Executor
	events    instrument.Recorder
}

func NewHandler(reg *table.Registry, assembler *Assembler, executor *Executor, events instrument.Recorder) *Handler {
	if events == nil {
		events = instrument.Noop{}
	}
	return &Handler{registry: reg, assembler: assembler, executor: executor, events: events}
}

// record emits one operation event; failures carry the error code.
func (h *Handler) record(c *fiber.Ctx, kind, tableName, name string, start time.Time, appErr *AppError, rows int) {
	event := instrument.Event{
		TableName:  tableName,
		Kind:       kind,
		Name:       name,
		Status:     instrument.StatusOK,
		DurationMs: time.Since(start).Milliseconds(),
		RowCount:   rows,
	}
	if user := getUser(c); user != nil {
		event.UserID = user.ID
	}
	if appErr != nil {
		event.Status = instrument.StatusError
		event.Code = appErr.Code
	}
	h.events.Record(event)
}

// Resource handles GET /api/tables/:table
func (h *Handler) Resource(c *fiber.Ctx) error {
	def := h.registry.Get(c.Params("table"))
	if def == nil {
		return respondError(c, UnknownTableError(c.Params("table")))
	}

	start := time.Now()
	raw := expandQuery(c.Queries())
	res, appErr := h.assembler.Build(c.Context(), def, raw, getUser(c))
	if appErr != nil {
		h.record(c, instrument.KindResource, def.Name, "", start, appErr, 0)
		return respondError(c, appErr)
	}
	h.record(c, instrument.KindResource, def.Name, "", start, nil, len(res.Data))
	return c.JSON(res)
}

type actionRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
	ID     string `json:"id"`
}

// Action handles POST /api/tables/action
func (h *Handler) Action(c *fiber.Ctx) error {
	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidParamsError("Invalid JSON body"))
	}

	def, _, appErr := h.executor.tokens.Verify(req.Token)
	if appErr != nil {
		return respondError(c, appErr)
	}

	start := time.Now()
	resp, appErr := h.executor.ExecuteAction(c.Context(), req.Token, req.Action, req.ID, getUser(c))
	h.record(c, instrument.KindAction, def.Name, req.Action, start, appErr, 1)
	if appErr != nil {
		return respondError(c, appErr)
	}
	return c.JSON(resp)
}

type bulkActionRequest struct {
	Token     string    `json:"token"`
	Action    string    `json:"action"`
	Selection Selection `json:"selection"`
	Filters   any       `json:"filters"`
}

// BulkAction handles POST /api/tables/bulk-action
func (h *Handler) BulkAction(c *fiber.Ctx) error {
	var req bulkActionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidParamsError("Invalid JSON body"))
	}

	// Filters can only be normalized once the token resolves the table.
	def, _, appErr := h.executor.tokens.Verify(req.Token)
	if appErr != nil {
		return respondError(c, appErr)
	}
	filters, err := ParseFilterClauses(req.Filters, def)
	if err != nil {
		var parseErr *AppError
		if errors.As(err, &parseErr) {
			return respondError(c, parseErr)
		}
		return respondError(c, InvalidParamsError(err.Error()))
	}

	start := time.Now()
	resp, appErr := h.executor.ExecuteBulk(c.Context(), req.Token, req.Action, req.Selection, filters, getUser(c))
	if appErr != nil {
		h.record(c, instrument.KindBulkAction, def.Name, req.Action, start, appErr, 0)
		return respondError(c, appErr)
	}
	h.record(c, instrument.KindBulkAction, def.Name, req.Action, start, nil, resp.Count)
	if !resp.Success {
		return c.Status(422).JSON(resp)
	}
	return c.JSON(resp)
}

// Export handles GET /api/tables/export
func (h *Handler) Export(c *fiber.Ctx) error {
	token := c.Query("token")
	exportName := c.Query("export")

	def, _, appErr := h.executor.tokens.Verify(token)
	if appErr != nil {
		return respondError(c, appErr)
	}

	raw := expandQuery(c.Queries())
	filters, err := ParseFilterClauses(raw["filters"], def)
	if err != nil {
		var parseErr *AppError
		if errors.As(err, &parseErr) {
			return respondError(c, parseErr)
		}
		return respondError(c, InvalidParamsError(err.Error()))
	}

	start := time.Now()
	file, appErr := h.executor.RunExport(c.Context(), token, exportName, filters, getUser(c))
	h.record(c, instrument.KindExport, def.Name, exportName, start, appErr, 0)
	if appErr != nil {
		return respondError(c, appErr)
	}

	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := file.WriteTo(w); err != nil {
			log.Printf("ERROR: stream export %s: %v", file.Filename, err)
		}
	})
	return nil
}

func getUser(c *fiber.Ctx) *table.UserContext {
	user, _ := c.Locals("user").(*table.UserContext)
	return user
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// expandQuery turns flat bracket-notation query keys into nested maps:
// "orders[page]" => raw["orders"]["page"], "filters[0][field]" =>
// raw["filters"]["0"]["field"], so the normalizer sees the same shape a
// JSON body would produce.
func expandQuery(queries map[string]string) map[string]any {
	raw := make(map[string]any, len(queries))
	for key, val := range queries {
		path := splitBracketKey(key)
		node := raw
		for i, part := range path {
			if i == len(path)-1 {
				node[part] = val
				break
			}
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
	}
	return raw
}

func splitBracketKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return []string{key}
	}
	parts := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' {
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			parts = append(parts, rest[1:])
			break
		}
		parts = append(parts, rest[1:close])
		rest = rest[close+1:]
	}
	return parts
}
