package instrument

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablekit-backend/internal/store"
)

// EventHandler exposes a read endpoint over recorded table events.
type EventHandler struct {
	pool *pgxpool.Pool
}

func NewEventHandler(pool *pgxpool.Pool) *EventHandler {
	return &EventHandler{pool: pool}
}

// List handles GET /_admin/events: recent events, newest first, filterable
// by table, kind and status.
func (h *EventHandler) List(c *fiber.Ctx) error {
	var conditions []string
	var args []any

	addFilter := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addFilter("table_name", c.Query("table"))
	addFilter("kind", c.Query("kind"))
	addFilter("status", c.Query("status"))

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	sqlStr := "SELECT id, table_name, kind, name, user_id, status, code, duration_ms, row_count, metadata, created_at FROM _table_events"
	for i, cond := range conditions {
		if i == 0 {
			sqlStr += " WHERE " + cond
		} else {
			sqlStr += " AND " + cond
		}
	}
	args = append(args, limit)
	sqlStr += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := store.QueryRows(c.Context(), h.pool, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}
