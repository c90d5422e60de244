package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tablekit-backend/internal/store"
	"tablekit-backend/internal/table"
)

// memSource is an in-memory Source so engine tests need no database.
type memSource struct {
	rows []table.Row
}

func (m *memSource) ValidateAndRun(_ context.Context, def *table.Definition, p Params) (*Page, []FieldError, error) {
	if errs := validateParams(def, p); len(errs) > 0 {
		return nil, errs, nil
	}

	rows := m.filtered(def, p.Filters, p.Search)
	if p.OrderBy != "" {
		sortRows(rows, p.OrderBy, p.OrderDirection)
	}

	total := len(rows)
	start := (p.Page - 1) * p.PageSize
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	window := rows[start:end]
	return &Page{Rows: window, Meta: BuildMeta(p, int64(total), len(window))}, nil, nil
}

func (m *memSource) FetchByID(_ context.Context, def *table.Definition, id string) (table.Row, error) {
	for _, row := range m.rows {
		if fmt.Sprintf("%v", row[def.KeyColumn]) == id {
			return row, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memSource) FetchByIDs(_ context.Context, def *table.Definition, ids []string) ([]table.Row, error) {
	var out []table.Row
	for _, id := range ids {
		if row, err := m.FetchByID(context.Background(), def, id); err == nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memSource) FetchFiltered(_ context.Context, def *table.Definition, filters []FilterClause, search, orderBy, orderDir string) ([]table.Row, error) {
	rows := m.filtered(def, filters, search)
	if orderBy != "" {
		sortRows(rows, orderBy, orderDir)
	}
	return rows, nil
}

func (m *memSource) filtered(def *table.Definition, filters []FilterClause, search string) []table.Row {
	var out []table.Row
	for _, row := range m.rows {
		if matchesAll(row, filters) && matchesSearch(def, row, search) {
			out = append(out, row)
		}
	}
	return out
}

func matchesAll(row table.Row, filters []FilterClause) bool {
	for _, f := range filters {
		if !matchClause(row[f.Field], f) {
			return false
		}
	}
	return true
}

func matchClause(v any, f FilterClause) bool {
	switch f.Op {
	case table.ClauseEq:
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", f.Value)
	case table.ClauseNeq:
		return fmt.Sprintf("%v", v) != fmt.Sprintf("%v", f.Value)
	case table.ClauseGt:
		return toF(v) > toF(f.Value)
	case table.ClauseGte:
		return toF(v) >= toF(f.Value)
	case table.ClauseLt:
		return toF(v) < toF(f.Value)
	case table.ClauseLte:
		return toF(v) <= toF(f.Value)
	case table.ClauseIn:
		items, _ := f.Value.([]any)
		for _, item := range items {
			if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", item) {
				return true
			}
		}
		return false
	case table.ClauseBetween:
		bounds, _ := f.Value.([]any)
		if len(bounds) != 2 {
			return false
		}
		return toF(v) >= toF(bounds[0]) && toF(v) <= toF(bounds[1])
	case table.ClauseEmpty:
		return v == nil
	case table.ClauseNotEmpty:
		return v != nil
	default:
		return false
	}
}

func matchesSearch(def *table.Definition, row table.Row, search string) bool {
	if search == "" {
		return true
	}
	for _, key := range def.SearchableColumns() {
		if strings.Contains(strings.ToLower(fmt.Sprintf("%v", row[key])), strings.ToLower(search)) {
			return true
		}
	}
	return false
}

func sortRows(rows []table.Row, field, dir string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][field], rows[j][field]
		var less bool
		if fa, fb := toF(a), toF(b); fa != 0 || fb != 0 {
			less = fa < fb
		} else {
			less = fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
		}
		if strings.EqualFold(dir, "desc") {
			return !less
		}
		return less
	})
}

func toF(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
