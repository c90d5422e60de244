package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"tablekit-backend/internal/store"
	"tablekit-backend/internal/table"
)

// QueryEcho is the executed query reflected back to the client, so
// normalizer corrections (clamped page size, applied default sort) are
// visible in the response.
type QueryEcho struct {
	OrderBy         []string       `json:"orderBy"`
	OrderDirections []string       `json:"orderDirections"`
	Page            int            `json:"page"`
	PageSize        int            `json:"pageSize"`
	Filters         []FilterClause `json:"filters"`
}

type Meta struct {
	CurrentPage     int       `json:"currentPage"`
	TotalPages      int       `json:"totalPages"`
	TotalCount      int64     `json:"totalCount"`
	PageSize        int       `json:"pageSize"`
	HasNextPage     bool      `json:"hasNextPage"`
	HasPreviousPage bool      `json:"hasPreviousPage"`
	NextPage        *int      `json:"nextPage"`
	PreviousPage    *int      `json:"previousPage"`
	StartCursor     string    `json:"startCursor,omitempty"`
	EndCursor       string    `json:"endCursor,omitempty"`
	Flop            QueryEcho `json:"flop"`
}

type Page struct {
	Rows []table.Row
	Meta Meta
}

// Source is the narrow contract the engine needs from the persistent
// store: a validated paginated query plus the id-based and unpaginated
// filtered fetches used by actions, selections and exports.
type Source interface {
	// ValidateAndRun executes the paginated query. Field-level problems
	// (unknown filter field, bad clause, bad value) come back as
	// FieldErrors; the error return is for infrastructure failure only.
	ValidateAndRun(ctx context.Context, def *table.Definition, p Params) (*Page, []FieldError, error)

	// FetchByID loads one row by primary key. Returns store.ErrNotFound
	// when the row does not exist.
	FetchByID(ctx context.Context, def *table.Definition, id string) (table.Row, error)

	// FetchByIDs loads the rows with the given primary keys, in key order.
	FetchByIDs(ctx context.Context, def *table.Definition, ids []string) ([]table.Row, error)

	// FetchFiltered loads every row matching the filters and search,
	// unpaginated, in the given sort order.
	FetchFiltered(ctx context.Context, def *table.Definition, filters []FilterClause, search, orderBy, orderDir string) ([]table.Row, error)
}

// SQLSource implements Source on a pgx connection pool.
type SQLSource struct {
	pool *pgxpool.Pool
}

func NewSQLSource(pool *pgxpool.Pool) *SQLSource {
	return &SQLSource{pool: pool}
}

type paramBuilder struct {
	params []any
	n      int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (s *SQLSource) ValidateAndRun(ctx context.Context, def *table.Definition, p Params) (*Page, []FieldError, error) {
	if errs := validateParams(def, p); len(errs) > 0 {
		return nil, errs, nil
	}

	pb := &paramBuilder{}
	where := buildWhere(def, p.Filters, p.Search, pb)

	sql := fmt.Sprintf("SELECT * FROM %s", def.Table)
	if where != "" {
		sql += " WHERE " + where
	}
	if p.OrderBy != "" {
		sql += fmt.Sprintf(" ORDER BY %s %s", p.OrderBy, sqlDirection(p.OrderDirection))
	}
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(p.PageSize), pb.Add((p.Page-1)*p.PageSize))

	rows, err := store.QueryRows(ctx, s.pool, sql, pb.params...)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", def.Name, err)
	}

	cb := &paramBuilder{}
	countWhere := buildWhere(def, p.Filters, p.Search, cb)
	countSQL := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", def.Table)
	if countWhere != "" {
		countSQL += " WHERE " + countWhere
	}
	countRow, err := store.QueryRow(ctx, s.pool, countSQL, cb.params...)
	if err != nil {
		return nil, nil, fmt.Errorf("count %s: %w", def.Name, err)
	}
	total, _ := countRow["count"].(int64)

	return &Page{Rows: rows, Meta: BuildMeta(p, total, len(rows))}, nil, nil
}

func (s *SQLSource) FetchByID(ctx context.Context, def *table.Definition, id string) (table.Row, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", def.Table, def.KeyColumn)
	return store.QueryRow(ctx, s.pool, sql, id)
}

func (s *SQLSource) FetchByIDs(ctx context.Context, def *table.Definition, ids []string) ([]table.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1) ORDER BY array_position($1, %s::text)",
		def.Table, def.KeyColumn, def.KeyColumn)
	return store.QueryRows(ctx, s.pool, sql, ids)
}

func (s *SQLSource) FetchFiltered(ctx context.Context, def *table.Definition, filters []FilterClause, search, orderBy, orderDir string) ([]table.Row, error) {
	pb := &paramBuilder{}
	where := buildWhere(def, filters, search, pb)

	sql := fmt.Sprintf("SELECT * FROM %s", def.Table)
	if where != "" {
		sql += " WHERE " + where
	}
	if orderBy != "" {
		sql += fmt.Sprintf(" ORDER BY %s %s", orderBy, sqlDirection(orderDir))
	}
	return store.QueryRows(ctx, s.pool, sql, pb.params...)
}

// validateParams checks filters and sort against the definition. Failures
// are recoverable FieldErrors, never Go errors.
func validateParams(def *table.Definition, p Params) []FieldError {
	var errs []FieldError
	for _, f := range p.Filters {
		flt := def.FilterByField(f.Field)
		if flt == nil {
			errs = append(errs, FieldError{Field: f.Field, Message: "unknown filter field"})
			continue
		}
		if !flt.HasClause(f.Op) {
			errs = append(errs, FieldError{Field: f.Field, Message: fmt.Sprintf("clause %s not allowed", f.Op)})
			continue
		}
		if f.Op == table.ClauseBetween {
			if vals, ok := f.Value.([]any); !ok || len(vals) != 2 {
				errs = append(errs, FieldError{Field: f.Field, Message: "between requires exactly two bounds"})
			}
		}
	}
	if p.OrderBy != "" && !def.Sortable(p.OrderBy) {
		errs = append(errs, FieldError{Field: p.OrderBy, Message: "not a sortable field"})
	}
	return errs
}

func buildWhere(def *table.Definition, filters []FilterClause, search string, pb *paramBuilder) string {
	var parts []string
	for _, f := range filters {
		parts = append(parts, buildClause(f, pb))
	}
	if search != "" {
		if cols := def.SearchableColumns(); len(cols) > 0 {
			var ors []string
			ph := pb.Add("%" + search + "%")
			for _, c := range cols {
				ors = append(ors, fmt.Sprintf("%s::text ILIKE %s", c, ph))
			}
			parts = append(parts, "("+strings.Join(ors, " OR ")+")")
		}
	}
	return strings.Join(parts, " AND ")
}

func buildClause(f FilterClause, pb *paramBuilder) string {
	switch f.Op {
	case table.ClauseEq:
		return fmt.Sprintf("%s = %s", f.Field, pb.Add(f.Value))
	case table.ClauseNeq:
		return fmt.Sprintf("%s != %s", f.Field, pb.Add(f.Value))
	case table.ClauseGt:
		return fmt.Sprintf("%s > %s", f.Field, pb.Add(f.Value))
	case table.ClauseGte:
		return fmt.Sprintf("%s >= %s", f.Field, pb.Add(f.Value))
	case table.ClauseLt:
		return fmt.Sprintf("%s < %s", f.Field, pb.Add(f.Value))
	case table.ClauseLte:
		return fmt.Sprintf("%s <= %s", f.Field, pb.Add(f.Value))
	case table.ClauseLike:
		return fmt.Sprintf("%s LIKE %s", f.Field, pb.Add(f.Value))
	case table.ClauseILike:
		return fmt.Sprintf("%s ILIKE %s", f.Field, pb.Add(f.Value))
	case table.ClauseIn:
		return fmt.Sprintf("%s = ANY(%s)", f.Field, pb.Add(toSlice(f.Value)))
	case table.ClauseNotIn:
		return fmt.Sprintf("%s != ALL(%s)", f.Field, pb.Add(toSlice(f.Value)))
	case table.ClauseBetween:
		// two explicit bounds, inclusive on both ends; anything else was
		// rejected during validation, so treat it as no match
		vals, ok := f.Value.([]any)
		if !ok || len(vals) != 2 {
			return "FALSE"
		}
		return fmt.Sprintf("%s >= %s AND %s <= %s", f.Field, pb.Add(vals[0]), f.Field, pb.Add(vals[1]))
	case table.ClauseEmpty:
		return fmt.Sprintf("%s IS NULL", f.Field)
	case table.ClauseNotEmpty:
		return fmt.Sprintf("%s IS NOT NULL", f.Field)
	default:
		return fmt.Sprintf("%s = %s", f.Field, pb.Add(f.Value))
	}
}

func toSlice(v any) any {
	if s, ok := v.([]any); ok {
		return s
	}
	return []any{v}
}

func sqlDirection(dir string) string {
	if strings.EqualFold(dir, "desc") {
		return "DESC"
	}
	return "ASC"
}

// BuildMeta derives pagination metadata from the executed parameters.
func BuildMeta(p Params, total int64, rowCount int) Meta {
	totalPages := 0
	if p.PageSize > 0 {
		totalPages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	}
	m := Meta{
		CurrentPage: p.Page,
		TotalPages:  totalPages,
		TotalCount:  total,
		PageSize:    p.PageSize,
		Flop: QueryEcho{
			OrderBy:         []string{},
			OrderDirections: []string{},
			Page:            p.Page,
			PageSize:        p.PageSize,
			Filters:         p.Filters,
		},
	}
	if p.OrderBy != "" {
		m.Flop.OrderBy = []string{p.OrderBy}
		m.Flop.OrderDirections = []string{p.OrderDirection}
	}
	if p.Page < totalPages {
		m.HasNextPage = true
		next := p.Page + 1
		m.NextPage = &next
	}
	if p.Page > 1 {
		m.HasPreviousPage = true
		prev := p.Page - 1
		m.PreviousPage = &prev
	}
	if rowCount > 0 {
		first := (p.Page - 1) * p.PageSize
		m.StartCursor = offsetCursor(first)
		m.EndCursor = offsetCursor(first + rowCount - 1)
	}
	return m
}

func offsetCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("offset:%d", offset)))
}
