package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tablekit-backend/internal/table"
)

// FilterClause is one normalized filter condition.
type FilterClause struct {
	Field string       `json:"field"`
	Op    table.Clause `json:"op"`
	Value any          `json:"value"`
}

// Params is the canonical query parameter set consumed by the query engine.
type Params struct {
	Page           int            `json:"page"`
	PageSize       int            `json:"pageSize"`
	OrderBy        string         `json:"orderBy,omitempty"`
	OrderDirection string         `json:"orderDirection,omitempty"`
	Filters        []FilterClause `json:"filters"`
	Search         string         `json:"search,omitempty"`
}

// knownClauses is the full operator vocabulary; unknown tokens are a hard
// error rather than a per-field validation failure.
var knownClauses = map[table.Clause]bool{
	table.ClauseEq: true, table.ClauseNeq: true,
	table.ClauseLike: true, table.ClauseILike: true,
	table.ClauseGt: true, table.ClauseGte: true,
	table.ClauseLt: true, table.ClauseLte: true,
	table.ClauseIn: true, table.ClauseNotIn: true,
	table.ClauseBetween: true, table.ClauseEmpty: true, table.ClauseNotEmpty: true,
}

// Normalize parses raw request parameters into canonical Params for one
// table. When raw contains a non-empty sub-map keyed by the table name,
// parameters are read from it, so several tables can share one request
// without prefix collisions. Normalizing an already-normalized parameter
// set returns it unchanged.
func Normalize(raw map[string]any, def *table.Definition) (Params, error) {
	if sub, ok := raw[def.Name].(map[string]any); ok && len(sub) > 0 {
		raw = sub
	}

	p := Params{
		Page:     intParam(raw["page"], 1),
		PageSize: intParam(raw["page_size"], def.Config.DefaultPerPage),
		Filters:  []FilterClause{},
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = def.Config.DefaultPerPage
	}
	if max := maxPerPage(def.Config.PerPageOptions); p.PageSize > max {
		p.PageSize = max
	}

	p.OrderBy, p.OrderDirection = parseSort(raw, def)

	if s, ok := raw["search"].(string); ok {
		p.Search = s
	}

	filters, err := parseFilters(raw["filters"], def)
	if err != nil {
		return Params{}, err
	}
	p.Filters = filters

	return p, nil
}

// parseSort resolves the sort from, in order of precedence: the compact
// "sort" string ("-name" or "name:desc"), discrete order_by/order_direction
// parameters, or the table's configured default.
func parseSort(raw map[string]any, def *table.Definition) (string, string) {
	if s, ok := raw["sort"].(string); ok && s != "" {
		field := strings.TrimSpace(s)
		dir := "asc"
		if strings.HasPrefix(field, "-") {
			dir = "desc"
			field = field[1:]
		} else if i := strings.IndexByte(field, ':'); i >= 0 {
			if d := strings.ToLower(field[i+1:]); d == "desc" {
				dir = "desc"
			}
			field = field[:i]
		}
		return field, dir
	}

	if f, ok := raw["order_by"].(string); ok && f != "" {
		dir := "asc"
		if d, ok := raw["order_direction"].(string); ok && strings.EqualFold(d, "desc") {
			dir = "desc"
		}
		return f, dir
	}

	if def.Config.DefaultSort != nil {
		dir := def.Config.DefaultSort.Direction
		if dir == "" {
			dir = "asc"
		}
		return def.Config.DefaultSort.Field, strings.ToLower(dir)
	}
	return "", ""
}

// ParseFilterClauses normalizes a raw filters value (indexed list or
// shorthand map) for callers outside the resource build, e.g. bulk-action
// and export requests carrying their own current filters.
func ParseFilterClauses(v any, def *table.Definition) ([]FilterClause, error) {
	return parseFilters(v, def)
}

// parseFilters accepts either an indexed list of {field, op, value} entries
// or a flat shorthand map treated as equality filters. Ambiguous encodings
// are treated as an indexed list when the first key looks like a small
// integer and its value is a map containing a "field" key.
func parseFilters(v any, def *table.Definition) ([]FilterClause, error) {
	switch fv := v.(type) {
	case nil:
		return []FilterClause{}, nil
	case []any:
		return parseFilterList(fv, def)
	case []FilterClause:
		out := make([]FilterClause, 0, len(fv))
		for _, c := range fv {
			norm, err := normalizeClause(c.Field, string(c.Op), c.Value, def)
			if err != nil {
				return nil, err
			}
			out = append(out, norm)
		}
		return out, nil
	case map[string]any:
		if isIndexedFilterMap(fv) {
			return parseFilterList(indexedValues(fv), def)
		}
		return parseShorthand(fv, def)
	default:
		return nil, InvalidParamsError(fmt.Sprintf("unsupported filters encoding: %T", v))
	}
}

func parseFilterList(items []any, def *table.Definition) ([]FilterClause, error) {
	out := make([]FilterClause, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, InvalidParamsError("filter entries must be objects")
		}
		field, _ := m["field"].(string)
		if field == "" {
			return nil, InvalidParamsError("filter entry missing field")
		}
		op, _ := m["op"].(string)
		clause, err := normalizeClause(field, op, m["value"], def)
		if err != nil {
			return nil, err
		}
		out = append(out, clause)
	}
	return out, nil
}

func parseShorthand(m map[string]any, def *table.Definition) ([]FilterClause, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]FilterClause, 0, len(keys))
	for _, k := range keys {
		clause, err := normalizeClause(k, "", m[k], def)
		if err != nil {
			return nil, err
		}
		out = append(out, clause)
	}
	return out, nil
}

func normalizeClause(field, op string, value any, def *table.Definition) (FilterClause, error) {
	if op == "" {
		if f := def.FilterByField(field); f != nil {
			op = string(f.DefaultClause)
		} else {
			op = string(table.ClauseEq)
		}
	}
	if !knownClauses[table.Clause(op)] {
		return FilterClause{}, InvalidParamsError(fmt.Sprintf("unknown filter operator: %s", op))
	}
	// Bracketed query arrays (value[0]=a&value[1]=b) decode as maps with
	// integer keys; multi-value operators need them back as ordered slices.
	if m, ok := value.(map[string]any); ok {
		if s, ok := sliceFromIndexedMap(m); ok {
			value = s
		}
	}
	return FilterClause{Field: field, Op: table.Clause(op), Value: value}, nil
}

// sliceFromIndexedMap converts a map whose keys are all integers into a
// slice ordered by key. Maps with any non-integer key are left alone.
func sliceFromIndexedMap(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	type kv struct {
		idx int
		val any
	}
	entries := make([]kv, 0, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 {
			return nil, false
		}
		entries = append(entries, kv{idx: n, val: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.val
	}
	return out, true
}

// isIndexedFilterMap applies the disambiguation rule for filter maps that
// arrived with string keys: index-like first key whose value is a map with
// a "field" entry means indexed list, anything else means shorthand.
func isIndexedFilterMap(m map[string]any) bool {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return false
	}
	n, err := strconv.Atoi(keys[0])
	if err != nil || n < 0 || n > 1000 {
		return false
	}
	inner, ok := m[keys[0]].(map[string]any)
	if !ok {
		return false
	}
	_, hasField := inner["field"]
	return hasField
}

func indexedValues(m map[string]any) []any {
	type kv struct {
		idx int
		val any
	}
	entries := make([]kv, 0, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		entries = append(entries, kv{idx: n, val: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.val
	}
	return out
}

func intParam(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

func maxPerPage(options []int) int {
	max := 0
	for _, o := range options {
		if o > max {
			max = o
		}
	}
	if max == 0 {
		max = 100
	}
	return max
}
