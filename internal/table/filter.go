package table

import "fmt"

type FilterType string

const (
	FilterText     FilterType = "text"
	FilterNumeric  FilterType = "numeric"
	FilterSet      FilterType = "set"
	FilterDate     FilterType = "date"
	FilterDateTime FilterType = "datetime"
	FilterBoolean  FilterType = "boolean"
)

// Clause is a filter operator token as it appears in requests.
type Clause string

const (
	ClauseEq       Clause = "eq"
	ClauseNeq      Clause = "neq"
	ClauseLike     Clause = "like"
	ClauseILike    Clause = "ilike"
	ClauseGt       Clause = "gt"
	ClauseGte      Clause = "gte"
	ClauseLt       Clause = "lt"
	ClauseLte      Clause = "lte"
	ClauseIn       Clause = "in"
	ClauseNotIn    Clause = "not_in"
	ClauseBetween  Clause = "between"
	ClauseEmpty    Clause = "empty"
	ClauseNotEmpty Clause = "not_empty"
)

// allowedClauses defines the clause vocabulary per filter type.
var allowedClauses = map[FilterType][]Clause{
	FilterText:     {ClauseEq, ClauseNeq, ClauseLike, ClauseILike, ClauseEmpty, ClauseNotEmpty},
	FilterNumeric:  {ClauseEq, ClauseNeq, ClauseGt, ClauseGte, ClauseLt, ClauseLte, ClauseBetween, ClauseEmpty, ClauseNotEmpty},
	FilterSet:      {ClauseEq, ClauseNeq, ClauseIn, ClauseNotIn, ClauseEmpty, ClauseNotEmpty},
	FilterDate:     {ClauseEq, ClauseNeq, ClauseGt, ClauseGte, ClauseLt, ClauseLte, ClauseBetween, ClauseEmpty, ClauseNotEmpty},
	FilterDateTime: {ClauseEq, ClauseNeq, ClauseGt, ClauseGte, ClauseLt, ClauseLte, ClauseBetween, ClauseEmpty, ClauseNotEmpty},
	FilterBoolean:  {ClauseEq},
}

type FilterOption struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

type Filter struct {
	Field         string         `json:"field"`
	Type          FilterType     `json:"type"`
	Label         string         `json:"label"`
	Clauses       []Clause       `json:"clauses"`
	DefaultClause Clause         `json:"defaultClause"`
	Options       []FilterOption `json:"options,omitempty"`
	Min           *float64       `json:"min,omitempty"`
	Max           *float64       `json:"max,omitempty"`
	Nullable      bool           `json:"nullable"`
}

// HasClause reports whether the filter accepts the given operator.
func (f *Filter) HasClause(c Clause) bool {
	for _, fc := range f.Clauses {
		if fc == c {
			return true
		}
	}
	return false
}

func (f *Filter) validate() error {
	allowed, ok := allowedClauses[f.Type]
	if !ok {
		return fmt.Errorf("filter %s: unknown type %q", f.Field, f.Type)
	}
	if len(f.Clauses) == 0 {
		return fmt.Errorf("filter %s: at least one clause required", f.Field)
	}
	for _, c := range f.Clauses {
		if !clauseAllowed(allowed, c) {
			return fmt.Errorf("filter %s: clause %q not valid for type %q", f.Field, c, f.Type)
		}
	}
	if f.DefaultClause == "" {
		f.DefaultClause = f.Clauses[0]
	}
	if !f.HasClause(f.DefaultClause) {
		return fmt.Errorf("filter %s: default clause %q not in clause set", f.Field, f.DefaultClause)
	}
	return nil
}

func clauseAllowed(allowed []Clause, c Clause) bool {
	for _, a := range allowed {
		if a == c {
			return true
		}
	}
	return false
}
