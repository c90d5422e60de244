package engine

import (
	"context"
	"errors"
	"log"

	"tablekit-backend/internal/table"
	"tablekit-backend/internal/views"
)

// ViewsLister provides the saved views visible to one user for one table.
type ViewsLister interface {
	ListVisible(ctx context.Context, tableName, ownerID string) ([]views.View, error)
}

// ResourceError carries a recoverable query validation failure inside a
// still-renderable resource.
type ResourceError struct {
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields"`
}

// State is the dynamic request state, derived from the actually executed
// query so normalizer corrections echo back to the client.
type State struct {
	Sort    *table.Sort    `json:"sort"`
	Filters []FilterClause `json:"filters"`
	Page    int            `json:"page"`
	PerPage int            `json:"perPage"`
	Search  string         `json:"search"`
	Columns []string       `json:"columns"`
}

type ViewsSection struct {
	Enabled bool         `json:"enabled"`
	List    []views.View `json:"list"`
	Current *string      `json:"current"`
}

// Resource is the full serialized payload a client renders a table from.
type Resource struct {
	Name              string             `json:"name"`
	Token             string             `json:"token"`
	PerPageOptions    []int              `json:"perPageOptions"`
	StickyHeader      bool               `json:"stickyHeader"`
	Searchable        []string           `json:"searchable"`
	SearchPlaceholder string             `json:"searchPlaceholder,omitempty"`
	Error             *ResourceError     `json:"error,omitempty"`
	Data              []table.Row        `json:"data"`
	Meta              Meta               `json:"meta"`
	State             State              `json:"state"`
	Columns           []table.Column     `json:"columns"`
	Filters           []table.Filter     `json:"filters"`
	Actions           []table.Action     `json:"actions"`
	BulkActions       []table.BulkAction `json:"bulkActions"`
	Exports           []table.Export     `json:"exports"`
	EmptyState        *table.EmptyState  `json:"emptyState"`
	Views             ViewsSection       `json:"views"`
}

// Assembler composes normalization, the query engine and the row pipeline
// into one resource payload. It is stateless; every build re-executes the
// full pipeline and mints a fresh token.
type Assembler struct {
	source Source
	tokens *TokenService
	views  ViewsLister
}

func NewAssembler(source Source, tokens *TokenService, viewsRepo ViewsLister) *Assembler {
	return &Assembler{source: source, tokens: tokens, views: viewsRepo}
}

// Build renders the resource for one table and one request. Query
// validation failures still return a full resource with Error populated;
// only infrastructure failures return a Go error.
func (a *Assembler) Build(ctx context.Context, def *table.Definition, raw map[string]any, user *table.UserContext) (*Resource, *AppError) {
	params, err := Normalize(raw, def)
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, InvalidParamsError(err.Error())
	}

	res := a.static(def, user)

	token, signErr := a.tokens.Sign(def.Name, tokenContext(user))
	if signErr != nil {
		log.Printf("ERROR: sign token for %s: %v", def.Name, signErr)
		return nil, NewAppError("INTERNAL_ERROR", 500, "Internal server error")
	}
	res.Token = token

	page, fieldErrs, runErr := a.source.ValidateAndRun(ctx, def, params)
	if runErr != nil {
		log.Printf("ERROR: query %s: %v", def.Name, runErr)
		return nil, NewAppError("INTERNAL_ERROR", 500, "Internal server error")
	}

	if len(fieldErrs) > 0 {
		res.Data = []table.Row{}
		res.Meta = zeroMeta(params)
		res.State = buildState(def, params)
		res.Error = &ResourceError{Message: "Query validation failed", Fields: fieldErrs}
	} else {
		res.Data = RunPipeline(def, page.Rows, user)
		if res.Data == nil {
			res.Data = []table.Row{}
		}
		res.Meta = page.Meta
		res.State = buildState(def, params)
	}

	a.attachViews(ctx, def, raw, user, res)
	return res, nil
}

// static serializes the request-independent metadata of the definition.
func (a *Assembler) static(def *table.Definition, user *table.UserContext) *Resource {
	searchable := def.SearchableColumns()
	if searchable == nil {
		searchable = []string{}
	}
	res := &Resource{
		Name:              def.Name,
		PerPageOptions:    def.Config.PerPageOptions,
		StickyHeader:      def.Config.StickyHeader,
		Searchable:        searchable,
		SearchPlaceholder: def.Config.SearchPlaceholder,
		Columns:           def.Columns,
		Filters:           def.Filters,
		Actions:           def.Actions,
		BulkActions:       def.BulkActions,
		Exports:           def.Exports,
		EmptyState:        def.EmptyState,
		Views:             ViewsSection{Enabled: def.Config.ViewsEnabled, List: []views.View{}},
	}
	if res.Filters == nil {
		res.Filters = []table.Filter{}
	}
	if res.Actions == nil {
		res.Actions = []table.Action{}
	}
	if res.BulkActions == nil {
		res.BulkActions = []table.BulkAction{}
	}
	if res.Exports == nil {
		res.Exports = []table.Export{}
	}
	return res
}

func (a *Assembler) attachViews(ctx context.Context, def *table.Definition, raw map[string]any, user *table.UserContext, res *Resource) {
	if !def.Config.ViewsEnabled || a.views == nil || user == nil {
		return
	}
	list, err := a.views.ListVisible(ctx, def.Name, user.ID)
	if err != nil {
		// Views are decoration on the resource; a views outage must not
		// take the whole table down.
		log.Printf("WARN: list views for %s: %v", def.Name, err)
		return
	}
	if list == nil {
		list = []views.View{}
	}
	res.Views.List = list
	if current, ok := raw["view"].(string); ok && current != "" {
		res.Views.Current = &current
	}
}

func buildState(def *table.Definition, p Params) State {
	s := State{
		Filters: p.Filters,
		Page:    p.Page,
		PerPage: p.PageSize,
		Search:  p.Search,
		Columns: []string{},
	}
	if p.OrderBy != "" {
		s.Sort = &table.Sort{Field: p.OrderBy, Direction: p.OrderDirection}
	}
	for _, c := range def.Columns {
		if c.Visible && !c.IsAction() {
			s.Columns = append(s.Columns, c.Key)
		}
	}
	return s
}

func zeroMeta(p Params) Meta {
	m := BuildMeta(p, 0, 0)
	m.CurrentPage = 0
	m.TotalPages = 0
	m.PageSize = 0
	m.HasPreviousPage = false
	m.PreviousPage = nil
	return m
}

func tokenContext(user *table.UserContext) map[string]any {
	if user == nil {
		return nil
	}
	return map[string]any{"user": user.ID}
}
