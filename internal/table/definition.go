package table

import "fmt"

type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // asc or desc
}

type EmptyState struct {
	Title       string `json:"title"`
	Message     string `json:"message,omitempty"`
	ActionLabel string `json:"actionLabel,omitempty"`
	ActionURL   string `json:"actionUrl,omitempty"`
}

type Config struct {
	DefaultSort       *Sort  `json:"defaultSort,omitempty"`
	DefaultPerPage    int    `json:"defaultPerPage"`
	PerPageOptions    []int  `json:"perPageOptions"`
	StickyHeader      bool   `json:"stickyHeader"`
	SearchPlaceholder string `json:"searchPlaceholder,omitempty"`
	ViewsEnabled      bool   `json:"viewsEnabled"`
}

// Definition is the immutable descriptor of one table: its backing SQL
// table, columns, filters, actions, bulk actions and exports. Definitions
// are assembled once at startup via Builder and referenced by name; the
// engine never mutates them.
type Definition struct {
	Name        string
	Table       string
	KeyColumn   string
	Config      Config
	Columns     []Column
	Filters     []Filter
	Actions     []Action
	BulkActions []BulkAction
	Exports     []Export
	EmptyState  *EmptyState

	// SelectableWhen gates per-row bulk selectability; nil means every
	// row is selectable.
	SelectableWhen RowPredicate
}

// Column returns the column with the given key, or nil.
func (d *Definition) Column(key string) *Column {
	for i := range d.Columns {
		if d.Columns[i].Key == key {
			return &d.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether a column exists for the given key.
func (d *Definition) HasColumn(key string) bool {
	return d.Column(key) != nil
}

// Action returns the row action with the given name, or nil.
func (d *Definition) Action(name string) *Action {
	for i := range d.Actions {
		if d.Actions[i].Name == name {
			return &d.Actions[i]
		}
	}
	return nil
}

// BulkActionByName returns the bulk action with the given name, or nil.
func (d *Definition) BulkActionByName(name string) *BulkAction {
	for i := range d.BulkActions {
		if d.BulkActions[i].Name == name {
			return &d.BulkActions[i]
		}
	}
	return nil
}

// Export returns the export with the given name, or nil.
func (d *Definition) ExportByName(name string) *Export {
	for i := range d.Exports {
		if d.Exports[i].Name == name {
			return &d.Exports[i]
		}
	}
	return nil
}

// SearchableColumns returns the keys of all searchable columns.
func (d *Definition) SearchableColumns() []string {
	var keys []string
	for _, c := range d.Columns {
		if c.Searchable {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// HasBulkActions reports whether any bulk action is defined; selectability
// is only computed when this is true.
func (d *Definition) HasBulkActions() bool {
	return len(d.BulkActions) > 0
}

// Sortable reports whether the given field is backed by a sortable column.
func (d *Definition) Sortable(field string) bool {
	c := d.Column(field)
	return c != nil && c.Sortable
}

// Filter returns the filter for the given field, or nil.
func (d *Definition) FilterByField(field string) *Filter {
	for i := range d.Filters {
		if d.Filters[i].Field == field {
			return &d.Filters[i]
		}
	}
	return nil
}

// Selectable evaluates the selectability predicate for one row.
func (d *Definition) Selectable(row Row, user *UserContext) bool {
	if d.SelectableWhen == nil {
		return true
	}
	return d.SelectableWhen(row, user)
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if d.Table == "" {
		return fmt.Errorf("table %s: backing table is required", d.Name)
	}

	actionCols := 0
	for i := range d.Columns {
		c := &d.Columns[i]
		if c.Key == "" {
			return fmt.Errorf("table %s: column key is required", d.Name)
		}
		if !c.IsAction() {
			continue
		}
		actionCols++
		if c.Sortable || c.Searchable || c.Toggleable {
			return fmt.Errorf("table %s: action column %s cannot be sortable, searchable or toggleable", d.Name, c.Key)
		}
	}
	if actionCols > 1 {
		return fmt.Errorf("table %s: at most one action column allowed", d.Name)
	}

	seen := make(map[string]bool, len(d.Actions))
	for i := range d.Actions {
		a := &d.Actions[i]
		if a.Name == "" {
			return fmt.Errorf("table %s: action name is required", d.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("table %s: duplicate action %s", d.Name, a.Name)
		}
		seen[a.Name] = true
		if a.Hidden != nil && a.Visible != nil {
			return fmt.Errorf("table %s: action %s defines both hidden and visible", d.Name, a.Name)
		}
		if a.Hidden != nil && a.HiddenWhen != "" {
			return fmt.Errorf("table %s: action %s defines both hidden callback and expression", d.Name, a.Name)
		}
		if a.Disabled != nil && a.DisabledWhen != "" {
			return fmt.Errorf("table %s: action %s defines both disabled callback and expression", d.Name, a.Name)
		}
	}

	for i := range d.BulkActions {
		b := &d.BulkActions[i]
		if b.Name == "" {
			return fmt.Errorf("table %s: bulk action name is required", d.Name)
		}
		if b.ChunkSize < 0 {
			return fmt.Errorf("table %s: bulk action %s chunk size must be positive", d.Name, b.Name)
		}
	}

	for i := range d.Filters {
		if err := d.Filters[i].validate(); err != nil {
			return fmt.Errorf("table %s: %w", d.Name, err)
		}
		if !d.HasColumn(d.Filters[i].Field) {
			return fmt.Errorf("table %s: filter field %s has no column", d.Name, d.Filters[i].Field)
		}
	}

	if d.Config.DefaultSort != nil && !d.Sortable(d.Config.DefaultSort.Field) {
		return fmt.Errorf("table %s: default sort field %s is not sortable", d.Name, d.Config.DefaultSort.Field)
	}
	return nil
}

// finalize compiles declarative expressions and normalizes convenience
// forms so the engine only ever sees a single callback shape.
func (d *Definition) finalize() error {
	for i := range d.Columns {
		c := &d.Columns[i]
		if c.ComputeExpr == "" {
			continue
		}
		if c.Compute != nil {
			return fmt.Errorf("table %s: column %s defines both compute callback and expression", d.Name, c.Key)
		}
		fn, err := compileComputeExpr(c.ComputeExpr)
		if err != nil {
			return fmt.Errorf("table %s: column %s: %w", d.Name, c.Key, err)
		}
		c.Compute = fn
	}

	for i := range d.Actions {
		a := &d.Actions[i]
		if a.Visible != nil {
			visible := a.Visible
			a.Hidden = func(row Row, user *UserContext) bool { return !visible(row, user) }
			a.Visible = nil
		}
		if a.HiddenWhen != "" {
			fn, err := compilePredicateExpr(a.HiddenWhen)
			if err != nil {
				return fmt.Errorf("table %s: action %s: %w", d.Name, a.Name, err)
			}
			a.Hidden = fn
		}
		if a.DisabledWhen != "" {
			fn, err := compilePredicateExpr(a.DisabledWhen)
			if err != nil {
				return fmt.Errorf("table %s: action %s: %w", d.Name, a.Name, err)
			}
			a.Disabled = fn
		}
	}

	for i := range d.BulkActions {
		if d.BulkActions[i].ChunkSize == 0 {
			d.BulkActions[i].ChunkSize = DefaultChunkSize
		}
	}

	if d.KeyColumn == "" {
		d.KeyColumn = "id"
	}
	if d.Config.DefaultPerPage == 0 {
		d.Config.DefaultPerPage = 25
	}
	if len(d.Config.PerPageOptions) == 0 {
		d.Config.PerPageOptions = []int{10, 25, 50, 100}
	}
	return nil
}
