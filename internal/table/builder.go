package table

// Builder assembles a Definition fluently at startup. Build validates the
// whole descriptor once; the result is treated as immutable afterwards.
type Builder struct {
	def Definition
}

// New starts a builder for a table backed by the given SQL table.
func New(name, backingTable string) *Builder {
	return &Builder{def: Definition{Name: name, Table: backingTable}}
}

// Key sets the primary key column (default "id").
func (b *Builder) Key(column string) *Builder {
	b.def.KeyColumn = column
	return b
}

// DefaultSort sets the sort applied when the request specifies none.
func (b *Builder) DefaultSort(field, direction string) *Builder {
	b.def.Config.DefaultSort = &Sort{Field: field, Direction: direction}
	return b
}

// PerPage sets the default page size and the selectable options.
func (b *Builder) PerPage(defaultSize int, options ...int) *Builder {
	b.def.Config.DefaultPerPage = defaultSize
	if len(options) > 0 {
		b.def.Config.PerPageOptions = options
	}
	return b
}

func (b *Builder) StickyHeader() *Builder {
	b.def.Config.StickyHeader = true
	return b
}

func (b *Builder) SearchPlaceholder(s string) *Builder {
	b.def.Config.SearchPlaceholder = s
	return b
}

// EnableViews turns on saved views for this table.
func (b *Builder) EnableViews() *Builder {
	b.def.Config.ViewsEnabled = true
	return b
}

func (b *Builder) Column(c Column) *Builder {
	b.def.Columns = append(b.def.Columns, c)
	return b
}

func (b *Builder) Filter(f Filter) *Builder {
	b.def.Filters = append(b.def.Filters, f)
	return b
}

func (b *Builder) Action(a Action) *Builder {
	b.def.Actions = append(b.def.Actions, a)
	return b
}

func (b *Builder) BulkAction(a BulkAction) *Builder {
	b.def.BulkActions = append(b.def.BulkActions, a)
	return b
}

func (b *Builder) Export(e Export) *Builder {
	b.def.Exports = append(b.def.Exports, e)
	return b
}

func (b *Builder) EmptyState(s EmptyState) *Builder {
	b.def.EmptyState = &s
	return b
}

// SelectableWhen gates per-row selectability for bulk actions.
func (b *Builder) SelectableWhen(p RowPredicate) *Builder {
	b.def.SelectableWhen = p
	return b
}

// Build validates and finalizes the definition.
func (b *Builder) Build() (*Definition, error) {
	def := b.def
	if err := def.validate(); err != nil {
		return nil, err
	}
	if err := def.finalize(); err != nil {
		return nil, err
	}
	return &def, nil
}
