package table

// Row is a single record as returned by the store: column name to value.
type Row = map[string]any

// ComputeFunc derives a display value from the raw row.
type ComputeFunc func(row Row) any

// MapFunc post-processes a computed value (label lookup, formatting).
type MapFunc func(v any) any

// FormatFunc renders a value for export output.
type FormatFunc func(v any) string

// RowPredicate decides a per-row boolean (disabled, hidden, selectable).
// user may be nil for unauthenticated requests.
type RowPredicate func(row Row, user *UserContext) bool

// URLFunc builds a row-scoped URL.
type URLFunc func(row Row) string

type ColumnType string

const (
	ColumnText     ColumnType = "text"
	ColumnBadge    ColumnType = "badge"
	ColumnNumeric  ColumnType = "numeric"
	ColumnDate     ColumnType = "date"
	ColumnDateTime ColumnType = "datetime"
	ColumnBoolean  ColumnType = "boolean"
	ColumnImage    ColumnType = "image"
	ColumnAction   ColumnType = "action"
)

type Column struct {
	Key        string     `json:"key"`
	Type       ColumnType `json:"type"`
	Label      string     `json:"label"`
	Sortable   bool       `json:"sortable"`
	Searchable bool       `json:"searchable"`
	Toggleable bool       `json:"toggleable"`
	Visible    bool       `json:"visible"`
	Stickable  bool       `json:"stickable"`
	Alignment  string     `json:"alignment,omitempty"`

	// Compute derives the value instead of reading row[Key]; MapAs then
	// transforms whichever value was produced. ComputeExpr is the
	// declarative alternative to Compute, compiled at build time.
	Compute     ComputeFunc `json:"-"`
	ComputeExpr string      `json:"-"`
	MapAs       MapFunc     `json:"-"`

	// Format overrides the type-aware default when exporting.
	Format FormatFunc `json:"-"`
}

// IsAction reports whether this is the per-row action column.
func (c *Column) IsAction() bool {
	return c.Type == ColumnAction
}
