package table

import "context"

// HandleFunc executes a row action. The returned message, if non-empty,
// is surfaced to the client on success.
type HandleFunc func(ctx context.Context, row Row) (string, error)

// BulkHandleFunc executes a bulk action over one chunk of rows.
type BulkHandleFunc func(ctx context.Context, rows []Row) (string, error)

// AuthorizeFunc gates an action for the requesting user.
type AuthorizeFunc func(user *UserContext) bool

// BeforeFunc runs once before any bulk chunk; a non-nil error aborts the run.
type BeforeFunc func(ctx context.Context, rows []Row) error

// AfterFunc runs once after all bulk chunks succeed.
type AfterFunc func(ctx context.Context, rows []Row)

type Confirmation struct {
	Title        string `json:"title"`
	Message      string `json:"message,omitempty"`
	ConfirmLabel string `json:"confirmLabel,omitempty"`
	CancelLabel  string `json:"cancelLabel,omitempty"`
}

// Action is a row-scoped operation. It is either URL-based (URL set) or
// handler-based (Handle set); execution prefers Handle when both exist.
type Action struct {
	Name           string        `json:"name"`
	Label          string        `json:"label"`
	Variant        string        `json:"variant,omitempty"`
	URL            URLFunc       `json:"-"`
	Handle         HandleFunc    `json:"-"`
	Disabled       RowPredicate  `json:"-"`
	Hidden         RowPredicate  `json:"-"`
	Visible        RowPredicate  `json:"-"`
	DisabledWhen   string        `json:"-"`
	HiddenWhen     string        `json:"-"`
	Confirmation   *Confirmation `json:"confirmation,omitempty"`
	Authorize      AuthorizeFunc `json:"-"`
	SuccessMessage string        `json:"successMessage,omitempty"`
	ErrorMessage   string        `json:"errorMessage,omitempty"`
	Frontend       bool          `json:"frontend"`
}

// DefaultChunkSize bounds bulk handler batches unless overridden.
const DefaultChunkSize = 100

type BulkAction struct {
	Name         string         `json:"name"`
	Label        string         `json:"label"`
	Variant      string         `json:"variant,omitempty"`
	Handle       BulkHandleFunc `json:"-"`
	Confirmation *Confirmation  `json:"confirmation,omitempty"`
	Authorize    AuthorizeFunc  `json:"-"`
	ChunkSize    int            `json:"-"`
	Before       BeforeFunc     `json:"-"`
	After        AfterFunc      `json:"-"`
	Frontend     bool           `json:"frontend"`
}

// Export describes a downloadable extract of the filtered row set.
type Export struct {
	Name      string        `json:"name"`
	Label     string        `json:"label"`
	Columns   []string      `json:"-"` // explicit ordered column keys; empty = default visible set
	Filename  string        `json:"-"` // template, supports {table} and {timestamp}
	Authorize AuthorizeFunc `json:"-"`
}
