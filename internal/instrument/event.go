package instrument

// Event is one recorded table operation: a resource build, a row action,
// a bulk action or an export.
type Event struct {
	TableName  string         `json:"tableName"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Status     string         `json:"status"`
	Code       string         `json:"code,omitempty"`
	DurationMs int64          `json:"durationMs"`
	RowCount   int            `json:"rowCount"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

const (
	KindResource   = "resource"
	KindAction     = "action"
	KindBulkAction = "bulk_action"
	KindExport     = "export"

	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder accepts operation events. Implementations must be non-blocking;
// recording happens on the request path.
type Recorder interface {
	Record(event Event)
}

// Noop discards all events. Used when instrumentation is disabled.
type Noop struct{}

func (Noop) Record(Event) {}
