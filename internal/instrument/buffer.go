package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventBuffer collects events in memory and periodically flushes them to
// the _table_events table in a batch insert.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	pool    *pgxpool.Pool
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

const bufferSchemaSQL = `
CREATE TABLE IF NOT EXISTS _table_events (
	id BIGSERIAL PRIMARY KEY,
	table_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	name TEXT,
	user_id TEXT,
	status TEXT NOT NULL,
	code TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	row_count INT NOT NULL DEFAULT 0,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_table_events_table_created
	ON _table_events (table_name, created_at);
`

// Bootstrap creates the _table_events table if it does not exist.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, bufferSchemaSQL); err != nil {
		return fmt.Errorf("bootstrap table events: %w", err)
	}
	return nil
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(pool *pgxpool.Pool, maxSize int, flushInterval time.Duration) *EventBuffer {
	eb := &EventBuffer{
		pool:    pool,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	eb.ticker = time.NewTicker(flushInterval)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Record adds an event to the buffer. If the buffer is full, a flush is
// triggered asynchronously.
func (eb *EventBuffer) Record(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Flush writes all buffered events to the database in a single batch insert.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	ctx := context.Background()
	tx, err := eb.pool.Begin(ctx)
	if err != nil {
		log.Printf("ERROR: event buffer begin tx: %v", err)
		return
	}

	// Events are telemetry; losing the tail on a crash is acceptable.
	if _, err := tx.Exec(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
		tx.Rollback(ctx)
		log.Printf("ERROR: event buffer set sync commit: %v", err)
		return
	}

	cols := []string{"table_name", "kind", "name", "user_id", "status", "code", "duration_ms", "row_count", "metadata"}
	var placeholders []string
	var args []any
	for i, e := range batch {
		offset := i * len(cols)
		ph := make([]string, len(cols))
		for j := range cols {
			ph[j] = fmt.Sprintf("$%d", offset+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var metaJSON any
		if e.Metadata != nil {
			b, _ := json.Marshal(e.Metadata)
			metaJSON = string(b)
		}
		args = append(args, e.TableName, e.Kind, e.Name, e.UserID, e.Status, e.Code, e.DurationMs, e.RowCount, metaJSON)
	}

	sql := fmt.Sprintf("INSERT INTO _table_events (%s) VALUES %s", strings.Join(cols, ","), strings.Join(placeholders, ","))
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		tx.Rollback(ctx)
		log.Printf("ERROR: event buffer insert: %v", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("ERROR: event buffer commit: %v", err)
	}
}

// Stop halts the background ticker and flushes remaining events.
func (eb *EventBuffer) Stop() {
	if eb.ticker != nil {
		eb.ticker.Stop()
	}
	close(eb.done)
	eb.Flush()
}
