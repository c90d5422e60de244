package instrument

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CleanupOldEvents deletes events older than retentionDays.
func CleanupOldEvents(ctx context.Context, pool *pgxpool.Pool, retentionDays int) {
	tag, err := pool.Exec(ctx,
		"DELETE FROM _table_events WHERE created_at < NOW() - make_interval(days => $1)",
		retentionDays)
	if err != nil {
		log.Printf("ERROR: event cleanup: %v", err)
		return
	}
	if tag.RowsAffected() > 0 {
		log.Printf("Event cleanup: deleted %d old events", tag.RowsAffected())
	}
}

// StartCleanupLoop runs CleanupOldEvents once at startup and then daily
// until ctx is cancelled.
func StartCleanupLoop(ctx context.Context, pool *pgxpool.Pool, retentionDays int) {
	go func() {
		CleanupOldEvents(ctx, pool, retentionDays)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				CleanupOldEvents(ctx, pool, retentionDays)
			}
		}
	}()
}
