package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablekit-backend/internal/config"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Store wraps the pgx connection pool shared by all request handlers.
type Store struct {
	Pool *pgxpool.Pool
}

// New connects to Postgres using the given config.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse conn string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.PoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// QueryRows executes a query and returns results as []map[string]any.
func QueryRows(ctx context.Context, pool *pgxpool.Pool, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var results []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// QueryRow executes a query expected to return a single row.
func QueryRow(ctx context.Context, pool *pgxpool.Pool, sqlStr string, args ...any) (map[string]any, error) {
	rows, err := QueryRows(ctx, pool, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec executes a statement and returns the number of rows affected.
func Exec(ctx context.Context, pool *pgxpool.Pool, sqlStr string, args ...any) (int64, error) {
	tag, err := pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", MapError(err))
	}
	return tag.RowsAffected(), nil
}

// MapError maps a database error to a well-known sentinel error while
// keeping the original extractable via errors.As.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// normalizeValue converts driver-specific types to JSON-serializable values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		// pgx returns UUID columns as [16]byte
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case time.Time:
		return val
	default:
		return v
	}
}
