package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablekit-backend/internal/store"
)

// View is a persisted saved state of one table for one user: active
// filters, sort, visible columns and page size under a user-chosen name.
type View struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	TableName string          `json:"tableName"`
	OwnerID   string          `json:"ownerId,omitempty"`
	IsDefault bool            `json:"isDefault"`
	IsPublic  bool            `json:"isPublic"`
	Filters   json.RawMessage `json:"filters"`
	Sort      json.RawMessage `json:"sort"`
	Columns   []string        `json:"columns"`
	PerPage   int             `json:"perPage"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

var ErrNotOwner = errors.New("view belongs to another user")

// Repository persists saved views. One row per view, unique on
// (owner_id, table_name, name).
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS _table_views (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	table_name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	filters JSONB NOT NULL DEFAULT '[]',
	sort JSONB,
	columns JSONB NOT NULL DEFAULT '[]',
	per_page INTEGER NOT NULL DEFAULT 25,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_table_views_owner_table_name
	ON _table_views (owner_id, table_name, name);
`

// Bootstrap creates the views table and its unique index.
func (r *Repository) Bootstrap(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("bootstrap views: %w", err)
	}
	return nil
}

// ListVisible returns the user's own views plus public views for the table.
func (r *Repository) ListVisible(ctx context.Context, tableName, ownerID string) ([]View, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, table_name, owner_id, is_default, is_public, filters, sort, columns, per_page, created_at, updated_at
		FROM _table_views
		WHERE table_name = $1 AND (owner_id = $2 OR is_public)
		ORDER BY name`, tableName, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	defer rows.Close()
	return scanViews(rows)
}

// Get returns one view by id, visible to the given user.
func (r *Repository) Get(ctx context.Context, id, ownerID string) (*View, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, table_name, owner_id, is_default, is_public, filters, sort, columns, per_page, created_at, updated_at
		FROM _table_views WHERE id = $1 AND (owner_id = $2 OR is_public)`, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get view: %w", err)
	}
	defer rows.Close()
	views, err := scanViews(rows)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, store.ErrNotFound
	}
	return &views[0], nil
}

// Create persists a new view owned by ownerID.
func (r *Repository) Create(ctx context.Context, v *View) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.PerPage == 0 {
		v.PerPage = 25
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO _table_views (id, name, table_name, owner_id, is_default, is_public, filters, sort, columns, per_page)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.Name, v.TableName, v.OwnerID, v.IsDefault, v.IsPublic,
		rawOrEmpty(v.Filters), nullableRaw(v.Sort), columnsJSON(v.Columns), v.PerPage)
	if err != nil {
		return fmt.Errorf("create view: %w", store.MapError(err))
	}
	return nil
}

// Update rewrites a view's saved state. Only the owner may mutate it.
func (r *Repository) Update(ctx context.Context, v *View, ownerID string) error {
	current, err := r.Get(ctx, v.ID, ownerID)
	if err != nil {
		return err
	}
	if current.OwnerID != ownerID {
		return ErrNotOwner
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE _table_views
		SET name = $2, is_public = $3, filters = $4, sort = $5, columns = $6, per_page = $7, updated_at = NOW()
		WHERE id = $1 AND owner_id = $8`,
		v.ID, v.Name, v.IsPublic, rawOrEmpty(v.Filters), nullableRaw(v.Sort), columnsJSON(v.Columns), v.PerPage, ownerID)
	if err != nil {
		return fmt.Errorf("update view: %w", store.MapError(err))
	}
	return nil
}

// Delete removes a view. Only the owner may delete it.
func (r *Repository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM _table_views WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete view: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetDefault flags one view as the owner's default for its table,
// clearing any previous default first.
func (r *Repository) SetDefault(ctx context.Context, id, ownerID string) error {
	v, err := r.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if v.OwnerID != ownerID {
		return ErrNotOwner
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		"UPDATE _table_views SET is_default = FALSE WHERE owner_id = $1 AND table_name = $2 AND is_default",
		ownerID, v.TableName); err != nil {
		return fmt.Errorf("clear default: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE _table_views SET is_default = TRUE, updated_at = NOW() WHERE id = $1", id); err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	return tx.Commit(ctx)
}

// ClearDefault removes the default flag from a view without electing a
// replacement. Only the owner may change it.
func (r *Repository) ClearDefault(ctx context.Context, id, ownerID string) error {
	v, err := r.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if v.OwnerID != ownerID {
		return ErrNotOwner
	}
	if _, err := r.pool.Exec(ctx,
		"UPDATE _table_views SET is_default = FALSE, updated_at = NOW() WHERE id = $1", id); err != nil {
		return fmt.Errorf("clear default: %w", err)
	}
	return nil
}

func scanViews(rows pgx.Rows) ([]View, error) {
	var out []View
	for rows.Next() {
		var v View
		var sort *json.RawMessage
		var columns json.RawMessage
		if err := rows.Scan(&v.ID, &v.Name, &v.TableName, &v.OwnerID, &v.IsDefault, &v.IsPublic,
			&v.Filters, &sort, &columns, &v.PerPage, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		if sort != nil {
			v.Sort = *sort
		}
		if len(columns) > 0 {
			if err := json.Unmarshal(columns, &v.Columns); err != nil {
				return nil, fmt.Errorf("decode view columns: %w", err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func rawOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("[]")
	}
	return raw
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func columnsJSON(cols []string) []byte {
	if cols == nil {
		cols = []string{}
	}
	b, _ := json.Marshal(cols)
	return b
}
