package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Watermark names stored in sync_state.
const (
	WatermarkMedia   = "media_added_at"
	WatermarkHistory = "history_watched_at"
)

// StateRepository stores sync watermarks.
//
// Watermarks are written with [StateRepository.Advance] inside the same transaction
// as the rows they cover, so a crash never leaves a watermark ahead of committed data.
type StateRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewStateRepository creates a new [StateRepository] with the given database connection
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db, now: time.Now}
}

// Get returns the watermark for name, or 0 when it was never set.
func (r *StateRepository) Get(ctx context.Context, q DBTX, name string) (int64, error) {
	if q == nil {
		q = r.db
	}
	var v int64
	err := q.QueryRowContext(ctx, "SELECT value FROM sync_state WHERE name = ?", name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr("read watermark "+name, err)
	}
	return v, nil
}

// Advance raises the watermark to value. Lower or equal values are ignored without a write.
func (r *StateRepository) Advance(ctx context.Context, q DBTX, name string, value int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_state (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		WHERE excluded.value > sync_state.value
	`, name, value, r.now().Unix())
	return storeErr("advance watermark "+name, err)
}

// Reset removes the watermark so the next incremental sync starts from the beginning.
func (r *StateRepository) Reset(ctx context.Context, q DBTX, name string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM sync_state WHERE name = ?", name)
	return storeErr("reset watermark "+name, err)
}
