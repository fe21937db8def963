package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/tautsync/internal/models"
)

// HistoryRepository appends [models.PlayHistory] events.
// Rows are never updated except when pruning nulls their references.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new [HistoryRepository] with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Insert stores h once. A row with the same id or the same (user, media, watched_at) is ignored.
func (r *HistoryRepository) Insert(ctx context.Context, q DBTX, h *models.PlayHistory) (Outcome, error) {
	if err := h.Validate(); err != nil {
		return Unchanged, err
	}

	var id any
	if h.ID > 0 {
		id = h.ID
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO play_history (id, user_id, media_rating_key, watched_at, duration, media_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, id, nullInt64Ptr(h.UserID), nullString(h.MediaRatingKey), h.WatchedAt, h.Duration, nullString(string(h.MediaType)))
	if err != nil {
		return Unchanged, storeErr("insert play history", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return Unchanged, storeErr("get affected rows", err)
	}
	if rows == 0 {
		return Unchanged, nil
	}
	return Created, nil
}

// ListByMedia returns events referencing ratingKey, oldest first.
func (r *HistoryRepository) ListByMedia(ctx context.Context, ratingKey string) ([]*models.PlayHistory, error) {
	return r.list(ctx, "WHERE media_rating_key = ?", ratingKey)
}

// ListUnlinked returns events whose media reference was nulled by pruning.
func (r *HistoryRepository) ListUnlinked(ctx context.Context) ([]*models.PlayHistory, error) {
	return r.list(ctx, "WHERE media_rating_key IS NULL")
}

// Count returns the number of stored events.
func (r *HistoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM play_history").Scan(&n); err != nil {
		return 0, storeErr("count play history", err)
	}
	return n, nil
}

func (r *HistoryRepository) list(ctx context.Context, where string, args ...any) ([]*models.PlayHistory, error) {
	query := `
		SELECT id, user_id, media_rating_key, media_type, watched_at, duration
		FROM play_history ` + where + `
		ORDER BY watched_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query play history", err)
	}
	defer rows.Close()

	var events []*models.PlayHistory
	for rows.Next() {
		var (
			h         models.PlayHistory
			userID    sql.NullInt64
			ratingKey sql.NullString
			mediaType sql.NullString
		)
		if err := rows.Scan(&h.ID, &userID, &ratingKey, &mediaType, &h.WatchedAt, &h.Duration); err != nil {
			return nil, storeErr("scan play history", err)
		}
		h.UserID = int64Ptr(userID)
		h.MediaRatingKey = ratingKey.String
		h.MediaType = models.MediaType(mediaType.String)
		events = append(events, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate play history", err)
	}
	return events, nil
}
