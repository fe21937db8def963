package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

// MediaRepository persists [models.MediaItem] rows keyed by rating key.
type MediaRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewMediaRepository creates a new [MediaRepository] with the given database connection
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db, now: time.Now}
}

const upsertMediaQuery = `
	INSERT INTO media_items (
		rating_key, parent_rating_key, media_type, title, year, added_at, file_size, thumb, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(rating_key) DO UPDATE SET
		parent_rating_key = excluded.parent_rating_key,
		media_type = excluded.media_type,
		title = excluded.title,
		year = excluded.year,
		added_at = excluded.added_at,
		file_size = excluded.file_size,
		thumb = excluded.thumb,
		updated_at = excluded.updated_at
	WHERE media_items.parent_rating_key IS NOT excluded.parent_rating_key
		OR media_items.media_type IS NOT excluded.media_type
		OR media_items.title IS NOT excluded.title
		OR media_items.year IS NOT excluded.year
		OR media_items.added_at IS NOT excluded.added_at
		OR media_items.file_size IS NOT excluded.file_size
		OR media_items.thumb IS NOT excluded.thumb
`

// Upsert inserts item or overwrites its stored fields (last write wins).
// No write happens when every field already matches.
func (r *MediaRepository) Upsert(ctx context.Context, q DBTX, item *models.MediaItem) (Outcome, error) {
	if err := item.Validate(); err != nil {
		return Unchanged, err
	}

	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM media_items WHERE rating_key = ?)", item.RatingKey).Scan(&exists)
	if err != nil {
		return Unchanged, storeErr("check media item", err)
	}

	res, err := q.ExecContext(ctx, upsertMediaQuery,
		item.RatingKey,
		nullString(item.ParentRatingKey),
		string(item.MediaType),
		item.Title,
		nullInt(item.Year),
		item.AddedAt,
		nullInt64Ptr(item.FileSize),
		nullString(item.Thumb),
		r.now().Unix(),
	)
	if err != nil {
		return Unchanged, storeErr("upsert media item", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return Unchanged, storeErr("get affected rows", err)
	}

	switch {
	case rows == 0:
		return Unchanged, nil
	case exists:
		return Updated, nil
	default:
		return Created, nil
	}
}

// Get retrieves a media item by rating key
func (r *MediaRepository) Get(ctx context.Context, ratingKey string) (*models.MediaItem, error) {
	query := `
		SELECT rating_key, parent_rating_key, media_type, title, year, added_at, file_size, thumb
		FROM media_items
		WHERE rating_key = ?
	`
	item, err := scanMediaItem(r.db.QueryRowContext(ctx, query, ratingKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: media item %s", shared.ErrNotFound, ratingKey)
	}
	if err != nil {
		return nil, storeErr("query media item", err)
	}
	return item, nil
}

// ListByParent returns the direct children of parentKey ordered by rating key.
func (r *MediaRepository) ListByParent(ctx context.Context, parentKey string) ([]*models.MediaItem, error) {
	query := `
		SELECT rating_key, parent_rating_key, media_type, title, year, added_at, file_size, thumb
		FROM media_items
		WHERE parent_rating_key = ?
		ORDER BY rating_key
	`
	rows, err := r.db.QueryContext(ctx, query, parentKey)
	if err != nil {
		return nil, storeErr("query children", err)
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, storeErr("scan media item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate media items", err)
	}
	return items, nil
}

// Count returns the number of stored media items.
func (r *MediaRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media_items").Scan(&n); err != nil {
		return 0, storeErr("count media items", err)
	}
	return n, nil
}

// CountByType returns item totals grouped by media type.
func (r *MediaRepository) CountByType(ctx context.Context) (map[models.MediaType]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT media_type, COUNT(*) FROM media_items GROUP BY media_type")
	if err != nil {
		return nil, storeErr("count media by type", err)
	}
	defer rows.Close()

	counts := make(map[models.MediaType]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, storeErr("scan media count", err)
		}
		counts[models.MediaType(t)] = n
	}
	return counts, storeErr("iterate media counts", rows.Err())
}

// Keys returns every stored rating key.
func (r *MediaRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT rating_key FROM media_items ORDER BY rating_key")
	if err != nil {
		return nil, storeErr("list media keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storeErr("scan media key", err)
		}
		keys = append(keys, k)
	}
	return keys, storeErr("iterate media keys", rows.Err())
}

// DanglingParents returns rating keys of items whose parent_rating_key does not resolve.
func (r *MediaRepository) DanglingParents(ctx context.Context) ([]string, error) {
	query := `
		SELECT c.rating_key
		FROM media_items c
		LEFT JOIN media_items p ON p.rating_key = c.parent_rating_key
		WHERE c.parent_rating_key IS NOT NULL AND p.rating_key IS NULL
		ORDER BY c.rating_key
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("query dangling parents", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storeErr("scan dangling key", err)
		}
		keys = append(keys, k)
	}
	return keys, storeErr("iterate dangling keys", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaItem(s rowScanner) (*models.MediaItem, error) {
	var (
		item     models.MediaItem
		parent   sql.NullString
		media    string
		year     sql.NullInt64
		fileSize sql.NullInt64
		thumb    sql.NullString
	)
	if err := s.Scan(&item.RatingKey, &parent, &media, &item.Title, &year, &item.AddedAt, &fileSize, &thumb); err != nil {
		return nil, err
	}
	item.ParentRatingKey = parent.String
	item.MediaType = models.MediaType(media)
	item.Year = int(year.Int64)
	item.FileSize = int64Ptr(fileSize)
	item.Thumb = thumb.String
	return &item, nil
}
