package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

// MediaStat is one row of a most-watched ranking.
type MediaStat struct {
	RatingKey     string           `json:"rating_key"`
	MediaType     models.MediaType `json:"media_type"`
	Title         string           `json:"title"`
	Year          int              `json:"year,omitempty"`
	Thumb         string           `json:"thumb"`
	Plays         int              `json:"plays"`
	UniqueViewers int              `json:"unique_viewers"`
	TotalSeconds  int64            `json:"total_seconds"`
}

// UserStat is one row of the per-user activity ranking.
type UserStat struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Plays   int    `json:"plays"`
	Minutes int64  `json:"minutes"`
}

// GrowthPoint is the number of items of one type added on one day, with a running total.
type GrowthPoint struct {
	Day        string           `json:"day"`
	MediaType  models.MediaType `json:"media_type"`
	Added      int              `json:"added"`
	Cumulative int              `json:"cumulative"`
}

// LeastWatchedItem is one row of the pruning report.
type LeastWatchedItem struct {
	RatingKey   string           `json:"rating_key"`
	MediaType   models.MediaType `json:"media_type"`
	Title       string           `json:"title"`
	Year        int              `json:"year,omitempty"`
	AddedAt     int64            `json:"added_at"`
	FileSize    int64            `json:"file_size"`
	Plays       int              `json:"plays"`
	LastWatched int64            `json:"last_watched,omitempty"`
}

// Counts is a snapshot of table sizes.
type Counts struct {
	Media           map[models.MediaType]int `json:"media"`
	Users           int                      `json:"users"`
	History         int                      `json:"history"`
	HistoryUnlinked int                      `json:"history_unlinked"`
}

// TopMediaQuery filters [StatsRepository.TopMedia].
type TopMediaQuery struct {
	Type       models.MediaType
	Since      time.Time // zero means all time
	Limit      int
	MinViewers int
}

// StatsRepository provides read-only aggregations over the synced tables.
//
// Plays of descendants (episodes, tracks) roll up to their season/show or album/artist
// through parent_rating_key at any depth. Rows with a null or unresolved parent drop out
// of rollups.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository creates a new [StatsRepository] with the given database connection
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// leavesCTE maps every item of the bound media type to all stored items beneath it,
// itself included. is_leaf marks the nodes with no stored children. The walk follows
// parent_rating_key whatever the depth, so episodes stored directly under a show resolve
// the same as episodes under a season. UNION stops on reference cycles.
const leavesCTE = `WITH RECURSIVE descendants(root_key, node_key) AS (
		SELECT rating_key, rating_key FROM media_items WHERE media_type = ?
		UNION
		SELECT d.root_key, c.rating_key
		FROM descendants d
		JOIN media_items c ON c.parent_rating_key = d.node_key
	),
	leaves AS (
		SELECT d.root_key, d.node_key AS leaf_key, m.file_size AS size,
			NOT EXISTS (SELECT 1 FROM media_items k WHERE k.parent_rating_key = d.node_key) AS is_leaf
		FROM descendants d
		JOIN media_items m ON m.rating_key = d.node_key
	)`

// TopMedia ranks items of q.Type by unique viewers, then plays.
func (r *StatsRepository) TopMedia(ctx context.Context, q TopMediaQuery) ([]MediaStat, error) {
	if !q.Type.Valid() {
		return nil, fmt.Errorf("%w: media type %q", shared.ErrInvalidArgument, q.Type)
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.Unix()
	}

	query := leavesCTE + `
		SELECT r.rating_key, r.media_type, r.title, COALESCE(r.year, 0),
			COALESCE(r.thumb, p.thumb, ''),
			COUNT(h.id), COUNT(DISTINCT h.user_id), COALESCE(SUM(h.duration), 0)
		FROM media_items r
		JOIN leaves l ON l.root_key = r.rating_key
		JOIN play_history h ON h.media_rating_key = l.leaf_key
		LEFT JOIN media_items p ON p.rating_key = r.parent_rating_key
		WHERE r.media_type = ? AND h.watched_at >= ?
		GROUP BY r.rating_key
		HAVING COUNT(DISTINCT h.user_id) >= ?
		ORDER BY 7 DESC, 6 DESC, r.title
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, string(q.Type), string(q.Type), since, q.MinViewers, q.Limit)
	if err != nil {
		return nil, storeErr("query top media", err)
	}
	defer rows.Close()

	var stats []MediaStat
	for rows.Next() {
		var (
			s         MediaStat
			mediaType string
		)
		if err := rows.Scan(&s.RatingKey, &mediaType, &s.Title, &s.Year, &s.Thumb, &s.Plays, &s.UniqueViewers, &s.TotalSeconds); err != nil {
			return nil, storeErr("scan top media", err)
		}
		s.MediaType = models.MediaType(mediaType)
		stats = append(stats, s)
	}
	return stats, storeErr("iterate top media", rows.Err())
}

// TopUsers ranks users by minutes watched since the given time.
// Events whose user was pruned are excluded.
func (r *StatsRepository) TopUsers(ctx context.Context, since time.Time, limit int) ([]UserStat, error) {
	if limit <= 0 {
		limit = 10
	}
	var from int64
	if !since.IsZero() {
		from = since.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT u.user_id, COALESCE(NULLIF(u.name, ''), u.username, ''),
			COUNT(h.id), COALESCE(SUM(h.duration), 0) / 60
		FROM play_history h
		JOIN users u ON u.user_id = h.user_id
		WHERE h.watched_at >= ?
		GROUP BY u.user_id
		ORDER BY 4 DESC, 3 DESC, u.user_id
		LIMIT ?
	`, from, limit)
	if err != nil {
		return nil, storeErr("query top users", err)
	}
	defer rows.Close()

	var stats []UserStat
	for rows.Next() {
		var s UserStat
		if err := rows.Scan(&s.UserID, &s.Name, &s.Plays, &s.Minutes); err != nil {
			return nil, storeErr("scan top users", err)
		}
		stats = append(stats, s)
	}
	return stats, storeErr("iterate top users", rows.Err())
}

// LibraryGrowth returns daily additions per type with running totals.
//
// When year is non-zero only that calendar year (UTC) is returned, and running totals
// start from the number of items added before it.
func (r *StatsRepository) LibraryGrowth(ctx context.Context, types []models.MediaType, year int) ([]GrowthPoint, error) {
	if len(types) == 0 {
		types = []models.MediaType{models.MediaMovie, models.MediaSeason, models.MediaAlbum}
	}

	placeholders := make([]string, len(types))
	typeArgs := make([]any, len(types))
	for i, t := range types {
		placeholders[i] = "?"
		typeArgs[i] = string(t)
	}
	in := strings.Join(placeholders, ", ")

	running := make(map[models.MediaType]int)
	var from, to int64 = 1, 1<<62
	if year > 0 {
		from = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
		to = time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

		baseRows, err := r.db.QueryContext(ctx, `
			SELECT media_type, COUNT(*) FROM media_items
			WHERE media_type IN (`+in+`) AND added_at > 0 AND added_at < ?
			GROUP BY media_type
		`, append(typeArgs, from)...)
		if err != nil {
			return nil, storeErr("query growth baseline", err)
		}
		for baseRows.Next() {
			var (
				t string
				n int
			)
			if err := baseRows.Scan(&t, &n); err != nil {
				baseRows.Close()
				return nil, storeErr("scan growth baseline", err)
			}
			running[models.MediaType(t)] = n
		}
		baseRows.Close()
	}

	args := append(append([]any{}, typeArgs...), from, to)
	rows, err := r.db.QueryContext(ctx, `
		SELECT date(added_at, 'unixepoch') AS day, media_type, COUNT(*)
		FROM media_items
		WHERE media_type IN (`+in+`) AND added_at >= ? AND added_at < ?
		GROUP BY day, media_type
		ORDER BY day, media_type
	`, args...)
	if err != nil {
		return nil, storeErr("query library growth", err)
	}
	defer rows.Close()

	var points []GrowthPoint
	for rows.Next() {
		var (
			p         GrowthPoint
			mediaType string
		)
		if err := rows.Scan(&p.Day, &mediaType, &p.Added); err != nil {
			return nil, storeErr("scan library growth", err)
		}
		p.MediaType = models.MediaType(mediaType)
		running[p.MediaType] += p.Added
		p.Cumulative = running[p.MediaType]
		points = append(points, p)
	}
	return points, storeErr("iterate library growth", rows.Err())
}

// LeastWatched lists items of type t with the fewest plays first, for pruning decisions.
// File size of shows and artists is the sum over their leaves.
func (r *StatsRepository) LeastWatched(ctx context.Context, t models.MediaType, limit int) ([]LeastWatchedItem, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: media type %q", shared.ErrInvalidArgument, t)
	}
	if limit <= 0 {
		limit = 50
	}

	query := leavesCTE + `,
	plays AS (
		SELECT l.root_key, COUNT(h.id) AS plays, MAX(h.watched_at) AS last_watched
		FROM leaves l
		JOIN play_history h ON h.media_rating_key = l.leaf_key
		GROUP BY l.root_key
	),
	sizes AS (
		SELECT root_key, SUM(COALESCE(size, 0)) AS size FROM leaves WHERE is_leaf GROUP BY root_key
	)
	SELECT r.rating_key, r.media_type, r.title, COALESCE(r.year, 0), r.added_at,
		COALESCE(s.size, r.file_size, 0), COALESCE(p.plays, 0), COALESCE(p.last_watched, 0)
	FROM media_items r
	LEFT JOIN plays p ON p.root_key = r.rating_key
	LEFT JOIN sizes s ON s.root_key = r.rating_key
	WHERE r.media_type = ?
	ORDER BY 7 ASC, 8 ASC, r.added_at ASC, r.rating_key
	LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, string(t), string(t), limit)
	if err != nil {
		return nil, storeErr("query least watched", err)
	}
	defer rows.Close()

	var items []LeastWatchedItem
	for rows.Next() {
		var (
			item      LeastWatchedItem
			mediaType string
		)
		if err := rows.Scan(&item.RatingKey, &mediaType, &item.Title, &item.Year, &item.AddedAt,
			&item.FileSize, &item.Plays, &item.LastWatched); err != nil {
			return nil, storeErr("scan least watched", err)
		}
		item.MediaType = models.MediaType(mediaType)
		items = append(items, item)
	}
	return items, storeErr("iterate least watched", rows.Err())
}

// Counts returns row totals for every synced table.
func (r *StatsRepository) Counts(ctx context.Context) (*Counts, error) {
	media, err := NewMediaRepository(r.db).CountByType(ctx)
	if err != nil {
		return nil, err
	}

	c := &Counts{Media: media}
	err = r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM play_history),
			(SELECT COUNT(*) FROM play_history WHERE media_rating_key IS NULL)
	`).Scan(&c.Users, &c.History, &c.HistoryUnlinked)
	if err != nil {
		return nil, storeErr("count tables", err)
	}
	return c, nil
}
