package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

// seedLibrary stores one show (two seasons), one movie and one artist with plays.
func seedLibrary(t *testing.T, repo *Store) {
	t.Helper()
	db := repo.DB
	size := func(n int64) *int64 { return &n }

	mustUpsertMedia(t, db,
		models.MediaItem{RatingKey: "100", MediaType: models.MediaShow, Title: "Show", Thumb: "/show", AddedAt: day(2024, 1, 1)},
		models.MediaItem{RatingKey: "101", ParentRatingKey: "100", MediaType: models.MediaSeason, Title: "S1", AddedAt: day(2024, 1, 1)},
		models.MediaItem{RatingKey: "102", ParentRatingKey: "100", MediaType: models.MediaSeason, Title: "S2", AddedAt: day(2024, 3, 1)},
		models.MediaItem{RatingKey: "111", ParentRatingKey: "101", MediaType: models.MediaEpisode, Title: "E1", FileSize: size(100)},
		models.MediaItem{RatingKey: "112", ParentRatingKey: "101", MediaType: models.MediaEpisode, Title: "E2", FileSize: size(200)},
		models.MediaItem{RatingKey: "121", ParentRatingKey: "102", MediaType: models.MediaEpisode, Title: "E3", FileSize: size(300)},
		models.MediaItem{RatingKey: "200", MediaType: models.MediaMovie, Title: "Heat", Year: 1995, FileSize: size(5000), AddedAt: day(2023, 6, 1)},
		models.MediaItem{RatingKey: "201", MediaType: models.MediaMovie, Title: "Ronin", Year: 1998, FileSize: size(4000), AddedAt: day(2024, 1, 1)},
		models.MediaItem{RatingKey: "300", MediaType: models.MediaArtist, Title: "Band"},
		models.MediaItem{RatingKey: "301", ParentRatingKey: "300", MediaType: models.MediaAlbum, Title: "LP", Thumb: "/lp"},
		models.MediaItem{RatingKey: "302", ParentRatingKey: "301", MediaType: models.MediaTrack, Title: "Song"},
	)

	users := NewUserRepository(db)
	users.Upsert(context.Background(), db, &models.User{UserID: 1, Name: "alice"})
	users.Upsert(context.Background(), db, &models.User{UserID: 2, Name: "", Username: "bob"})

	now := time.Now().Unix()
	mustInsertHistory(t, db,
		models.PlayHistory{UserID: userID(1), MediaRatingKey: "111", WatchedAt: now - 10, Duration: 1200},
		models.PlayHistory{UserID: userID(2), MediaRatingKey: "121", WatchedAt: now - 20, Duration: 1800},
		models.PlayHistory{UserID: userID(1), MediaRatingKey: "112", WatchedAt: now - 30, Duration: 600},
		models.PlayHistory{UserID: userID(1), MediaRatingKey: "200", WatchedAt: now - 40, Duration: 6000},
		models.PlayHistory{UserID: userID(2), MediaRatingKey: "302", WatchedAt: now - 50, Duration: 240},
		models.PlayHistory{UserID: userID(3), MediaRatingKey: "200", WatchedAt: now - 60, Duration: 60},
		models.PlayHistory{MediaRatingKey: "200", WatchedAt: now - 70, Duration: 60},
	)
}

func day(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC).Unix()
}

func TestStatsRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t))
	seedLibrary(t, store)

	t.Run("TopMedia rolls episodes up to shows", func(t *testing.T) {
		stats, err := store.Stats.TopMedia(ctx, TopMediaQuery{Type: models.MediaShow, Limit: 5})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(stats) != 1 {
			t.Fatalf("expected one show, got %+v", stats)
		}
		got := stats[0]
		if got.RatingKey != "100" || got.Plays != 3 || got.UniqueViewers != 2 || got.TotalSeconds != 3600 {
			t.Errorf("unexpected show stat %+v", got)
		}
		if got.Thumb != "/show" {
			t.Errorf("expected show thumb, got %q", got.Thumb)
		}
	})

	t.Run("TopMedia movies ignore pruned users in viewer count", func(t *testing.T) {
		stats, err := store.Stats.TopMedia(ctx, TopMediaQuery{Type: models.MediaMovie, MinViewers: 2})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(stats) != 1 || stats[0].RatingKey != "200" {
			t.Fatalf("expected Heat only, got %+v", stats)
		}
		if stats[0].Plays != 3 || stats[0].UniqueViewers != 2 {
			t.Errorf("expected 3 plays by 2 viewers, got %+v", stats[0])
		}
	})

	t.Run("TopMedia thumb falls back to parent", func(t *testing.T) {
		stats, err := store.Stats.TopMedia(ctx, TopMediaQuery{Type: models.MediaSeason})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		for _, s := range stats {
			if s.Thumb != "/show" {
				t.Errorf("expected season %s to inherit show thumb, got %q", s.RatingKey, s.Thumb)
			}
		}
	})

	t.Run("TopMedia since window", func(t *testing.T) {
		stats, err := store.Stats.TopMedia(ctx, TopMediaQuery{Type: models.MediaArtist, Since: time.Now().Add(-45 * time.Second)})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(stats) != 0 {
			t.Errorf("expected artist play to fall outside window, got %+v", stats)
		}
	})

	t.Run("TopMedia invalid type", func(t *testing.T) {
		if _, err := store.Stats.TopMedia(ctx, TopMediaQuery{Type: "photo"}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("TopUsers", func(t *testing.T) {
		stats, err := store.Stats.TopUsers(ctx, time.Time{}, 10)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(stats) != 2 {
			t.Fatalf("expected only known users, got %+v", stats)
		}
		if stats[0].UserID != 1 || stats[0].Minutes != 130 || stats[0].Plays != 3 {
			t.Errorf("unexpected top user %+v", stats[0])
		}
		if stats[1].Name != "bob" {
			t.Errorf("expected username fallback, got %q", stats[1].Name)
		}
	})

	t.Run("LibraryGrowth", func(t *testing.T) {
		points, err := store.Stats.LibraryGrowth(ctx, []models.MediaType{models.MediaMovie, models.MediaSeason}, 2024)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		want := []GrowthPoint{
			{Day: "2024-01-01", MediaType: models.MediaMovie, Added: 1, Cumulative: 2},
			{Day: "2024-01-01", MediaType: models.MediaSeason, Added: 1, Cumulative: 1},
			{Day: "2024-03-01", MediaType: models.MediaSeason, Added: 1, Cumulative: 2},
		}
		if len(points) != len(want) {
			t.Fatalf("expected %d points, got %+v", len(want), points)
		}
		for i := range want {
			if points[i] != want[i] {
				t.Errorf("point %d = %+v, want %+v", i, points[i], want[i])
			}
		}
	})

	t.Run("LeastWatched movies", func(t *testing.T) {
		items, err := store.Stats.LeastWatched(ctx, models.MediaMovie, 10)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(items) != 2 || items[0].RatingKey != "201" || items[0].Plays != 0 {
			t.Fatalf("expected unwatched Ronin first, got %+v", items)
		}
		if items[0].FileSize != 4000 || items[1].Plays != 3 {
			t.Errorf("unexpected rows %+v", items)
		}
	})

	t.Run("LeastWatched shows sum episode sizes", func(t *testing.T) {
		items, err := store.Stats.LeastWatched(ctx, models.MediaShow, 10)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(items) != 1 || items[0].FileSize != 600 || items[0].Plays != 3 {
			t.Errorf("unexpected show row %+v", items)
		}
	})

	t.Run("Counts", func(t *testing.T) {
		c, err := store.Stats.Counts(ctx)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if c.Media[models.MediaEpisode] != 3 || c.Users != 2 || c.History != 7 || c.HistoryUnlinked != 0 {
			t.Errorf("unexpected counts %+v", c)
		}
	})
}

func TestStatsRepositoryFlatShow(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t))
	db := store.DB
	size := func(n int64) *int64 { return &n }

	mustUpsertMedia(t, db,
		models.MediaItem{RatingKey: "100", MediaType: models.MediaShow, Title: "Flat Show", AddedAt: day(2024, 1, 1)},
		models.MediaItem{RatingKey: "101", ParentRatingKey: "100", MediaType: models.MediaEpisode, Title: "E1", FileSize: size(700)},
		models.MediaItem{RatingKey: "102", ParentRatingKey: "100", MediaType: models.MediaEpisode, Title: "E2", FileSize: size(300)},
		models.MediaItem{RatingKey: "200", MediaType: models.MediaShow, Title: "Empty Show", AddedAt: day(2024, 2, 1)},
	)
	now := time.Now().Unix()
	mustInsertHistory(t, db,
		models.PlayHistory{UserID: userID(1), MediaRatingKey: "101", WatchedAt: now - 10, Duration: 1200},
		models.PlayHistory{UserID: userID(2), MediaRatingKey: "102", WatchedAt: now - 20, Duration: 600},
	)

	t.Run("TopMedia counts episodes stored under the show", func(t *testing.T) {
		stats, err := store.Stats.TopMedia(ctx, TopMediaQuery{Type: models.MediaShow})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(stats) != 1 || stats[0].RatingKey != "100" {
			t.Fatalf("expected the flat show, got %+v", stats)
		}
		if stats[0].Plays != 2 || stats[0].UniqueViewers != 2 || stats[0].TotalSeconds != 1800 {
			t.Errorf("unexpected show stat %+v", stats[0])
		}
	})

	t.Run("LeastWatched sums episodes stored under the show", func(t *testing.T) {
		items, err := store.Stats.LeastWatched(ctx, models.MediaShow, 10)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected two shows, got %+v", items)
		}
		if items[0].RatingKey != "200" || items[0].Plays != 0 || items[0].FileSize != 0 {
			t.Errorf("expected empty show first, got %+v", items[0])
		}
		if items[1].RatingKey != "100" || items[1].Plays != 2 || items[1].FileSize != 1000 {
			t.Errorf("unexpected flat show row %+v", items[1])
		}
	})
}
