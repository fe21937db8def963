package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func mustUpsertMedia(t *testing.T, db *sql.DB, items ...models.MediaItem) {
	t.Helper()
	repo := NewMediaRepository(db)
	for i := range items {
		if _, err := repo.Upsert(context.Background(), db, &items[i]); err != nil {
			t.Fatalf("failed to upsert %s: %v", items[i].RatingKey, err)
		}
	}
}

func mustInsertHistory(t *testing.T, db *sql.DB, events ...models.PlayHistory) {
	t.Helper()
	repo := NewHistoryRepository(db)
	for i := range events {
		if _, err := repo.Insert(context.Background(), db, &events[i]); err != nil {
			t.Fatalf("failed to insert history: %v", err)
		}
	}
}

func userID(id int64) *int64 { return &id }

func TestMediaRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert outcomes", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewMediaRepository(db)
		item := &models.MediaItem{RatingKey: "10", MediaType: models.MediaMovie, Title: "Heat", Year: 1995, AddedAt: 100}

		got, err := repo.Upsert(ctx, db, item)
		if err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if got != Created {
			t.Errorf("expected created, got %s", got)
		}

		if got, _ = repo.Upsert(ctx, db, item); got != Unchanged {
			t.Errorf("expected unchanged on replay, got %s", got)
		}

		item.Title = "Heat (Director's Cut)"
		if got, _ = repo.Upsert(ctx, db, item); got != Updated {
			t.Errorf("expected updated, got %s", got)
		}

		stored, err := repo.Get(ctx, "10")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if stored.Title != "Heat (Director's Cut)" {
			t.Errorf("expected overwritten title, got %s", stored.Title)
		}

		n, _ := repo.Count(ctx)
		if n != 1 {
			t.Errorf("expected exactly one row, got %d", n)
		}
	})

	t.Run("Upsert keeps nullable fields null", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewMediaRepository(db)
		size := int64(4096)
		mustUpsertMedia(t, db,
			models.MediaItem{RatingKey: "1", MediaType: models.MediaShow, Title: "Show"},
			models.MediaItem{RatingKey: "2", ParentRatingKey: "1", MediaType: models.MediaSeason, Title: "S1", FileSize: &size, Thumb: "/t/2"},
		)

		show, err := repo.Get(ctx, "1")
		if err != nil {
			t.Fatalf("failed to get show: %v", err)
		}
		if show.FileSize != nil || show.ParentRatingKey != "" || show.Thumb != "" || show.Year != 0 {
			t.Errorf("expected null fields, got %+v", show)
		}

		children, err := repo.ListByParent(ctx, "1")
		if err != nil {
			t.Fatalf("failed to list children: %v", err)
		}
		if len(children) != 1 || *children[0].FileSize != 4096 || children[0].Thumb != "/t/2" {
			t.Errorf("unexpected children %+v", children)
		}
	})

	t.Run("Upsert rejects invalid records", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewMediaRepository(db)

		_, err := repo.Upsert(ctx, db, &models.MediaItem{MediaType: models.MediaMovie, Title: "No Key"})
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		db := setupTestDB(t)
		if _, err := NewMediaRepository(db).Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DanglingParents", func(t *testing.T) {
		db := setupTestDB(t)
		mustUpsertMedia(t, db,
			models.MediaItem{RatingKey: "1", MediaType: models.MediaShow},
			models.MediaItem{RatingKey: "2", ParentRatingKey: "1", MediaType: models.MediaSeason},
			models.MediaItem{RatingKey: "3", ParentRatingKey: "99", MediaType: models.MediaEpisode},
		)

		keys, err := NewMediaRepository(db).DanglingParents(ctx)
		if err != nil {
			t.Fatalf("failed to query dangling parents: %v", err)
		}
		if len(keys) != 1 || keys[0] != "3" {
			t.Errorf("expected [3], got %v", keys)
		}
	})

	t.Run("CountByType and Keys", func(t *testing.T) {
		db := setupTestDB(t)
		mustUpsertMedia(t, db,
			models.MediaItem{RatingKey: "1", MediaType: models.MediaMovie},
			models.MediaItem{RatingKey: "2", MediaType: models.MediaMovie},
			models.MediaItem{RatingKey: "3", MediaType: models.MediaShow},
		)
		repo := NewMediaRepository(db)

		counts, err := repo.CountByType(ctx)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if counts[models.MediaMovie] != 2 || counts[models.MediaShow] != 1 {
			t.Errorf("unexpected counts %v", counts)
		}

		keys, err := repo.Keys(ctx)
		if err != nil {
			t.Fatalf("failed to list keys: %v", err)
		}
		if len(keys) != 3 {
			t.Errorf("expected 3 keys, got %v", keys)
		}
	})
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert outcomes", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		user := &models.User{UserID: 7, Name: "Alice", Username: "alice"}

		if got, err := repo.Upsert(ctx, db, user); err != nil || got != Created {
			t.Fatalf("expected created, got %s (%v)", got, err)
		}
		if got, _ := repo.Upsert(ctx, db, user); got != Unchanged {
			t.Errorf("expected unchanged, got %s", got)
		}
		user.Thumb = "/u/7"
		if got, _ := repo.Upsert(ctx, db, user); got != Updated {
			t.Errorf("expected updated, got %s", got)
		}
	})

	t.Run("Ensure does not overwrite directory data", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)

		if _, err := repo.Upsert(ctx, db, &models.User{UserID: 7, Name: "Alice", Thumb: "/u/7"}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		got, err := repo.Ensure(ctx, db, &models.User{UserID: 7, Name: "alice-from-history"})
		if err != nil {
			t.Fatalf("failed to ensure: %v", err)
		}
		if got != Unchanged {
			t.Errorf("expected unchanged, got %s", got)
		}

		stored, _ := repo.Get(ctx, 7)
		if stored.Name != "Alice" || stored.Thumb != "/u/7" {
			t.Errorf("expected directory data kept, got %+v", stored)
		}

		if got, _ := repo.Ensure(ctx, db, &models.User{UserID: 8, Name: "Bob"}); got != Created {
			t.Errorf("expected created placeholder, got %s", got)
		}
	})

	t.Run("TouchLastSeen only moves forward", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		repo.Ensure(ctx, db, &models.User{UserID: 7, Name: "Alice"})

		repo.TouchLastSeen(ctx, db, 7, 200)
		repo.TouchLastSeen(ctx, db, 7, 100)

		stored, err := repo.Get(ctx, 7)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if stored.LastSeen != 200 {
			t.Errorf("expected last_seen 200, got %d", stored.LastSeen)
		}

		if got, _ := repo.Upsert(ctx, db, &models.User{UserID: 7, Name: "Alice"}); got != Unchanged {
			t.Errorf("directory upsert without activity should not change last_seen, got %s", got)
		}
		stored, _ = repo.Get(ctx, 7)
		if stored.LastSeen != 200 {
			t.Errorf("expected last_seen kept at 200, got %d", stored.LastSeen)
		}
	})

	t.Run("List and Count", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		repo.Ensure(ctx, db, &models.User{UserID: 2, Name: "B"})
		repo.Ensure(ctx, db, &models.User{UserID: 1, Name: "A"})

		users, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(users) != 2 || users[0].UserID != 1 {
			t.Errorf("expected users ordered by id, got %+v", users)
		}
		if n, _ := repo.Count(ctx); n != 2 {
			t.Errorf("expected 2 users, got %d", n)
		}
	})
}

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Insert deduplicates by natural key", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewHistoryRepository(db)
		event := &models.PlayHistory{UserID: userID(1), MediaRatingKey: "10", WatchedAt: 1000, Duration: 60}

		if got, err := repo.Insert(ctx, db, event); err != nil || got != Created {
			t.Fatalf("expected created, got %s (%v)", got, err)
		}
		dup := *event
		if got, _ := repo.Insert(ctx, db, &dup); got != Unchanged {
			t.Errorf("expected duplicate to be ignored, got %s", got)
		}
		if n, _ := repo.Count(ctx); n != 1 {
			t.Errorf("expected 1 row, got %d", n)
		}
	})

	t.Run("Insert deduplicates by remote id", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewHistoryRepository(db)

		repo.Insert(ctx, db, &models.PlayHistory{ID: 5, UserID: userID(1), MediaRatingKey: "10", WatchedAt: 1000})
		if _, err := db.Exec("UPDATE play_history SET media_rating_key = NULL WHERE id = 5"); err != nil {
			t.Fatalf("failed to null reference: %v", err)
		}

		got, err := repo.Insert(ctx, db, &models.PlayHistory{ID: 5, UserID: userID(1), MediaRatingKey: "10", WatchedAt: 1000})
		if err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
		if got != Unchanged {
			t.Errorf("expected replay of an unlinked event to be ignored, got %s", got)
		}
	})

	t.Run("ListByMedia", func(t *testing.T) {
		db := setupTestDB(t)
		mustInsertHistory(t, db,
			models.PlayHistory{UserID: userID(1), MediaRatingKey: "10", WatchedAt: 2000},
			models.PlayHistory{UserID: userID(2), MediaRatingKey: "10", WatchedAt: 1000, MediaType: models.MediaMovie},
			models.PlayHistory{UserID: userID(1), MediaRatingKey: "11", WatchedAt: 1500},
		)

		events, err := NewHistoryRepository(db).ListByMedia(ctx, "10")
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(events) != 2 || events[0].WatchedAt != 1000 {
			t.Errorf("expected two events oldest first, got %+v", events)
		}
		if events[0].MediaType != models.MediaMovie || *events[0].UserID != 2 {
			t.Errorf("unexpected first event %+v", events[0])
		}
	})
}

func TestStateRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewStateRepository(db)

	if v, err := repo.Get(ctx, nil, WatermarkMedia); err != nil || v != 0 {
		t.Fatalf("expected 0 for unset watermark, got %d (%v)", v, err)
	}

	repo.Advance(ctx, db, WatermarkMedia, 500)
	repo.Advance(ctx, db, WatermarkMedia, 300)

	if v, _ := repo.Get(ctx, db, WatermarkMedia); v != 500 {
		t.Errorf("expected watermark to stay at 500, got %d", v)
	}

	t.Run("Advance in a rolled back transaction", func(t *testing.T) {
		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if err := repo.Advance(ctx, tx, WatermarkMedia, 900); err != nil {
				return err
			}
			return errors.New("batch failed")
		})
		if err == nil {
			t.Fatal("expected batch error")
		}
		if v, _ := repo.Get(ctx, db, WatermarkMedia); v != 500 {
			t.Errorf("expected rollback to keep 500, got %d", v)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		if err := repo.Reset(ctx, db, WatermarkMedia); err != nil {
			t.Fatalf("failed to reset: %v", err)
		}
		if v, _ := repo.Get(ctx, db, WatermarkMedia); v != 0 {
			t.Errorf("expected 0 after reset, got %d", v)
		}
	})
}

func TestSyncRunRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSyncRunRepository(db)

	run := &models.SyncRun{Mode: "full", Prune: true}
	if err := repo.Start(ctx, run); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if run.ID == "" || run.Status != models.RunRunning {
		t.Fatalf("expected id and running status, got %+v", run)
	}

	run.Status = models.RunPartial
	run.Created, run.Skipped, run.Error = 3, 1, "subtree 55 failed"
	if err := repo.Finish(ctx, nil, run); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	stored, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if stored.Status != models.RunPartial || stored.Created != 3 || stored.Skipped != 1 || !stored.Prune {
		t.Errorf("unexpected stored run %+v", stored)
	}
	if stored.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}

	runs, err := repo.List(ctx, 5)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	if err := repo.Finish(ctx, nil, &models.SyncRun{ID: "missing", Status: models.RunFailed}); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		mediaRepo := NewMediaRepository(db)
		if _, err := mediaRepo.Upsert(ctx, tx, &models.MediaItem{RatingKey: "1", MediaType: models.MediaMovie}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected fn error to be returned, got %v", err)
	}

	if n, _ := NewMediaRepository(db).Count(ctx); n != 0 {
		t.Errorf("expected rollback, found %d rows", n)
	}
}
