package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func TestPruneRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("PruneMedia deletes orphans and keeps history", func(t *testing.T) {
		db := setupTestDB(t)

		remote := make(map[string]struct{})
		var items []models.MediaItem
		for i := 1; i <= 500; i++ {
			key := fmt.Sprintf("%d", i)
			items = append(items, models.MediaItem{RatingKey: key, MediaType: models.MediaMovie, Title: "m" + key})
			if key != "55" {
				remote[key] = struct{}{}
			}
		}
		mustUpsertMedia(t, db, items...)
		mustInsertHistory(t, db,
			models.PlayHistory{UserID: userID(1), MediaRatingKey: "55", WatchedAt: 100},
			models.PlayHistory{UserID: userID(2), MediaRatingKey: "55", WatchedAt: 200},
			models.PlayHistory{UserID: userID(1), MediaRatingKey: "56", WatchedAt: 300},
		)
		history := NewHistoryRepository(db)
		before, _ := history.Count(ctx)

		result, err := NewPruneRepository(db).PruneMedia(ctx, remote)
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}
		if result.Deleted != 1 || result.HistoryUnlinked != 2 {
			t.Errorf("unexpected result %+v", result)
		}

		if _, err := NewMediaRepository(db).Get(ctx, "55"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected 55 to be pruned, got %v", err)
		}
		if after, _ := history.Count(ctx); after != before {
			t.Errorf("history count changed: %d -> %d", before, after)
		}

		unlinked, err := history.ListUnlinked(ctx)
		if err != nil {
			t.Fatalf("failed to list unlinked: %v", err)
		}
		if len(unlinked) != 2 {
			t.Errorf("expected 2 unlinked events, got %d", len(unlinked))
		}
		if kept, _ := history.ListByMedia(ctx, "56"); len(kept) != 1 {
			t.Errorf("expected history of surviving item untouched, got %d", len(kept))
		}
	})

	t.Run("PruneMedia nulls surviving children of removed parents", func(t *testing.T) {
		db := setupTestDB(t)
		mustUpsertMedia(t, db,
			models.MediaItem{RatingKey: "100", MediaType: models.MediaShow},
			models.MediaItem{RatingKey: "101", ParentRatingKey: "100", MediaType: models.MediaSeason},
			models.MediaItem{RatingKey: "102", ParentRatingKey: "101", MediaType: models.MediaEpisode},
		)

		result, err := NewPruneRepository(db).PruneMedia(ctx, keySet("101", "102"))
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}
		if result.Deleted != 1 || result.ChildrenOrphans != 1 {
			t.Errorf("unexpected result %+v", result)
		}

		dangling, err := NewMediaRepository(db).DanglingParents(ctx)
		if err != nil {
			t.Fatalf("failed to query dangling: %v", err)
		}
		if len(dangling) != 0 {
			t.Errorf("expected no dangling parents, got %v", dangling)
		}
	})

	t.Run("PruneMedia refuses an empty remote set", func(t *testing.T) {
		db := setupTestDB(t)
		mustUpsertMedia(t, db, models.MediaItem{RatingKey: "1", MediaType: models.MediaMovie})

		_, err := NewPruneRepository(db).PruneMedia(ctx, map[string]struct{}{})
		if !errors.Is(err, shared.ErrPruneUnsafe) {
			t.Fatalf("expected ErrPruneUnsafe, got %v", err)
		}
		if n, _ := NewMediaRepository(db).Count(ctx); n != 1 {
			t.Errorf("expected nothing deleted, got %d rows", n)
		}
	})

	t.Run("PruneMedia is idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		mustUpsertMedia(t, db,
			models.MediaItem{RatingKey: "1", MediaType: models.MediaMovie},
			models.MediaItem{RatingKey: "2", MediaType: models.MediaMovie},
		)
		repo := NewPruneRepository(db)

		if _, err := repo.PruneMedia(ctx, keySet("1")); err != nil {
			t.Fatalf("first prune failed: %v", err)
		}
		result, err := repo.PruneMedia(ctx, keySet("1"))
		if err != nil {
			t.Fatalf("second prune failed: %v", err)
		}
		if result.Deleted != 0 {
			t.Errorf("expected nothing to delete on second pass, got %+v", result)
		}
	})

	t.Run("PruneUsers", func(t *testing.T) {
		db := setupTestDB(t)
		users := NewUserRepository(db)
		users.Ensure(ctx, db, &models.User{UserID: 1, Name: "a"})
		users.Ensure(ctx, db, &models.User{UserID: 2, Name: "b"})
		mustInsertHistory(t, db,
			models.PlayHistory{UserID: userID(2), MediaRatingKey: "10", WatchedAt: 100},
		)

		result, err := NewPruneRepository(db).PruneUsers(ctx, map[int64]struct{}{1: {}})
		if err != nil {
			t.Fatalf("failed to prune users: %v", err)
		}
		if result.Deleted != 1 || result.HistoryUnlinked != 1 {
			t.Errorf("unexpected result %+v", result)
		}

		events, _ := NewHistoryRepository(db).ListByMedia(ctx, "10")
		if len(events) != 1 || events[0].UserID != nil {
			t.Errorf("expected event kept with null user, got %+v", events)
		}
	})

	t.Run("drops key set tables after pruning", func(t *testing.T) {
		db := setupTestDB(t)
		mustUpsertMedia(t, db, models.MediaItem{RatingKey: "1", MediaType: models.MediaMovie, Title: "m1"})
		NewUserRepository(db).Ensure(ctx, db, &models.User{UserID: 1, Name: "a"})

		prune := NewPruneRepository(db)
		if _, err := prune.PruneMedia(ctx, keySet("1")); err != nil {
			t.Fatalf("failed to prune media: %v", err)
		}
		if _, err := prune.PruneUsers(ctx, map[int64]struct{}{1: {}}); err != nil {
			t.Fatalf("failed to prune users: %v", err)
		}

		var tables int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_temp_master
			WHERE type = 'table' AND name IN ('prune_remote_media', 'prune_remote_users')`).Scan(&tables)
		if err != nil {
			t.Fatalf("failed to inspect temp schema: %v", err)
		}
		if tables != 0 {
			t.Errorf("expected key set tables to be dropped, found %d", tables)
		}
	})
}
