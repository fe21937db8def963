package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/tautsync/internal/models"
)

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("closed database yields StoreError", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewMediaRepository(db)
		db.Close()

		_, err := repo.Upsert(ctx, db, &models.MediaItem{RatingKey: "1", MediaType: models.MediaMovie})
		var se *StoreError
		if !errors.As(err, &se) {
			t.Fatalf("expected StoreError, got %v", err)
		}
		if se.Op == "" || se.Unwrap() == nil {
			t.Errorf("expected op and cause, got %+v", se)
		}
	})

	t.Run("storeErr does not double wrap", func(t *testing.T) {
		inner := storeErr("inner", errors.New("disk full"))
		outer := storeErr("outer", inner)
		if outer != inner {
			t.Errorf("expected the original StoreError, got %v", outer)
		}
		if storeErr("noop", nil) != nil {
			t.Error("expected nil for nil error")
		}
	})

	t.Run("validation errors are not store errors", func(t *testing.T) {
		db := setupTestDB(t)
		_, err := NewHistoryRepository(db).Insert(ctx, db, &models.PlayHistory{})
		var se *StoreError
		if errors.As(err, &se) {
			t.Errorf("expected plain validation error, got StoreError %v", err)
		}
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("Outcome strings", func(t *testing.T) {
		for o, want := range map[Outcome]string{Created: "created", Updated: "updated", Unchanged: "unchanged"} {
			if o.String() != want {
				t.Errorf("Outcome(%d).String() = %s, want %s", o, o.String(), want)
			}
		}
	})
}
