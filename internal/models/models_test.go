package models

import (
	"errors"
	"strings"
	"testing"
)

func TestMediaType(t *testing.T) {
	t.Run("ParseMediaType", func(t *testing.T) {
		tc := []struct {
			in   string
			want MediaType
			ok   bool
		}{
			{in: "movie", want: MediaMovie, ok: true},
			{in: " Episode ", want: MediaEpisode, ok: true},
			{in: "photo", want: MediaType("photo"), ok: false},
			{in: "", want: MediaType(""), ok: false},
		}
		for _, tt := range tc {
			got, ok := ParseMediaType(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseMediaType(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		}
	})

	t.Run("hierarchy", func(t *testing.T) {
		chains := [][]MediaType{
			{MediaShow, MediaSeason, MediaEpisode},
			{MediaArtist, MediaAlbum, MediaTrack},
		}
		for _, chain := range chains {
			for i := 0; i < len(chain)-1; i++ {
				if !chain[i].HasChildren() {
					t.Errorf("%s should have children", chain[i])
				}
				if chain[i].ChildType() != chain[i+1] {
					t.Errorf("%s child = %s, want %s", chain[i], chain[i].ChildType(), chain[i+1])
				}
			}
			leaf := chain[len(chain)-1]
			if leaf.HasChildren() || leaf.ChildType() != "" {
				t.Errorf("%s should be a leaf", leaf)
			}
		}
		if MediaMovie.HasChildren() {
			t.Error("movies are leaves")
		}
	})

	t.Run("SectionMediaType", func(t *testing.T) {
		if got, ok := SectionMediaType("show"); !ok || got != MediaShow {
			t.Errorf("expected show section, got %q %v", got, ok)
		}
		if _, ok := SectionMediaType("photo"); ok {
			t.Error("photo sections are unsupported")
		}
		if _, ok := SectionMediaType("episode"); ok {
			t.Error("episode is not a section type")
		}
	})
}

func TestMediaItemValidate(t *testing.T) {
	size := int64(-1)
	tc := []struct {
		name  string
		item  MediaItem
		field string
	}{
		{name: "valid", item: MediaItem{RatingKey: "1", MediaType: MediaMovie, Title: "Heat"}},
		{name: "missing key", item: MediaItem{MediaType: MediaMovie, Title: "Heat"}, field: "rating_key"},
		{name: "blank key", item: MediaItem{RatingKey: "  ", MediaType: MediaMovie}, field: "rating_key"},
		{name: "bad type", item: MediaItem{RatingKey: "1", MediaType: "clip"}, field: "media_type"},
		{name: "self parent", item: MediaItem{RatingKey: "1", ParentRatingKey: "1", MediaType: MediaSeason}, field: "parent_rating_key"},
		{name: "negative size", item: MediaItem{RatingKey: "1", MediaType: MediaMovie, FileSize: &size}, field: "file_size"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestPlayHistoryValidate(t *testing.T) {
	if err := (&PlayHistory{WatchedAt: 10, Duration: 60}).Validate(); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := (&PlayHistory{Duration: 60}).Validate(); err == nil {
		t.Error("expected error for missing watched_at")
	}
	if err := (&PlayHistory{WatchedAt: 10, Duration: -1}).Validate(); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Kind: "media", Key: "55", Field: "media_type", Reason: "unsupported"}
	if !strings.Contains(err.Error(), "media record 55") {
		t.Errorf("unexpected message %q", err.Error())
	}
	err = &ValidationError{Kind: "user", Field: "user_id", Reason: "negative id"}
	if strings.Contains(err.Error(), "  ") {
		t.Errorf("unexpected double space in %q", err.Error())
	}
}
