package models

import (
	"fmt"
	"strings"
)

// MediaType is the kind of library node.
type MediaType string

const (
	MediaMovie   MediaType = "movie"
	MediaShow    MediaType = "show"
	MediaSeason  MediaType = "season"
	MediaEpisode MediaType = "episode"
	MediaArtist  MediaType = "artist"
	MediaAlbum   MediaType = "album"
	MediaTrack   MediaType = "track"
)

// AllMediaTypes lists every supported type, parents before children.
var AllMediaTypes = []MediaType{
	MediaMovie, MediaShow, MediaSeason, MediaEpisode, MediaArtist, MediaAlbum, MediaTrack,
}

// ParseMediaType normalizes s and reports whether it names a supported type.
func ParseMediaType(s string) (MediaType, bool) {
	t := MediaType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Valid reports whether t is one of the supported types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaMovie, MediaShow, MediaSeason, MediaEpisode, MediaArtist, MediaAlbum, MediaTrack:
		return true
	}
	return false
}

// HasChildren reports whether nodes of this type own a child listing.
func (t MediaType) HasChildren() bool {
	switch t {
	case MediaShow, MediaSeason, MediaArtist, MediaAlbum:
		return true
	}
	return false
}

// ChildType is the expected type one level down, or "" for leaves.
func (t MediaType) ChildType() MediaType {
	switch t {
	case MediaShow:
		return MediaSeason
	case MediaSeason:
		return MediaEpisode
	case MediaArtist:
		return MediaAlbum
	case MediaAlbum:
		return MediaTrack
	}
	return ""
}

// TopLevel reports whether t is a library section root (movie, show, artist).
func (t MediaType) TopLevel() bool {
	return t == MediaMovie || t == MediaShow || t == MediaArtist
}

// SectionMediaType maps a Tautulli section_type to the top-level type it contains.
// Photo and other unsupported sections report false.
func SectionMediaType(sectionType string) (MediaType, bool) {
	t, ok := ParseMediaType(sectionType)
	if !ok || !t.TopLevel() {
		return "", false
	}
	return t, true
}

// MediaItem is one library node, keyed by the server's rating key.
//
// Zero values stand in for SQL NULL: empty ParentRatingKey and Thumb, Year 0, nil FileSize.
type MediaItem struct {
	RatingKey       string    `json:"rating_key"`
	ParentRatingKey string    `json:"parent_rating_key,omitempty"`
	MediaType       MediaType `json:"media_type"`
	Title           string    `json:"title"`
	Year            int       `json:"year,omitempty"`
	AddedAt         int64     `json:"added_at"`
	FileSize        *int64    `json:"file_size,omitempty"`
	Thumb           string    `json:"thumb,omitempty"`
}

// Validate checks the identity fields and the no-self-parent rule.
func (m *MediaItem) Validate() error {
	if strings.TrimSpace(m.RatingKey) == "" {
		return &ValidationError{Kind: "media", Key: m.Title, Field: "rating_key", Reason: "missing"}
	}
	if !m.MediaType.Valid() {
		return &ValidationError{Kind: "media", Key: m.RatingKey, Field: "media_type", Reason: fmt.Sprintf("unsupported %q", m.MediaType)}
	}
	if m.ParentRatingKey == m.RatingKey {
		return &ValidationError{Kind: "media", Key: m.RatingKey, Field: "parent_rating_key", Reason: "item cannot parent itself"}
	}
	if m.AddedAt < 0 {
		return &ValidationError{Kind: "media", Key: m.RatingKey, Field: "added_at", Reason: "negative timestamp"}
	}
	if m.FileSize != nil && *m.FileSize < 0 {
		return &ValidationError{Kind: "media", Key: m.RatingKey, Field: "file_size", Reason: "negative size"}
	}
	return nil
}
