package models

import (
	"fmt"
	"strconv"
)

// User is a server account seen in the user directory or in play history.
type User struct {
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Thumb    string `json:"thumb,omitempty"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

func (u *User) Validate() error {
	if u.UserID < 0 {
		return &ValidationError{Kind: "user", Key: strconv.FormatInt(u.UserID, 10), Field: "user_id", Reason: "negative id"}
	}
	return nil
}

// PlayHistory is a single playback event.
//
// ID is the remote history row id when known. UserID and MediaRatingKey become null
// when the referenced user or item is pruned; the event itself is never deleted.
type PlayHistory struct {
	ID             int64     `json:"id,omitempty"`
	UserID         *int64    `json:"user_id,omitempty"`
	MediaRatingKey string    `json:"media_rating_key,omitempty"`
	MediaType      MediaType `json:"media_type,omitempty"`
	WatchedAt      int64     `json:"watched_at"`
	Duration       int       `json:"duration"`
}

func (h *PlayHistory) Validate() error {
	key := strconv.FormatInt(h.ID, 10)
	if h.WatchedAt <= 0 {
		return &ValidationError{Kind: "history", Key: key, Field: "watched_at", Reason: "missing"}
	}
	if h.Duration < 0 {
		return &ValidationError{Kind: "history", Key: key, Field: "duration", Reason: "negative"}
	}
	if h.MediaType != "" && !h.MediaType.Valid() {
		return &ValidationError{Kind: "history", Key: key, Field: "media_type", Reason: fmt.Sprintf("unsupported %q", h.MediaType)}
	}
	return nil
}

// ValidationError marks one malformed record. It never aborts a sync.
type ValidationError struct {
	Kind   string // media, user, history
	Key    string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid %s record: %s %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s record %s: %s %s", e.Kind, e.Key, e.Field, e.Reason)
}
