package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/tautsync/internal/models"
)

// flexInt decodes numbers that Tautulli sends as JSON numbers, numeric strings, "" or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	if s == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expected a number, got %s", b)
	}
	*f = flexInt(int64(fl))
	return nil
}

// flexString decodes strings that may arrive as numbers or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case string(b) == "null":
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected a string, got %s", b)
		}
		*f = flexString(n.String())
	}
	return nil
}

func (f flexString) String() string { return string(f) }

type envelope struct {
	Response *struct {
		Result  string          `json:"result"`
		Message *string         `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"response"`
}

type libraryWire struct {
	SectionID   flexString `json:"section_id"`
	SectionName flexString `json:"section_name"`
	SectionType flexString `json:"section_type"`
	Count       flexInt    `json:"count"`
}

type mediaWire struct {
	RatingKey       flexString `json:"rating_key"`
	ParentRatingKey flexString `json:"parent_rating_key"`
	MediaType       flexString `json:"media_type"`
	Title           flexString `json:"title"`
	Year            flexInt    `json:"year"`
	AddedAt         flexInt    `json:"added_at"`
	FileSize        flexInt    `json:"file_size"`
	Thumb           flexString `json:"thumb"`
}

func (w mediaWire) item() models.MediaItem {
	item := models.MediaItem{
		RatingKey:       w.RatingKey.String(),
		ParentRatingKey: w.ParentRatingKey.String(),
		MediaType:       models.MediaType(strings.ToLower(w.MediaType.String())),
		Title:           w.Title.String(),
		Year:            int(w.Year),
		AddedAt:         int64(w.AddedAt),
		Thumb:           w.Thumb.String(),
	}
	if w.FileSize > 0 {
		size := int64(w.FileSize)
		item.FileSize = &size
	}
	return item
}

type libraryMediaData struct {
	RecordsTotal    flexInt     `json:"recordsTotal"`
	RecordsFiltered flexInt     `json:"recordsFiltered"`
	Data            []mediaWire `json:"data"`
}

type childrenData struct {
	ChildrenCount flexInt     `json:"children_count"`
	ChildrenList  []mediaWire `json:"children_list"`
}

type recentlyAddedData struct {
	RecentlyAdded []mediaWire `json:"recently_added"`
}

type historyWire struct {
	ID           flexInt    `json:"id"`
	Date         flexInt    `json:"date"`
	Started      flexInt    `json:"started"`
	Duration     flexInt    `json:"duration"`
	PlayDuration flexInt    `json:"play_duration"`
	UserID       *flexInt   `json:"user_id"`
	User         flexString `json:"user"`
	FriendlyName flexString `json:"friendly_name"`
	UserThumb    flexString `json:"user_thumb"`
	RatingKey    flexString `json:"rating_key"`
	MediaType    flexString `json:"media_type"`
}

// event converts w, preferring date over started and duration over play_duration.
func (w historyWire) event() models.PlayHistory {
	h := models.PlayHistory{
		ID:             int64(w.ID),
		MediaRatingKey: w.RatingKey.String(),
		MediaType:      models.MediaType(strings.ToLower(w.MediaType.String())),
		WatchedAt:      int64(w.Date),
		Duration:       int(w.Duration),
	}
	if h.WatchedAt == 0 {
		h.WatchedAt = int64(w.Started)
	}
	if h.Duration == 0 {
		h.Duration = int(w.PlayDuration)
	}
	if w.UserID != nil {
		id := int64(*w.UserID)
		h.UserID = &id
	}
	return h
}

// user returns the account a history row refers to, if any.
func (w historyWire) user() (models.User, bool) {
	if w.UserID == nil {
		return models.User{}, false
	}
	name := w.FriendlyName.String()
	if name == "" {
		name = w.User.String()
	}
	return models.User{
		UserID:   int64(*w.UserID),
		Name:     name,
		Username: w.User.String(),
		Thumb:    w.UserThumb.String(),
	}, true
}

type historyData struct {
	RecordsTotal    flexInt       `json:"recordsTotal"`
	RecordsFiltered flexInt       `json:"recordsFiltered"`
	Data            []historyWire `json:"data"`
}

type userWire struct {
	UserID       flexInt    `json:"user_id"`
	Username     flexString `json:"username"`
	FriendlyName flexString `json:"friendly_name"`
	Thumb        flexString `json:"thumb"`
	LastSeen     flexInt    `json:"last_seen"`
}

func (w userWire) user() models.User {
	name := w.FriendlyName.String()
	if name == "" {
		name = w.Username.String()
	}
	return models.User{
		UserID:   int64(w.UserID),
		Name:     name,
		Username: w.Username.String(),
		Thumb:    w.Thumb.String(),
		LastSeen: int64(w.LastSeen),
	}
}

// emptyData reports whether a data payload carries nothing.
func emptyData(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}

func decodeData(op string, raw json.RawMessage, out any) error {
	if emptyData(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return shapeError(op, fmt.Errorf("failed to decode data: %w", err))
	}
	return nil
}
