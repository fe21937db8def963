package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tautsync/internal/models"
)

// FakeTautulli is an httptest server speaking the Tautulli v2 API over in-memory fixtures.
//
// Numeric fields are served the way Tautulli does, some as strings, so clients exercise
// their lenient decoding.
type FakeTautulli struct {
	*httptest.Server
	APIKey string

	mu        sync.Mutex
	sections  []FakeSection
	items     map[string]models.MediaItem
	sectionOf map[string]string
	order     []string
	history   []models.PlayHistory
	users     map[int64]models.User
	calls     map[string]int
	queries   map[string][]url.Values
	overrides map[string]http.HandlerFunc
	failures  map[string]string
}

// FakeSection is one library section served by [FakeTautulli].
type FakeSection struct {
	ID   string
	Name string
	Type string
}

// NewFakeTautulli starts a fake server that is closed when the test ends.
func NewFakeTautulli(t *testing.T) *FakeTautulli {
	t.Helper()
	f := &FakeTautulli{
		APIKey:    "test-api-key",
		items:     make(map[string]models.MediaItem),
		sectionOf: make(map[string]string),
		users:     make(map[int64]models.User),
		calls:     make(map[string]int),
		queries:   make(map[string][]url.Values),
		overrides: make(map[string]http.HandlerFunc),
		failures:  make(map[string]string),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// AddSection registers a library section.
func (f *FakeTautulli) AddSection(id, name, sectionType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sections = append(f.sections, FakeSection{ID: id, Name: name, Type: sectionType})
}

// AddItem stores item. Items without a parent are listed under section; children are
// reachable through get_children_metadata of their parent.
func (f *FakeTautulli) AddItem(section string, item models.MediaItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.RatingKey]; !ok {
		f.order = append(f.order, item.RatingKey)
	}
	f.items[item.RatingKey] = item
	if item.ParentRatingKey == "" {
		f.sectionOf[item.RatingKey] = section
	}
}

// RemoveItem deletes an item (not its children) from the fake.
func (f *FakeTautulli) RemoveItem(ratingKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, ratingKey)
	delete(f.sectionOf, ratingKey)
	for i, k := range f.order {
		if k == ratingKey {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// AddUser stores a user directory entry.
func (f *FakeTautulli) AddUser(u models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.UserID] = u
}

// RemoveUser deletes a user directory entry.
func (f *FakeTautulli) RemoveUser(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

// AddHistory appends play events.
func (f *FakeTautulli) AddHistory(events ...models.PlayHistory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, events...)
}

// Override replaces the handler for one command.
func (f *FakeTautulli) Override(cmd string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[cmd] = h
}

// FailChildren makes get_children_metadata for ratingKey answer with an error envelope.
func (f *FakeTautulli) FailChildren(ratingKey, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[ratingKey] = message
}

// Calls reports how many requests were made for cmd.
func (f *FakeTautulli) Calls(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cmd]
}

// Queries returns the query parameters of every request made for cmd, in order.
func (f *FakeTautulli) Queries(cmd string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.queries[cmd]...)
}

// WriteEnvelope writes a Tautulli response envelope.
func WriteEnvelope(w http.ResponseWriter, status int, result, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	var msg any
	if message != "" {
		msg = message
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"response": map[string]any{"result": result, "message": msg, "data": data},
	})
}

func (f *FakeTautulli) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmd := q.Get("cmd")

	f.mu.Lock()
	f.calls[cmd]++
	f.queries[cmd] = append(f.queries[cmd], q)
	override := f.overrides[cmd]
	f.mu.Unlock()

	if r.URL.Path != "/api/v2" {
		http.NotFound(w, r)
		return
	}
	if q.Get("apikey") != f.APIKey {
		WriteEnvelope(w, http.StatusUnauthorized, "error", "Invalid apikey", nil)
		return
	}
	if override != nil {
		override(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start, _ := strconv.Atoi(q.Get("start"))
	switch cmd {
	case "get_libraries":
		WriteEnvelope(w, http.StatusOK, "success", "", f.libraries())
	case "get_library_media_info":
		items := f.sectionItems(q.Get("section_id"))
		length, _ := strconv.Atoi(q.Get("length"))
		WriteEnvelope(w, http.StatusOK, "success", "", map[string]any{
			"recordsTotal":    len(items),
			"recordsFiltered": len(items),
			"data":            renderItems(window(items, start, length)),
		})
	case "get_children_metadata":
		if msg, ok := f.failures[q.Get("rating_key")]; ok {
			WriteEnvelope(w, http.StatusOK, "error", msg, nil)
			return
		}
		children := f.children(q.Get("rating_key"))
		count, _ := strconv.Atoi(q.Get("count"))
		WriteEnvelope(w, http.StatusOK, "success", "", map[string]any{
			"children_count": strconv.Itoa(len(children)),
			"children_list":  renderItems(window(children, start, count)),
		})
	case "get_recently_added":
		count, _ := strconv.Atoi(q.Get("count"))
		WriteEnvelope(w, http.StatusOK, "success", "", map[string]any{
			"recently_added": renderItems(window(f.recent(), start, count)),
		})
	case "get_history":
		events := f.historyAfter(q.Get("after"))
		length, _ := strconv.Atoi(q.Get("length"))
		page := events
		if start < len(page) {
			page = page[start:]
		} else {
			page = nil
		}
		if length > 0 && len(page) > length {
			page = page[:length]
		}
		WriteEnvelope(w, http.StatusOK, "success", "", map[string]any{
			"recordsTotal":    len(f.history),
			"recordsFiltered": len(events),
			"data":            f.renderHistory(page),
		})
	case "get_users":
		WriteEnvelope(w, http.StatusOK, "success", "", f.renderUsers())
	default:
		WriteEnvelope(w, http.StatusOK, "error", "Unknown command: "+cmd, nil)
	}
}

func (f *FakeTautulli) libraries() []map[string]any {
	out := make([]map[string]any, 0, len(f.sections))
	for _, s := range f.sections {
		out = append(out, map[string]any{
			"section_id":   s.ID,
			"section_name": s.Name,
			"section_type": s.Type,
			"count":        strconv.Itoa(len(f.sectionItems(s.ID))),
		})
	}
	return out
}

func (f *FakeTautulli) sectionItems(section string) []models.MediaItem {
	var items []models.MediaItem
	for _, k := range f.order {
		if item, ok := f.items[k]; ok && item.ParentRatingKey == "" && f.sectionOf[k] == section {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].AddedAt < items[j].AddedAt })
	return items
}

func (f *FakeTautulli) children(parent string) []models.MediaItem {
	var items []models.MediaItem
	for _, k := range f.order {
		if item, ok := f.items[k]; ok && item.ParentRatingKey == parent {
			items = append(items, item)
		}
	}
	return items
}

// recent lists every item newest first.
func (f *FakeTautulli) recent() []models.MediaItem {
	items := make([]models.MediaItem, 0, len(f.order))
	for _, k := range f.order {
		items = append(items, f.items[k])
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].AddedAt > items[j].AddedAt })
	return items
}

// historyAfter applies the inclusive YYYY-MM-DD after filter, oldest first.
func (f *FakeTautulli) historyAfter(after string) []models.PlayHistory {
	var from int64
	if after != "" {
		if day, err := time.Parse(time.DateOnly, after); err == nil {
			from = day.Unix()
		}
	}
	var events []models.PlayHistory
	for _, h := range f.history {
		if h.WatchedAt >= from {
			events = append(events, h)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].WatchedAt != events[j].WatchedAt {
			return events[i].WatchedAt < events[j].WatchedAt
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func (f *FakeTautulli) renderHistory(events []models.PlayHistory) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, h := range events {
		row := map[string]any{
			"id":         h.ID,
			"date":       h.WatchedAt,
			"started":    h.WatchedAt,
			"duration":   strconv.Itoa(h.Duration),
			"rating_key": h.MediaRatingKey,
			"media_type": string(h.MediaType),
			"user_id":    nil,
		}
		if h.UserID != nil {
			row["user_id"] = *h.UserID
			u := f.users[*h.UserID]
			row["user"] = u.Username
			row["friendly_name"] = u.Name
		}
		out = append(out, row)
	}
	return out
}

func (f *FakeTautulli) renderUsers() []map[string]any {
	ids := make([]int64, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		u := f.users[id]
		out = append(out, map[string]any{
			"user_id":       u.UserID,
			"username":      u.Username,
			"friendly_name": u.Name,
			"thumb":         u.Thumb,
			"last_seen":     nil,
		})
	}
	return out
}

func renderItems(items []models.MediaItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row := map[string]any{
			"rating_key":        item.RatingKey,
			"parent_rating_key": item.ParentRatingKey,
			"media_type":        string(item.MediaType),
			"title":             item.Title,
			"year":              strconv.Itoa(item.Year),
			"added_at":          strconv.FormatInt(item.AddedAt, 10),
			"thumb":             item.Thumb,
			"file_size":         "",
		}
		if item.Year == 0 {
			row["year"] = ""
		}
		if item.FileSize != nil {
			row["file_size"] = *item.FileSize
		}
		out = append(out, row)
	}
	return out
}

func window(items []models.MediaItem, start, length int) []models.MediaItem {
	if start >= len(items) {
		return nil
	}
	items = items[start:]
	if length > 0 && len(items) > length {
		items = items[:length]
	}
	return items
}
