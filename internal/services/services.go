// package services defines interface Source for reading a media server's library and activity
//
// Tautulli (API v2)
package services

import (
	"context"

	"github.com/desertthunder/tautsync/internal/models"
)

// Source defines the remote API the sync engine reads from.
type Source interface {
	// Libraries lists the configured library sections.
	Libraries(ctx context.Context) ([]Library, error)

	// Users lists the server's user directory.
	Users(ctx context.Context) ([]models.User, error)

	// FetchCollection pages through a collection, handing each page to visit in order.
	// Returning [ErrStopPaging] from visit ends the fetch without error.
	FetchCollection(ctx context.Context, req CollectionRequest, visit func(*Page) error) error

	// FetchChildren returns the direct children of a hierarchical item.
	FetchChildren(ctx context.Context, parentKey string, parentType models.MediaType) ([]models.MediaItem, error)

	// Name returns the name of the service (e.g., "Tautulli")
	Name() string
}

// Library is one library section on the server.
type Library struct {
	SectionID string `json:"section_id"`
	Name      string `json:"section_name"`
	Type      string `json:"section_type"`
	Count     int    `json:"count"`
}

// MediaType is the top-level type stored in this section, false for unsupported sections.
func (l Library) MediaType() (models.MediaType, bool) {
	return models.SectionMediaType(l.Type)
}

// Collection names a paginated remote listing.
type Collection int

const (
	CollectionLibrary       Collection = iota // top-level items of one section, oldest first
	CollectionRecentlyAdded                   // recently added items across sections, newest first
	CollectionHistory                         // play history, oldest first
	CollectionChildren                        // direct children of one item
)

func (c Collection) String() string {
	switch c {
	case CollectionLibrary:
		return "library"
	case CollectionRecentlyAdded:
		return "recently_added"
	case CollectionHistory:
		return "history"
	case CollectionChildren:
		return "children"
	default:
		return "unknown"
	}
}

// CollectionRequest selects a collection and its filters.
type CollectionRequest struct {
	Kind      Collection
	SectionID string // required for CollectionLibrary, optional filter for CollectionRecentlyAdded
	After     int64  // CollectionHistory: only events watched at or after this unix time
	PageSize  int    // zero uses the service default

	ParentKey  string           // CollectionChildren
	ParentType models.MediaType // CollectionChildren, optional
}

// Page is one decoded page of a collection.
type Page struct {
	Number  int // 1-based
	Start   int // offset of the first record
	Total   int // remote record count when reported, else 0
	Media   []models.MediaItem
	History []models.PlayHistory
	Users   map[int64]models.User // accounts referenced by History
}

// Len is the number of records delivered in p.
func (p *Page) Len() int {
	return len(p.Media) + len(p.History)
}
