package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

// FetchCollection pages through req.Kind, calling visit once per non-empty page.
//
// Paging stops on an empty page, a short page, or once the remote's reported total is reached.
// After max_pages full pages it returns [ErrPageLimit]; every page read before that was delivered.
// All requests of one fetch share a single retry budget.
func (s *TautulliService) FetchCollection(ctx context.Context, req CollectionRequest, visit func(*Page) error) error {
	op, err := req.command()
	if err != nil {
		return err
	}

	size := req.PageSize
	if size <= 0 {
		size = s.pageSize
	}
	budget := newRetryBudget(s.retryBudget)

	for n := 0; ; n++ {
		if n >= s.maxPages {
			return fmt.Errorf("%s: %w after %d pages", op, ErrPageLimit, n)
		}

		start := n * size
		raw, err := s.call(ctx, op, req.params(start, size, n == 0), s.newBackOff(budget))
		if err != nil {
			return err
		}

		page, received, err := req.decode(op, raw)
		if err != nil {
			return err
		}
		page.Number = n + 1
		page.Start = start

		s.logger.Debug("fetched page", "collection", req.Kind, "page", page.Number, "records", received, "total", page.Total)

		if received == 0 {
			return nil
		}
		if page.Len() > 0 {
			if err := visit(page); err != nil {
				if errors.Is(err, ErrStopPaging) {
					return nil
				}
				return err
			}
		}
		if received < size || (page.Total > 0 && start+received >= page.Total) {
			return nil
		}
	}
}

// CollectMedia gathers every media item of a library, recently-added or children collection.
// On [ErrPageLimit] the items read so far are returned with the error.
func (s *TautulliService) CollectMedia(ctx context.Context, req CollectionRequest) ([]models.MediaItem, error) {
	var items []models.MediaItem
	err := s.FetchCollection(ctx, req, func(p *Page) error {
		items = append(items, p.Media...)
		return nil
	})
	return items, err
}

func (req CollectionRequest) command() (string, error) {
	switch req.Kind {
	case CollectionLibrary:
		if req.SectionID == "" {
			return "", fmt.Errorf("%w: section id is required for library collections", shared.ErrMissingArgument)
		}
		return "get_library_media_info", nil
	case CollectionRecentlyAdded:
		return "get_recently_added", nil
	case CollectionHistory:
		return "get_history", nil
	case CollectionChildren:
		if req.ParentKey == "" {
			return "", fmt.Errorf("%w: parent key is required for children collections", shared.ErrMissingArgument)
		}
		return "get_children_metadata", nil
	default:
		return "", fmt.Errorf("%w: collection %d", shared.ErrInvalidArgument, req.Kind)
	}
}

// params builds the query for one page. Library listings force a server-side refresh on
// their first page so later pages read the refreshed listing.
func (req CollectionRequest) params(start, size int, first bool) url.Values {
	v := url.Values{}
	v.Set("start", strconv.Itoa(start))

	switch req.Kind {
	case CollectionLibrary:
		v.Set("section_id", req.SectionID)
		v.Set("length", strconv.Itoa(size))
		v.Set("order_column", "added_at")
		v.Set("order_dir", "asc")
		if first {
			v.Set("refresh", "true")
		}
	case CollectionRecentlyAdded:
		v.Set("count", strconv.Itoa(size))
		if req.SectionID != "" {
			v.Set("section_id", req.SectionID)
		}
	case CollectionHistory:
		v.Set("length", strconv.Itoa(size))
		v.Set("order_column", "date")
		v.Set("order_dir", "asc")
		v.Set("grouping", "0")
		if req.After > 0 {
			// after is a server-local date; step back a day and filter exactly on decode.
			v.Set("after", time.Unix(req.After, 0).UTC().AddDate(0, 0, -1).Format(time.DateOnly))
		}
	case CollectionChildren:
		v.Set("rating_key", req.ParentKey)
		v.Set("count", strconv.Itoa(size))
		if req.ParentType != "" {
			v.Set("media_type", string(req.ParentType))
		}
	}
	return v
}

// decode returns the page, the number of records the remote sent, and any shape error.
func (req CollectionRequest) decode(op string, raw []byte) (*Page, int, error) {
	page := &Page{}

	switch req.Kind {
	case CollectionLibrary:
		var data libraryMediaData
		if err := decodeData(op, raw, &data); err != nil {
			return nil, 0, err
		}
		page.Total = int(data.RecordsFiltered)
		if page.Total == 0 {
			page.Total = int(data.RecordsTotal)
		}
		for _, w := range data.Data {
			page.Media = append(page.Media, w.item())
		}
		return page, len(data.Data), nil

	case CollectionRecentlyAdded:
		var data recentlyAddedData
		if err := decodeData(op, raw, &data); err != nil {
			return nil, 0, err
		}
		for _, w := range data.RecentlyAdded {
			page.Media = append(page.Media, w.item())
		}
		return page, len(data.RecentlyAdded), nil

	case CollectionHistory:
		var data historyData
		if err := decodeData(op, raw, &data); err != nil {
			return nil, 0, err
		}
		page.Total = int(data.RecordsFiltered)
		page.Users = make(map[int64]models.User)
		for _, w := range data.Data {
			event := w.event()
			if req.After > 0 && event.WatchedAt < req.After {
				continue
			}
			page.History = append(page.History, event)
			if u, ok := w.user(); ok {
				page.Users[u.UserID] = u
			}
		}
		return page, len(data.Data), nil

	case CollectionChildren:
		var data childrenData
		if err := decodeData(op, raw, &data); err != nil {
			return nil, 0, err
		}
		page.Total = int(data.ChildrenCount)
		for _, w := range data.ChildrenList {
			item := w.item()
			item.ParentRatingKey = req.ParentKey
			if item.MediaType == "" {
				item.MediaType = req.ParentType.ChildType()
			}
			page.Media = append(page.Media, item)
		}
		return page, len(data.ChildrenList), nil
	}
	return nil, 0, fmt.Errorf("%w: collection %d", shared.ErrInvalidArgument, req.Kind)
}
