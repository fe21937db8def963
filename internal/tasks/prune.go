package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tautsync/internal/services"
	"github.com/desertthunder/tautsync/internal/shared"
)

// CollectAllRemoteKeys walks every supported library section down to the leaves and returns
// the set of valid rating keys the server currently lists.
//
// The walk is independent of any sync and writes nothing. Any failure, including a page
// limit or a single failed children listing, returns an error: a partial set must never
// drive pruning.
func CollectAllRemoteKeys(ctx context.Context, src services.Source, logger *log.Logger) (map[string]struct{}, error) {
	libraries, err := src.Libraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}

	keys := make(map[string]struct{})
	visit := func(t *tree, i int) (bool, error) {
		item := t.nodes[i].item
		if item.Validate() != nil {
			return false, nil
		}
		if _, ok := keys[item.RatingKey]; ok {
			return false, nil
		}
		keys[item.RatingKey] = struct{}{}
		return true, nil
	}
	onFetchErr := func(t *tree, i int, err error) error {
		return fmt.Errorf("failed to fetch children of %s: %w", t.nodes[i].item.RatingKey, err)
	}

	for _, lib := range libraries {
		rootType, ok := lib.MediaType()
		if !ok {
			continue
		}

		req := services.CollectionRequest{Kind: services.CollectionLibrary, SectionID: lib.SectionID}
		err := src.FetchCollection(ctx, req, func(p *services.Page) error {
			for _, root := range p.Media {
				if root.MediaType == "" {
					root.MediaType = rootType
				}
				if err := walkTree(ctx, src, root, visit, onFetchErr); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to collect keys of library %s: %w", lib.SectionID, err)
		}
		if logger != nil {
			logger.Debug("collected library keys", "section", lib.SectionID, "total", len(keys))
		}
	}
	return keys, nil
}

// prune deletes media and users the server no longer lists. users is the directory read at
// the start of the run, nil when it could not be read.
func (r *syncRun) prune(ctx context.Context, users map[int64]struct{}) error {
	e := r.engine
	sendProgress(r.progress, collectKeysUpdate())

	keys, err := CollectAllRemoteKeys(ctx, e.source, r.logger)
	switch {
	case err == nil:
		res, err := e.store.Prune.PruneMedia(ctx, keys)
		if err != nil {
			if !errors.Is(err, shared.ErrPruneUnsafe) {
				return fmt.Errorf("failed to prune media: %w", err)
			}
			r.errored("media prune refused", err)
			break
		}
		r.summary.Pruned += res.Deleted
		r.summary.HistoryUnlinked += res.HistoryUnlinked
		r.logger.Info("pruned media", "deleted", res.Deleted, "history_unlinked", res.HistoryUnlinked, "orphaned_children", res.ChildrenOrphans)
	case recoverable(err):
		r.errored("remote key set incomplete, skipping media prune", err)
	default:
		return err
	}

	if users == nil {
		r.errored("user directory unavailable, skipping user prune", shared.ErrPruneUnsafe)
	} else {
		res, err := e.store.Prune.PruneUsers(ctx, users)
		if err != nil {
			if !errors.Is(err, shared.ErrPruneUnsafe) {
				return fmt.Errorf("failed to prune users: %w", err)
			}
			r.errored("user prune refused", err)
		} else {
			r.summary.Pruned += res.Deleted
			r.summary.HistoryUnlinked += res.HistoryUnlinked
			r.logger.Info("pruned users", "deleted", res.Deleted, "history_unlinked", res.HistoryUnlinked)
		}
	}

	sendProgress(r.progress, pruneUpdate(r.summary.Pruned))
	return nil
}
