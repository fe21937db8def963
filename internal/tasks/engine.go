package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tautsync/internal/metrics"
	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/repositories"
	"github.com/desertthunder/tautsync/internal/services"
	"github.com/desertthunder/tautsync/internal/shared"
)

const defaultBatchSize = 100

// Mode selects how much of the remote library a sync reads.
type Mode string

const (
	ModeIncremental Mode = "incremental" // recently added media and new history since the watermarks
	ModeFull        Mode = "full"        // every library section, walked to the leaves
)

// ParseMode maps a flag or config value to a [Mode]. Empty strings resolve to [ModeIncremental].
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("%w: sync mode %q", shared.ErrInvalidArgument, s)
	}
}

// SyncOptions configures one [SyncEngine.Sync] call.
type SyncOptions struct {
	Mode  Mode
	Prune bool // only honored in [ModeFull]
}

// Summary reports what a sync did. It is returned even when the sync fails.
type Summary struct {
	RunID           string               `json:"run_id,omitempty"`
	Mode            Mode                 `json:"mode"`
	Prune           bool                 `json:"prune"`
	Status          models.RunStatus     `json:"status"`
	Created         int                  `json:"created"`
	Updated         int                  `json:"updated"`
	Unchanged       int                  `json:"unchanged"`
	Pruned          int                  `json:"pruned"`
	HistoryUnlinked int                  `json:"history_unlinked"`
	Skipped         int                  `json:"skipped"`
	Errored         int                  `json:"errored"`
	Fatal           bool                 `json:"fatal"`
	Error           string               `json:"error,omitempty"`
	Duration        time.Duration        `json:"duration"`
	Counts          *repositories.Counts `json:"counts,omitempty"`
}

func (s *Summary) record(o repositories.Outcome) {
	switch o {
	case repositories.Created:
		s.Created++
	case repositories.Updated:
		s.Updated++
	default:
		s.Unchanged++
	}
}

// Writes is the number of rows the sync created or changed.
func (s *Summary) Writes() int {
	return s.Created + s.Updated + s.Pruned
}

// Locker is a non-blocking mutual exclusion guard such as [shared.FileLock].
type Locker interface {
	TryLock() error
	Unlock() error
}

// EngineOpts wires a [SyncEngine]. Store and Source are required.
type EngineOpts struct {
	Source    services.Source
	Store     *repositories.Store
	Lock      Locker             // nil disables locking
	Logger    *log.Logger        // nil discards logs
	Metrics   *metrics.Collector // nil disables metrics
	BatchSize int                // rows per incremental media transaction
}

// SyncEngine mirrors a Tautulli server into the local store.
type SyncEngine struct {
	source    services.Source
	store     *repositories.Store
	lock      Locker
	logger    *log.Logger
	metrics   *metrics.Collector
	batchSize int
	now       func() time.Time
}

// NewSyncEngine creates a [SyncEngine].
func NewSyncEngine(opts EngineOpts) (*SyncEngine, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: sync source", shared.ErrMissingArgument)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: sync store", shared.ErrMissingArgument)
	}

	e := &SyncEngine{
		source:    opts.Source,
		store:     opts.Store,
		lock:      opts.Lock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		batchSize: opts.BatchSize,
		now:       time.Now,
	}
	if e.lock == nil {
		e.lock = nopLock{}
	}
	if e.logger == nil {
		e.logger = shared.NewLogger(io.Discard)
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	return e, nil
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Sync runs users, media, history and (full mode with prune) pruning, in that order.
//
// The returned error is non-nil only for fatal failures: the lock is held elsewhere, the
// server rejected the credentials, retries ran out, or the store failed. Record-level and
// subtree-level problems are counted in the [Summary] instead. Batches committed before a
// fatal error stay committed.
func (e *SyncEngine) Sync(ctx context.Context, opts SyncOptions, progress chan<- ProgressUpdate) (*Summary, error) {
	if opts.Mode == "" {
		opts.Mode = ModeIncremental
	}
	started := e.now()
	summary := &Summary{Mode: opts.Mode, Prune: opts.Prune}

	if err := e.lock.TryLock(); err != nil {
		summary.Status, summary.Fatal, summary.Error = models.RunFailed, true, err.Error()
		return summary, err
	}
	defer func() {
		if err := e.lock.Unlock(); err != nil {
			e.logger.Warn("failed to release sync lock", "error", err)
		}
	}()

	if opts.Prune && opts.Mode != ModeFull {
		e.logger.Warn("pruning requires a full sync, ignoring --prune", "mode", opts.Mode)
		summary.Prune = false
	}

	run := &models.SyncRun{Mode: string(opts.Mode), Prune: summary.Prune, StartedAt: started.UTC()}
	if err := e.store.Runs.Start(ctx, run); err != nil {
		err = fmt.Errorf("failed to record sync run: %w", err)
		summary.Status, summary.Fatal, summary.Error = models.RunFailed, true, err.Error()
		return summary, err
	}
	summary.RunID = run.ID

	r := &syncRun{
		engine:   e,
		summary:  summary,
		logger:   shared.WithLogger(e.logger, "run", run.ID, "mode", opts.Mode),
		progress: progress,
		seen:     make(map[string]models.MediaType),
	}
	r.logger.Info("sync started", "prune", summary.Prune, "source", e.source.Name())

	err := r.execute(ctx)
	return e.finalize(ctx, r, run, started, err)
}

func (e *SyncEngine) finalize(ctx context.Context, r *syncRun, run *models.SyncRun, started time.Time, runErr error) (*Summary, error) {
	s := r.summary
	if runErr != nil {
		s.Fatal = true
		s.Error = runErr.Error()
	}

	// The run record is written even when ctx was canceled.
	fctx := context.WithoutCancel(ctx)

	s.Status = models.RunSucceeded
	switch {
	case s.Fatal:
		s.Status = models.RunFailed
	case s.Skipped > 0 || s.Errored > 0:
		s.Status = models.RunPartial
	}

	finished := e.now().UTC()
	run.Status = s.Status
	run.FinishedAt = &finished
	run.Created, run.Updated, run.Unchanged = s.Created, s.Updated, s.Unchanged
	run.Pruned, run.Skipped, run.Errored = s.Pruned, s.Skipped, s.Errored
	run.Error = s.Error

	err := repositories.WithTx(fctx, e.store.DB, func(tx *sql.Tx) error {
		if err := e.store.Runs.Finish(fctx, tx, run); err != nil {
			return err
		}
		if s.Fatal || !r.libraryWalk || r.mediaIncomplete || r.maxAddedAt == 0 {
			return nil
		}
		return e.store.State.Advance(fctx, tx, repositories.WatermarkMedia, r.maxAddedAt)
	})
	if err != nil {
		err = fmt.Errorf("failed to finalize sync run: %w", err)
		r.logger.Error("finalize failed", "error", err)
		if runErr == nil {
			runErr = err
			s.Fatal, s.Status, s.Error = true, models.RunFailed, err.Error()
		}
	}

	if counts, err := e.store.Stats.Counts(fctx); err != nil {
		r.logger.Warn("failed to count rows", "error", err)
	} else {
		s.Counts = counts
	}

	s.Duration = e.now().Sub(started)
	e.metrics.ObserveRun(metrics.RunStats{
		Mode:      string(s.Mode),
		Status:    string(s.Status),
		Created:   s.Created,
		Updated:   s.Updated,
		Unchanged: s.Unchanged,
		Pruned:    s.Pruned,
		Skipped:   s.Skipped,
		Errored:   s.Errored,
		Duration:  s.Duration,
		Finished:  finished,
	})
	sendProgress(r.progress, finalizeUpdate(s))

	kv := []any{
		"status", s.Status, "created", s.Created, "updated", s.Updated, "unchanged", s.Unchanged,
		"pruned", s.Pruned, "skipped", s.Skipped, "errored", s.Errored, "duration", s.Duration,
	}
	if runErr != nil {
		r.logger.Error("sync failed", append(kv, "error", runErr)...)
		return s, runErr
	}
	r.logger.Info("sync finished", kv...)
	return s, nil
}

// syncRun holds the state of one Sync call.
type syncRun struct {
	engine   *SyncEngine
	summary  *Summary
	logger   *log.Logger
	progress chan<- ProgressUpdate

	seen            map[string]models.MediaType // rating keys written this run
	maxAddedAt      int64
	pending         []string // keys added to seen by the open transaction
	libraryWalk     bool // every supported section was paged this run
	mediaIncomplete bool // a section, page run or subtree was lost
}

func (r *syncRun) execute(ctx context.Context) error {
	users, err := r.syncUsers(ctx)
	if err != nil {
		return err
	}

	if r.summary.Mode == ModeFull {
		err = r.syncLibraries(ctx)
	} else {
		err = r.syncRecent(ctx)
	}
	if err != nil {
		return err
	}

	if err := r.syncHistory(ctx); err != nil {
		return err
	}

	if r.summary.Prune {
		return r.prune(ctx, users)
	}
	return nil
}

// recoverable reports whether err only invalidates one section, page run or subtree.
func recoverable(err error) bool {
	return services.IsLocal(err) || errors.Is(err, services.ErrPageLimit)
}

// commit runs fn in one transaction. Outcomes, seen keys and the newest added_at recorded
// by fn are dropped again when the transaction rolls back.
func (r *syncRun) commit(ctx context.Context, fn func(tx *sql.Tx) error) error {
	created, updated, unchanged := r.summary.Created, r.summary.Updated, r.summary.Unchanged
	maxAddedAt := r.maxAddedAt
	r.pending = r.pending[:0]

	err := repositories.WithTx(ctx, r.engine.store.DB, fn)
	if err != nil {
		r.summary.Created, r.summary.Updated, r.summary.Unchanged = created, updated, unchanged
		r.maxAddedAt = maxAddedAt
		for _, key := range r.pending {
			delete(r.seen, key)
		}
	}
	r.pending = r.pending[:0]
	return err
}

// skipInvalid counts err as a skipped record when it is a validation failure.
func (r *syncRun) skipInvalid(err error) bool {
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	r.summary.Skipped++
	r.logger.Warn("skipping invalid record", "kind", verr.Kind, "key", verr.Key, "error", verr)
	return true
}

func (r *syncRun) errored(msg string, err error, kv ...any) {
	r.summary.Errored++
	r.logger.Warn(msg, append(kv, "error", err)...)
}

// syncUsers upserts the user directory in one transaction and returns the remote id set.
// The set is nil when the directory could not be read.
func (r *syncRun) syncUsers(ctx context.Context) (map[int64]struct{}, error) {
	e := r.engine
	users, err := e.source.Users(ctx)
	if err != nil {
		if recoverable(err) {
			r.errored("failed to read user directory", err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	sendProgress(r.progress, usersUpdate(len(users)))

	remote := make(map[int64]struct{}, len(users))
	err = r.commit(ctx, func(tx *sql.Tx) error {
		for i := range users {
			outcome, err := e.store.Users.Upsert(ctx, tx, &users[i])
			if err != nil {
				if r.skipInvalid(err) {
					continue
				}
				return err
			}
			remote[users[i].UserID] = struct{}{}
			r.summary.record(outcome)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store users: %w", err)
	}
	return remote, nil
}

// syncLibraries walks every supported section, one transaction per top-level item.
func (r *syncRun) syncLibraries(ctx context.Context) error {
	e := r.engine
	libraries, err := e.source.Libraries(ctx)
	if err != nil {
		if recoverable(err) {
			r.mediaIncomplete = true
			r.errored("failed to list libraries", err)
			return nil
		}
		return fmt.Errorf("failed to fetch libraries: %w", err)
	}
	r.libraryWalk = true

	for i, lib := range libraries {
		rootType, ok := lib.MediaType()
		if !ok {
			r.logger.Debug("skipping unsupported library", "section", lib.SectionID, "type", lib.Type)
			continue
		}
		sendProgress(r.progress, sectionUpdate(i+1, len(libraries), lib))
		logger := shared.WithLogger(r.logger, "section", lib.SectionID)

		req := services.CollectionRequest{Kind: services.CollectionLibrary, SectionID: lib.SectionID, PageSize: e.batchSize}
		err := e.source.FetchCollection(ctx, req, func(p *services.Page) error {
			sendProgress(r.progress, mediaPageUpdate(p))
			for _, item := range p.Media {
				if item.MediaType == "" {
					item.MediaType = rootType
				}
				if item.MediaType.Valid() && !item.MediaType.TopLevel() {
					r.skipInvalid(&models.ValidationError{
						Kind: "media", Key: item.RatingKey, Field: "media_type",
						Reason: fmt.Sprintf("%s is not a library root", item.MediaType),
					})
					continue
				}
				err := r.commit(ctx, func(tx *sql.Tx) error {
					return r.syncSubtree(ctx, tx, item)
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if recoverable(err) {
				r.mediaIncomplete = true
				r.errored("library section incomplete", err, "section", lib.SectionID)
				continue
			}
			return fmt.Errorf("failed to sync library %s: %w", lib.SectionID, err)
		}
		logger.Debug("library synced", "name", lib.Name)
	}
	return nil
}

// syncRecent reads recently added items down to the media watermark and stores them oldest
// first. Each batch commits with the watermark raised to its newest item.
//
// Without a watermark there is no cut-off, so the full library walk runs instead.
func (r *syncRun) syncRecent(ctx context.Context) error {
	e := r.engine
	watermark, err := e.store.State.Get(ctx, nil, repositories.WatermarkMedia)
	if err != nil {
		return fmt.Errorf("failed to read media watermark: %w", err)
	}
	if watermark == 0 {
		r.logger.Info("no media watermark, walking every library")
		return r.syncLibraries(ctx)
	}

	// Items at the watermark are read again; the upsert leaves them unchanged.
	var fresh []models.MediaItem
	req := services.CollectionRequest{Kind: services.CollectionRecentlyAdded, PageSize: e.batchSize}
	err = e.source.FetchCollection(ctx, req, func(p *services.Page) error {
		for _, item := range p.Media {
			if item.AddedAt < watermark {
				return services.ErrStopPaging
			}
			fresh = append(fresh, item)
		}
		return nil
	})
	if err != nil {
		if !recoverable(err) {
			return fmt.Errorf("failed to fetch recently added: %w", err)
		}
		r.mediaIncomplete = true
		r.errored("recently added listing incomplete, media watermark held", err)
	}

	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].AddedAt < fresh[j].AddedAt })

	batches := (len(fresh) + e.batchSize - 1) / e.batchSize
	for b := 0; b < batches; b++ {
		batch := fresh[b*e.batchSize : min((b+1)*e.batchSize, len(fresh))]
		sendProgress(r.progress, recentUpdate(b+1, batches))

		err := r.commit(ctx, func(tx *sql.Tx) error {
			var newest int64
			for _, item := range batch {
				if err := r.syncSubtree(ctx, tx, item); err != nil {
					return err
				}
				newest = max(newest, item.AddedAt)
			}
			if r.mediaIncomplete {
				return nil
			}
			return e.store.State.Advance(ctx, tx, repositories.WatermarkMedia, newest)
		})
		if err != nil {
			return fmt.Errorf("failed to store recently added batch %d: %w", b+1, err)
		}
	}
	return nil
}

// syncSubtree writes root and everything below it through q. Each parent is stored before
// its children are requested. A failed children listing skips that node's subtree only.
func (r *syncRun) syncSubtree(ctx context.Context, q repositories.DBTX, root models.MediaItem) error {
	store := r.engine.store

	visit := func(t *tree, i int) (bool, error) {
		item := t.nodes[i].item

		if p := t.nodes[i].parent; p >= 0 {
			parent := t.nodes[p].item
			if !descends(parent.MediaType, item.MediaType) {
				r.skipInvalid(&models.ValidationError{
					Kind: "media", Key: item.RatingKey, Field: "media_type",
					Reason: fmt.Sprintf("%q cannot sit under %s %s", item.MediaType, parent.MediaType, parent.RatingKey),
				})
				return false, nil
			}
		}

		if prev, ok := r.seen[item.RatingKey]; ok {
			if prev != item.MediaType {
				r.skipInvalid(&models.ValidationError{
					Kind: "media", Key: item.RatingKey, Field: "media_type",
					Reason: fmt.Sprintf("key already synced as %s, got %s", prev, item.MediaType),
				})
			}
			return false, nil
		}

		outcome, err := store.Media.Upsert(ctx, q, &item)
		if err != nil {
			if r.skipInvalid(err) {
				return false, nil
			}
			return false, err
		}
		r.seen[item.RatingKey] = item.MediaType
		r.pending = append(r.pending, item.RatingKey)
		r.maxAddedAt = max(r.maxAddedAt, item.AddedAt)
		r.summary.record(outcome)
		return true, nil
	}

	onFetchErr := func(t *tree, i int, err error) error {
		if !recoverable(err) {
			return fmt.Errorf("failed to fetch children of %s: %w", t.nodes[i].item.RatingKey, err)
		}
		r.mediaIncomplete = true
		r.errored("skipping subtree", err, "rating_key", t.nodes[i].item.RatingKey, "path", strings.Join(t.path(i), "/"))
		return nil
	}

	return walkTree(ctx, r.engine.source, root, visit, onFetchErr)
}

// syncHistory appends play events from the history watermark onward, one transaction per page.
func (r *syncRun) syncHistory(ctx context.Context) error {
	e := r.engine
	watermark, err := e.store.State.Get(ctx, nil, repositories.WatermarkHistory)
	if err != nil {
		return fmt.Errorf("failed to read history watermark: %w", err)
	}

	req := services.CollectionRequest{Kind: services.CollectionHistory, After: watermark, PageSize: e.batchSize}
	err = e.source.FetchCollection(ctx, req, func(p *services.Page) error {
		sendProgress(r.progress, historyUpdate(p))
		return r.commit(ctx, func(tx *sql.Tx) error {
			return r.storeHistoryPage(ctx, tx, p)
		})
	})
	if err != nil {
		if recoverable(err) {
			r.errored("history incomplete", err)
			return nil
		}
		return fmt.Errorf("failed to sync history: %w", err)
	}
	return nil
}

func (r *syncRun) storeHistoryPage(ctx context.Context, tx *sql.Tx, p *services.Page) error {
	store := r.engine.store

	for _, u := range p.Users {
		outcome, err := store.Users.Ensure(ctx, tx, &u)
		if err != nil {
			if r.skipInvalid(err) {
				continue
			}
			return err
		}
		if outcome == repositories.Created {
			r.summary.Created++
		}
	}

	var newest int64
	for i := range p.History {
		h := &p.History[i]
		outcome, err := store.History.Insert(ctx, tx, h)
		if err != nil {
			if r.skipInvalid(err) {
				continue
			}
			return err
		}
		r.summary.record(outcome)
		newest = max(newest, h.WatchedAt)

		if h.UserID != nil {
			if err := store.Users.TouchLastSeen(ctx, tx, *h.UserID, h.WatchedAt); err != nil {
				return err
			}
		}
	}

	if newest == 0 {
		return nil
	}
	return store.State.Advance(ctx, tx, repositories.WatermarkHistory, newest)
}

type nopLock struct{}

func (nopLock) TryLock() error { return nil }
func (nopLock) Unlock() error  { return nil }
