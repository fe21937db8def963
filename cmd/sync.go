package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/desertthunder/tautsync/internal/tasks"
	"github.com/desertthunder/tautsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Sync runs one synchronization and prints its summary.
//
// Exits with code 1 when the run hit a fatal error; partial runs exit 0.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.syncOptions(cmd)
	if err != nil {
		return err
	}
	asJSON := cmd.Bool("json")

	summary, err := r.runSync(ctx, opts, !asJSON)
	if summary == nil {
		return err
	}

	if asJSON {
		if werr := r.writeJSON(summary, true); werr != nil {
			return werr
		}
	} else {
		r.writePlain("\n%s", ui.RenderSummary(summary))
	}

	if err != nil || summary.Fatal {
		return cli.Exit(fmt.Sprintf("sync failed: %s", summary.Error), 1)
	}
	return nil
}

// syncOptions resolves mode and prune from flags, falling back to the [sync] config section.
func (r *Runner) syncOptions(cmd *cli.Command) (tasks.SyncOptions, error) {
	mode, err := tasks.ParseMode(r.config.Sync.Mode)
	if err != nil {
		return tasks.SyncOptions{}, err
	}
	if cmd.Bool("full") {
		mode = tasks.ModeFull
	}

	prune := r.config.Sync.Prune
	if cmd.IsSet("prune") {
		prune = cmd.Bool("prune")
	}
	return tasks.SyncOptions{Mode: mode, Prune: prune}, nil
}

// runSync builds an engine for one run, streams progress lines when showProgress is set
// and pushes metrics afterwards.
//
// The summary is nil only when the engine could not be built.
func (r *Runner) runSync(ctx context.Context, opts tasks.SyncOptions, showProgress bool) (*tasks.Summary, error) {
	client, err := r.tautulli()
	if err != nil {
		return nil, err
	}
	store, release, err := r.openStore()
	if err != nil {
		return nil, err
	}
	defer release()

	var lock tasks.Locker
	if path := r.config.Sync.LockPath; path != "" {
		lock = shared.NewFileLock(path)
	}

	engine, err := tasks.NewSyncEngine(tasks.EngineOpts{
		Source:    client,
		Store:     store,
		Lock:      lock,
		Logger:    r.logger,
		Metrics:   r.metrics,
		BatchSize: client.PageSize(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}

	var progress chan tasks.ProgressUpdate
	done := make(chan struct{})
	if showProgress {
		progress = make(chan tasks.ProgressUpdate, 32)
		go func() {
			defer close(done)
			for update := range progress {
				r.writePlain("%s\n", ui.RenderProgress(update))
			}
		}()
	} else {
		close(done)
	}

	summary, err := engine.Sync(ctx, opts, progress)
	if progress != nil {
		close(progress)
	}
	<-done

	if perr := r.metrics.Push(context.WithoutCancel(ctx), r.config.Metrics.PushgatewayURL, r.config.Metrics.Job); perr != nil {
		r.logger.Warn("failed to push metrics", "error", perr)
	}
	return summary, err
}
