package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tautsync/internal/server"
	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/desertthunder/tautsync/internal/tasks"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

// cronLogger adapts a [log.Logger] to [cron.Logger].
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug(msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}

// Schedule runs syncs on a cron spec until the context is canceled.
//
// A tick that fires while the previous sync is still running is skipped. Failed runs are
// logged and the schedule keeps going.
func (r *Runner) Schedule(ctx context.Context, cmd *cli.Command) error {
	spec := cmd.String("spec")
	if spec == "" {
		spec = r.config.Sync.Schedule
	}
	if spec == "" {
		return fmt.Errorf("%w: --spec or sync.schedule is required", shared.ErrMissingArgument)
	}

	opts, err := r.syncOptions(cmd)
	if err != nil {
		return err
	}

	logger := shared.WithLogger(r.logger, "component", "scheduler")
	clog := cronLogger{l: logger}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))

	job := func() { r.scheduledSync(ctx, logger, opts) }
	id, err := c.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("%w: schedule %q: %v", shared.ErrInvalidFlag, spec, err)
	}

	if cmd.Bool("now") {
		job()
	}

	listenErr := make(chan error, 1)
	if addr := r.listenAddr(cmd); addr != "" {
		release, err := r.startStatusListener(ctx, addr, listenErr)
		if err != nil {
			return err
		}
		defer release()
	}

	c.Start()
	logger.Info("scheduler started", "spec", spec, "mode", opts.Mode, "next", c.Entry(id).Next)

	select {
	case <-ctx.Done():
	case err = <-listenErr:
	}
	logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return err
}

func (r *Runner) listenAddr(cmd *cli.Command) string {
	if addr := cmd.String("listen"); addr != "" {
		return addr
	}
	return r.config.Metrics.Listen
}

// startStatusListener serves /metrics and /healthz in the background. A listener failure is
// sent on errc; the returned func stops the listener and waits for it.
func (r *Runner) startStatusListener(ctx context.Context, addr string, errc chan<- error) (func(), error) {
	store, release, err := r.openStore()
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(r.logger, "component", "status")
	router := server.NewStatusRouter(server.NewStatusHandler(r.metrics.Registry(), store.Runs), logger)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ctx, addr, router, logger, nil); err != nil {
			errc <- err
		}
	}()

	return func() {
		cancel()
		<-done
		release()
	}, nil
}

func (r *Runner) scheduledSync(ctx context.Context, logger *log.Logger, opts tasks.SyncOptions) {
	if ctx.Err() != nil {
		return
	}
	logger.Info("running scheduled sync", "mode", opts.Mode)

	summary, err := r.runSync(ctx, opts, false)
	switch {
	case summary == nil:
		logger.Error("scheduled sync could not start", "error", err)
	case err != nil || summary.Fatal:
		logger.Error("scheduled sync failed", "run", summary.RunID, "error", summary.Error)
	default:
		logger.Info("scheduled sync finished", "run", summary.RunID, "status", summary.Status,
			"created", summary.Created, "updated", summary.Updated, "errored", summary.Errored)
	}
}
