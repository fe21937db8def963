package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/repositories"
	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/desertthunder/tautsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// StatsTop prints the most watched items of one media type.
func (r *Runner) StatsTop(ctx context.Context, cmd *cli.Command) error {
	mediaType, err := parseMediaType(cmd.String("type"))
	if err != nil {
		return err
	}

	store, release, err := r.openStore()
	if err != nil {
		return err
	}
	defer release()

	stats, err := store.Stats.TopMedia(ctx, repositories.TopMediaQuery{
		Type:       mediaType,
		Since:      since(cmd.Int("days")),
		Limit:      cmd.Int("limit"),
		MinViewers: cmd.Int("min-viewers"),
	})
	if err != nil {
		return fmt.Errorf("failed to query top media: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(nonNil(stats), true)
	}
	return r.writePlain("%s", ui.RenderTopMedia(fmt.Sprintf("Most watched %ss", mediaType), stats))
}

// StatsUsers prints the most active users.
func (r *Runner) StatsUsers(ctx context.Context, cmd *cli.Command) error {
	store, release, err := r.openStore()
	if err != nil {
		return err
	}
	defer release()

	stats, err := store.Stats.TopUsers(ctx, since(cmd.Int("days")), cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to query top users: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(nonNil(stats), true)
	}
	return r.writePlain("%s", ui.RenderTopUsers(stats))
}

// StatsGrowth prints daily library additions with running totals.
func (r *Runner) StatsGrowth(ctx context.Context, cmd *cli.Command) error {
	var types []models.MediaType
	for _, s := range cmd.StringSlice("type") {
		t, err := parseMediaType(s)
		if err != nil {
			return err
		}
		types = append(types, t)
	}

	store, release, err := r.openStore()
	if err != nil {
		return err
	}
	defer release()

	points, err := store.Stats.LibraryGrowth(ctx, types, cmd.Int("year"))
	if err != nil {
		return fmt.Errorf("failed to query library growth: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(nonNil(points), true)
	}
	return r.writePlain("%s", ui.RenderGrowth(points))
}

// StatsCounts prints row counts per table.
func (r *Runner) StatsCounts(ctx context.Context, cmd *cli.Command) error {
	store, release, err := r.openStore()
	if err != nil {
		return err
	}
	defer release()

	counts, err := store.Stats.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(counts, true)
	}
	return r.writePlain("%s", ui.RenderCounts(counts))
}

// StatsRuns prints the most recent sync runs.
func (r *Runner) StatsRuns(ctx context.Context, cmd *cli.Command) error {
	store, release, err := r.openStore()
	if err != nil {
		return err
	}
	defer release()

	runs, err := store.Runs.List(ctx, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(nonNil(runs), true)
	}
	return r.writePlain("%s", ui.RenderRuns(runs))
}

func parseMediaType(s string) (models.MediaType, error) {
	t, ok := models.ParseMediaType(s)
	if !ok {
		return "", fmt.Errorf("%w: media type %q", shared.ErrInvalidFlag, s)
	}
	return t, nil
}

// since converts a --days value to a cutoff; zero or less means all time.
func since(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return time.Now().AddDate(0, 0, -days)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
