package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tautsync/internal/formatter"
	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// ReportLeastWatched writes the least watched movies or shows, with sizes, for pruning decisions.
//
// Shows are aggregated over their episodes. Without --output the report goes to stdout.
func (r *Runner) ReportLeastWatched(ctx context.Context, cmd *cli.Command) error {
	mediaType, err := parseMediaType(cmd.String("type"))
	if err != nil {
		return err
	}
	if mediaType != models.MediaMovie && mediaType != models.MediaShow {
		return fmt.Errorf("%w: report type must be movie or show, got %q", shared.ErrInvalidFlag, mediaType)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, release, err := r.openStore()
	if err != nil {
		return err
	}
	defer release()

	items, err := store.Stats.LeastWatched(ctx, mediaType, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to query least watched %ss: %w", mediaType, err)
	}

	title := fmt.Sprintf("Least watched %ss", mediaType)
	output := cmd.String("output")
	if output == "" || output == "-" {
		data, err := formatter.Render(format, title, items)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	path, err := formatter.WriteReport(format, title, items, output)
	if err != nil {
		return err
	}
	r.logger.Info("report written", "path", path, "items", len(items), "format", format)
	return nil
}
