package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet runs a single Tautulli command and prints its data payload.
//
// Parameters are passed as repeated --param key=value flags.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	command := cmd.StringArg("cmd")
	if command == "" {
		return fmt.Errorf("%w: api command name", shared.ErrMissingArgument)
	}

	params := url.Values{}
	for _, p := range cmd.StringSlice("param") {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: param %q must be key=value", shared.ErrInvalidFlag, p)
		}
		params.Add(key, value)
	}

	client, err := r.tautulli()
	if err != nil {
		return err
	}

	r.logger.Info("GET request", "cmd", command)

	data, err := client.Raw(ctx, command, params)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", command, err)
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return r.writeJSON(data, cmd.Bool("pretty"))
}
