// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles config, database and migration setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml template to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// syncCommand runs one synchronization against the Tautulli server.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Pull libraries, users and play history from Tautulli into the local database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Walk every library section instead of recently added items",
			},
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "Delete local records that no longer exist remotely (requires --full)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the summary as JSON",
			},
		},
		Action: r.Sync,
	}
}

// scheduleCommand runs syncs on a cron schedule until interrupted.
func scheduleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run syncs on a cron schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "spec",
				Usage: "Cron spec, e.g. \"@every 1h\" or \"0 */6 * * *\" (default: sync.schedule)",
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Run full syncs",
			},
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "Prune after each full sync",
			},
			&cli.BoolFlag{
				Name:  "now",
				Usage: "Run one sync immediately before waiting for the schedule",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Serve /metrics and /healthz on this address, e.g. :9464 (default: metrics.listen)",
			},
		},
		Action: r.Schedule,
	}
}

// statsCommand queries the synced data.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Viewing statistics from the local database",
		Commands: []*cli.Command{
			{
				Name:  "top",
				Usage: "Most watched items of one media type",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Media type (movie, show, artist, ...)",
						Value:   "movie",
					},
					&cli.IntFlag{
						Name:  "min-viewers",
						Usage: "Only include items watched by at least this many users",
					},
					daysFlag(), limitFlag(), jsonFlag(),
				},
				Action: r.StatsTop,
			},
			{
				Name:   "users",
				Usage:  "Most active users",
				Flags:  []cli.Flag{daysFlag(), limitFlag(), jsonFlag()},
				Action: r.StatsUsers,
			},
			{
				Name:  "growth",
				Usage: "Library growth per day and media type",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Media types to include (default: movie, season, album)",
					},
					&cli.IntFlag{
						Name:  "year",
						Usage: "Only show one calendar year",
					},
					jsonFlag(),
				},
				Action: r.StatsGrowth,
			},
			{
				Name:   "counts",
				Usage:  "Row counts per table",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.StatsCounts,
			},
			{
				Name:   "runs",
				Usage:  "Recent sync runs",
				Flags:  []cli.Flag{limitFlag(), jsonFlag()},
				Action: r.StatsRuns,
			},
		},
	}
}

// reportCommand writes pruning reports.
func reportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Generate pruning reports",
		Commands: []*cli.Command{
			{
				Name:  "least-watched",
				Usage: "List the least watched movies or shows with their size on disk",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Media type (movie or show)",
						Value:   "movie",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (csv, json, markdown)",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: stdout)",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of items",
						Value:   50,
					},
				},
				Action: r.ReportLeastWatched,
			},
		},
	}
}

// apiCommand handles direct Tautulli API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the Tautulli API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Run one API command and print its data payload",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "cmd",
					},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "param",
						Aliases: []string{"p"},
						Usage:   "Query parameter as key=value (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of rows", Value: 10}
}

func daysFlag() cli.Flag {
	return &cli.IntFlag{Name: "days", Usage: "Only count plays from the last N days (0 for all time)"}
}
