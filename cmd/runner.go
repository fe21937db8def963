package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tautsync/internal/metrics"
	"github.com/desertthunder/tautsync/internal/repositories"
	"github.com/desertthunder/tautsync/internal/services"
	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	client     *services.TautulliService
	store      *repositories.Store
	metrics    *metrics.Collector
	logger     *log.Logger
	output     io.Writer
	lookupEnv  func(string) (string, bool)
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Client and Store are normally built lazily from Config; tests inject them.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Client     *services.TautulliService
	Store      *repositories.Store
	Metrics    *metrics.Collector
	Logger     *log.Logger
	Output     io.Writer
	LookupEnv  func(string) (string, bool)
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		client:     opts.Client,
		store:      opts.Store,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		output:     opts.Output,
		lookupEnv:  opts.LookupEnv,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, syncCommand, scheduleCommand, statsCommand, reportCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the dotenv file and config named by the root flags, applies environment
// overrides and sets the log level.
//
// A missing config file is not an error: defaults plus environment are used.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := shared.LoadEnvFiles(cmd.String("env-file")); err != nil {
		return ctx, err
	}

	r.configPath = cmd.String("config")
	if err := r.loadConfig(); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (r *Runner) loadConfig() error {
	config := shared.DefaultConfig()
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err == nil {
			if config, err = shared.LoadConfig(r.configPath); err != nil {
				return err
			}
		} else {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		}
	}
	config.ApplyEnv(r.lookupEnv)

	level, err := shared.ParseLogLevel(config.Log.Level)
	if err != nil {
		return err
	}
	shared.SetLogLevel(r.logger, level)

	r.config = config
	return nil
}

// tautulli returns the API client, building it from config on first use.
func (r *Runner) tautulli() (*services.TautulliService, error) {
	if r.client != nil {
		return r.client, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	client, err := services.NewTautulliServiceFromConfig(r.config.Tautulli, shared.WithLogger(r.logger, "component", "tautulli"))
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// openStore returns the store and a func that releases it. Injected stores are not closed.
func (r *Runner) openStore() (*repositories.Store, func(), error) {
	if r.store != nil {
		return r.store, func() {}, nil
	}

	db, err := shared.OpenAndMigrate(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repositories.NewStore(db), func() {
		if err := db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
	}, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
