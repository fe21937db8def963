package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlain("Set tautulli.url and tautulli.api_key, or export %s and %s.\n",
		shared.EnvTautulliURL, shared.EnvTautulliAPIKey)
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := shared.SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s (schema version %d)\n", r.config.Database.Path, version)
	return nil
}

// SetupRollback rolls back the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		if errors.Is(err, shared.ErrNoMigrations) {
			r.writePlain("Nothing to roll back\n")
			return nil
		}
		return err
	}

	version, ok, err := shared.SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if !ok {
		r.writePlain("✓ Rolled back all migrations\n")
		return nil
	}
	r.writePlain("✓ Rolled back to schema version %d\n", version)
	return nil
}
