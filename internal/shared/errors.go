package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Sync errors
	ErrSyncLocked  = fmt.Errorf("another sync is already running")
	ErrPruneUnsafe = fmt.Errorf("refusing to prune")

	// Store errors
	ErrNotFound     = fmt.Errorf("record not found")
	ErrNoMigrations = fmt.Errorf("no migrations to rollback")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
