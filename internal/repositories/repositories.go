// package repositories provides the SQLite persistence layer for synchronized records.
//
// Write methods take a [DBTX] so callers decide the transaction boundary; reads go through the repository's *sql.DB.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Outcome reports what a single write did.
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// StoreError wraps a database failure. Any StoreError aborts a sync.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// WithTx runs fn inside a transaction, committing when fn returns nil and rolling back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

// Store bundles every repository over one database handle.
type Store struct {
	DB      *sql.DB
	Media   *MediaRepository
	Users   *UserRepository
	History *HistoryRepository
	State   *StateRepository
	Runs    *SyncRunRepository
	Prune   *PruneRepository
	Stats   *StatsRepository
}

// NewStore wires all repositories to db. The schema must already be migrated.
func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:      db,
		Media:   NewMediaRepository(db),
		Users:   NewUserRepository(db),
		History: NewHistoryRepository(db),
		State:   NewStateRepository(db),
		Runs:    NewSyncRunRepository(db),
		Prune:   NewPruneRepository(db),
		Stats:   NewStatsRepository(db),
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullInt64Ptr(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
