package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

// SyncRunRepository records one [models.SyncRun] per sync invocation.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new [SyncRunRepository] with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Start inserts run in the running state, generating an id when empty.
func (r *SyncRunRepository) Start(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = models.RunRunning

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, mode, prune, status, started_at) VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.Prune, string(run.Status), run.StartedAt.Unix())
	return storeErr("start sync run", err)
}

// Finish stores the final status and counters of run.
func (r *SyncRunRepository) Finish(ctx context.Context, q DBTX, run *models.SyncRun) error {
	if q == nil {
		q = r.db
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	res, err := q.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = ?, finished_at = ?, created = ?, updated = ?, unchanged = ?,
			pruned = ?, skipped = ?, errored = ?, error = ?
		WHERE id = ?
	`, string(run.Status), run.FinishedAt.Unix(), run.Created, run.Updated, run.Unchanged,
		run.Pruned, run.Skipped, run.Errored, nullString(run.Error), run.ID)
	if err != nil {
		return storeErr("finish sync run", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return storeErr("get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: sync run %s", shared.ErrNotFound, run.ID)
	}
	return nil
}

// Get retrieves a run by id.
func (r *SyncRunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRunQuery+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, storeErr("query sync run", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, selectRunQuery+" ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, storeErr("query sync runs", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, storeErr("scan sync run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate sync runs", err)
	}
	return runs, nil
}

const selectRunQuery = `
	SELECT id, mode, prune, status, started_at, finished_at, created, updated, unchanged,
		pruned, skipped, errored, error
	FROM sync_runs`

func scanRun(s rowScanner) (*models.SyncRun, error) {
	var (
		run        models.SyncRun
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
		errMsg     sql.NullString
	)
	err := s.Scan(&run.ID, &run.Mode, &run.Prune, &status, &startedAt, &finishedAt,
		&run.Created, &run.Updated, &run.Unchanged, &run.Pruned, &run.Skipped, &run.Errored, &errMsg)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}
