package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/tautsync/internal/shared"
)

// PruneResult summarizes one pruning transaction.
type PruneResult struct {
	Deleted         int // rows removed
	HistoryUnlinked int // play_history references set to NULL
	ChildrenOrphans int // surviving children whose parent reference was set to NULL
}

// PruneRepository deletes local rows that no longer exist remotely.
//
// Deletion never touches play_history rows; their references are nulled instead.
type PruneRepository struct {
	db *sql.DB
}

// NewPruneRepository creates a new [PruneRepository] with the given database connection
func NewPruneRepository(db *sql.DB) *PruneRepository {
	return &PruneRepository{db: db}
}

// PruneMedia deletes every media item whose rating key is absent from remote, in one transaction.
//
// An empty remote set never prunes a non-empty store.
func (r *PruneRepository) PruneMedia(ctx context.Context, remote map[string]struct{}) (PruneResult, error) {
	var result PruneResult

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var local int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM media_items").Scan(&local); err != nil {
			return storeErr("count media items", err)
		}
		if len(remote) == 0 && local > 0 {
			return fmt.Errorf("%w: remote key set is empty but %d items are stored", shared.ErrPruneUnsafe, local)
		}

		if err := loadKeySet(ctx, tx, "prune_remote_media", "TEXT", mediaKeyArgs(remote)); err != nil {
			return err
		}

		steps := []struct {
			op    string
			query string
			count *int
		}{
			{
				op: "unlink play history",
				query: `UPDATE play_history SET media_rating_key = NULL
					WHERE media_rating_key IN (SELECT rating_key FROM media_items)
					AND media_rating_key NOT IN (SELECT k FROM temp.prune_remote_media)`,
				count: &result.HistoryUnlinked,
			},
			{
				op: "unlink orphaned children",
				query: `UPDATE media_items SET parent_rating_key = NULL
					WHERE rating_key IN (SELECT k FROM temp.prune_remote_media)
					AND parent_rating_key IS NOT NULL
					AND parent_rating_key IN (SELECT rating_key FROM media_items)
					AND parent_rating_key NOT IN (SELECT k FROM temp.prune_remote_media)`,
				count: &result.ChildrenOrphans,
			},
			{
				op: "delete media items",
				query: `DELETE FROM media_items
					WHERE rating_key NOT IN (SELECT k FROM temp.prune_remote_media)`,
				count: &result.Deleted,
			},
		}

		for _, step := range steps {
			n, err := execCount(ctx, tx, step.query)
			if err != nil {
				return storeErr(step.op, err)
			}
			*step.count = n
		}
		return dropKeySet(ctx, tx, "prune_remote_media")
	})
	if err != nil {
		return PruneResult{}, err
	}
	return result, nil
}

// PruneUsers deletes users absent from remote and nulls their play_history references.
func (r *PruneRepository) PruneUsers(ctx context.Context, remote map[int64]struct{}) (PruneResult, error) {
	var result PruneResult

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var local int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&local); err != nil {
			return storeErr("count users", err)
		}
		if len(remote) == 0 && local > 0 {
			return fmt.Errorf("%w: remote user set is empty but %d users are stored", shared.ErrPruneUnsafe, local)
		}

		args := make([]any, 0, len(remote))
		for id := range remote {
			args = append(args, id)
		}
		if err := loadKeySet(ctx, tx, "prune_remote_users", "INTEGER", args); err != nil {
			return err
		}

		n, err := execCount(ctx, tx, `UPDATE play_history SET user_id = NULL
			WHERE user_id IN (SELECT user_id FROM users)
			AND user_id NOT IN (SELECT k FROM temp.prune_remote_users)`)
		if err != nil {
			return storeErr("unlink user history", err)
		}
		result.HistoryUnlinked = n

		if n, err = execCount(ctx, tx, `DELETE FROM users WHERE user_id NOT IN (SELECT k FROM temp.prune_remote_users)`); err != nil {
			return storeErr("delete users", err)
		}
		result.Deleted = n
		return dropKeySet(ctx, tx, "prune_remote_users")
	})
	if err != nil {
		return PruneResult{}, err
	}
	return result, nil
}

// loadKeySet fills a fresh temp table (k PRIMARY KEY) with keys.
func loadKeySet(ctx context.Context, tx *sql.Tx, table, colType string, keys []any) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS temp.%s", table)); err != nil {
		return storeErr("reset key set", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (k %s PRIMARY KEY)", table, colType)); err != nil {
		return storeErr("create key set", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT OR IGNORE INTO temp.%s (k) VALUES (?)", table))
	if err != nil {
		return storeErr("prepare key insert", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return storeErr("insert key", err)
		}
	}
	return nil
}

// dropKeySet removes a key set table once the prune statements have run. On rollback the
// table goes away with the transaction that created it.
func dropKeySet(ctx context.Context, tx *sql.Tx, table string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS temp.%s", table)); err != nil {
		return storeErr("drop key set", err)
	}
	return nil
}

func mediaKeyArgs(keys map[string]struct{}) []any {
	args := make([]any, 0, len(keys))
	for k := range keys {
		args = append(args, k)
	}
	return args
}

func execCount(ctx context.Context, tx *sql.Tx, query string) (int, error) {
	res, err := tx.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
