package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

// UserRepository persists [models.User] rows keyed by user id.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert stores a user from the server's user directory.
//
// Name, username and thumb are last-write-wins. last_seen only moves forward, so a
// directory record without activity never clears it.
func (r *UserRepository) Upsert(ctx context.Context, q DBTX, user *models.User) (Outcome, error) {
	if err := user.Validate(); err != nil {
		return Unchanged, err
	}

	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE user_id = ?)", user.UserID).Scan(&exists)
	if err != nil {
		return Unchanged, storeErr("check user", err)
	}

	query := `
		INSERT INTO users (user_id, name, username, thumb, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			username = excluded.username,
			thumb = excluded.thumb,
			last_seen = MAX(COALESCE(users.last_seen, 0), COALESCE(excluded.last_seen, 0))
		WHERE users.name IS NOT excluded.name
			OR users.username IS NOT excluded.username
			OR users.thumb IS NOT excluded.thumb
			OR COALESCE(excluded.last_seen, 0) > COALESCE(users.last_seen, 0)
	`
	res, err := q.ExecContext(ctx, query, user.UserID, user.Name, user.Username, nullString(user.Thumb), nullLastSeen(user.LastSeen))
	if err != nil {
		return Unchanged, storeErr("upsert user", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return Unchanged, storeErr("get affected rows", err)
	}

	switch {
	case rows == 0:
		return Unchanged, nil
	case exists:
		return Updated, nil
	default:
		return Created, nil
	}
}

// Ensure creates a placeholder user first seen through play history.
// Existing users are left untouched.
func (r *UserRepository) Ensure(ctx context.Context, q DBTX, user *models.User) (Outcome, error) {
	if err := user.Validate(); err != nil {
		return Unchanged, err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO users (user_id, name, thumb)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, user.UserID, user.Name, nullString(user.Thumb))
	if err != nil {
		return Unchanged, storeErr("ensure user", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return Unchanged, storeErr("get affected rows", err)
	}
	if rows == 0 {
		return Unchanged, nil
	}
	return Created, nil
}

// TouchLastSeen moves last_seen forward to ts when ts is newer.
func (r *UserRepository) TouchLastSeen(ctx context.Context, q DBTX, userID, ts int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE users SET last_seen = ?
		WHERE user_id = ? AND COALESCE(last_seen, 0) < ?
	`, ts, userID, ts)
	return storeErr("touch user last_seen", err)
}

// Get retrieves a user by id
func (r *UserRepository) Get(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT user_id, name, username, thumb, last_seen FROM users WHERE user_id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	if err != nil {
		return nil, storeErr("query user", err)
	}
	return user, nil
}

// List retrieves all users ordered by id
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, name, username, thumb, last_seen FROM users ORDER BY user_id`)
	if err != nil {
		return nil, storeErr("query users", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate users", err)
	}
	return users, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, storeErr("count users", err)
	}
	return n, nil
}

func scanUser(s rowScanner) (*models.User, error) {
	var (
		user     models.User
		thumb    sql.NullString
		lastSeen sql.NullInt64
	)
	if err := s.Scan(&user.UserID, &user.Name, &user.Username, &thumb, &lastSeen); err != nil {
		return nil, err
	}
	user.Thumb = thumb.String
	user.LastSeen = lastSeen.Int64
	return &user, nil
}

func nullLastSeen(ts int64) any {
	if ts <= 0 {
		return nil
	}
	return ts
}
