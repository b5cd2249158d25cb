package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vhrealtime/tools/errs"
)

// PgUserStore reads the users table.
type PgUserStore struct {
	pool *pgxpool.Pool
}

func NewPgUserStore(pool *pgxpool.Pool) *PgUserStore {
	return &PgUserStore{pool: pool}
}

const findUserSQL = `
SELECT id, username, first_name, last_name, role, is_active
FROM users
WHERE id = $1`

func (s *PgUserStore) FindUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, findUserSQL, id).
		Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, errs.WrapMsg(err, "query user")
	}
	if !u.IsActive {
		return User{}, ErrUserNotFound
	}
	return u, nil
}
