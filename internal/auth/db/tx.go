package db

import (
	"context"
	"database/sql"

	"github.com/skyward-school/skyward/internal/auth"
)

type Tx struct {
	ctx   context.Context
	tx    *sql.Tx
	store *Store
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// CreateUser creates a user in the database.
// It returns errorz.ErrConstraintViolated if the username or email is already taken.
func (t *Tx) CreateUser(u *auth.User) error {
	return insertUser(t.ctx, t.store.newQuery(), t.tx.ExecContext, u)
}

// UpdateUser updates a user in the database.
// It returns errorz.ErrNotFound if no user is found.
func (t *Tx) UpdateUser(u *auth.User) error {
	return updateUser(t.ctx, t.store.newQuery(), t.tx.ExecContext, u)
}

// FindUsers queries for users based on the provided filter.
// It returns an empty slice if no users are found.
func (t *Tx) FindUsers(filter *auth.UserFilter) ([]auth.User, error) {
	return selectUsers(t.ctx, t.store.newQuery(), t.tx.QueryContext, filter)
}
