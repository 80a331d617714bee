package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/email"
)

// UserFilter is used to filter users.
// Returned users must match all the provided fields.
// If a field is empty, it's ignored.
type UserFilter struct {
	IDs       []uuid.UUID
	Emails    []email.Address
	Usernames []Username
}

// Store provides access to the user store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	// FindUsers queries users outside of a transaction.
	FindUsers(ctx context.Context, filter *UserFilter) ([]User, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	// CreateUser returns errorz.ErrConstraintViolated if the username or email is taken.
	CreateUser(u *User) error
	UpdateUser(u *User) error
	FindUsers(filter *UserFilter) ([]User, error)
}
