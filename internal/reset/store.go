package reset

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/email"
)

// ErrAlreadyUsed is returned by Store.MarkUsed when the request was used before.
var ErrAlreadyUsed = errors.New("reset code already used")

// Store persists reset requests. Implementations must be safe for
// concurrent use and MarkUsed must be atomic.
type Store interface {
	// Insert stores r and assigns its ID.
	Insert(ctx context.Context, r *Request) error
	// FindRecentByEmail returns the newest request for addr created at or after since.
	// It returns errorz.ErrNotFound if there is none.
	FindRecentByEmail(ctx context.Context, addr email.Address, since time.Time) (Request, error)
	// FindUnusedByEmail returns at most limit unused requests for addr, newest first.
	FindUnusedByEmail(ctx context.Context, addr email.Address, limit int) ([]Request, error)
	// MarkUsed marks the request with id as used. It returns ErrAlreadyUsed
	// if the request was already used and errorz.ErrNotFound if it doesn't exist.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}
