package reset

import (
	"time"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/email"
)

// Request is a single issued reset code.
// A request can be used once, and only before it expires.
type Request struct {
	ID        uuid.UUID
	Email     email.Address
	CodeHash  Digest
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
}

// IsExpired reports whether the request is expired at t.
func (r Request) IsExpired(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}
