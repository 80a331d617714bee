package reset

import (
	"context"
	"errors"
	"time"

	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
)

// RateLimiter allows at most one reset request per email address per cooldown.
// The check is advisory, concurrent requests may both pass it.
type RateLimiter struct {
	store    Store
	cooldown time.Duration
}

func NewRateLimiter(store Store, cooldown time.Duration) *RateLimiter {
	return &RateLimiter{
		store:    store,
		cooldown: cooldown,
	}
}

// Allow reports whether a new request for addr may be issued at now.
func (l *RateLimiter) Allow(ctx context.Context, addr email.Address, now time.Time) (bool, error) {
	_, err := l.store.FindRecentByEmail(ctx, addr, now.Add(-l.cooldown))
	if errors.Is(err, errorz.ErrNotFound) {
		return true, nil
	}

	if err != nil {
		return false, err
	}

	return false, nil
}
