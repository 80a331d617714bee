package reset

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
)

// MemoryStore keeps requests in memory.
// Useful for tests and single process development setups.
type MemoryStore struct {
	mu       sync.Mutex
	requests []Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	s.requests = append(s.requests, copyRequest(*r))
	return nil
}

func (s *MemoryStore) FindRecentByEmail(_ context.Context, addr email.Address, since time.Time) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.newestFirst() {
		if r.Email == addr && !r.CreatedAt.Before(since) {
			return copyRequest(r), nil
		}
	}

	return Request{}, fmt.Errorf("no recent request: %w", errorz.ErrNotFound)
}

func (s *MemoryStore) FindUnusedByEmail(_ context.Context, addr email.Address, limit int) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, 0)
	for _, r := range s.newestFirst() {
		if len(out) >= limit {
			break
		}

		if r.Email == addr && !r.Used {
			out = append(out, copyRequest(r))
		}
	}

	return out, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.requests {
		if s.requests[i].ID != id {
			continue
		}

		if s.requests[i].Used {
			return ErrAlreadyUsed
		}

		s.requests[i].Used = true
		s.requests[i].UsedAt = &usedAt
		return nil
	}

	return fmt.Errorf("request %s: %w", id, errorz.ErrNotFound)
}

// newestFirst returns the requests sorted by creation time, newest first.
// Requests created at the same time are ordered by insertion, last inserted first.
// Must be called with the mutex held.
func (s *MemoryStore) newestFirst() []Request {
	out := make([]Request, len(s.requests))
	for i := range s.requests {
		out[len(out)-1-i] = s.requests[i]
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

func copyRequest(r Request) Request {
	if r.UsedAt != nil {
		usedAt := *r.UsedAt
		r.UsedAt = &usedAt
	}
	return r
}
