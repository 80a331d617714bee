// Package resettest checks reset.Store implementations.
package resettest

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
	"github.com/skyward-school/skyward/internal/reset"
)

var start = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

// TestStore runs the behaviour every reset.Store must have against
// stores created by newStore. Each subtest gets a new, empty store.
func TestStore(t *testing.T, newStore func(t *testing.T) reset.Store) {
	t.Run("ok, insert assigns id", func(t *testing.T) {
		s := newStore(t)

		r := request("u@x.com", 0)
		insert(t, s, &r)

		if r.ID == uuid.Nil {
			t.Fatalf("expected an id to be assigned")
		}

		got := findUnused(t, s, "u@x.com", 10)
		if !reflect.DeepEqual(got, []reset.Request{r}) {
			t.Errorf("got\n%#v\nwant\n%#v", got, []reset.Request{r})
		}
	})

	t.Run("ok, insert keeps given id", func(t *testing.T) {
		s := newStore(t)

		id := uuid.MustParse("2e1cfb4f-7d22-4d5c-a5f3-8f7b5e8a2c11")
		r := request("u@x.com", 0)
		r.ID = id
		insert(t, s, &r)

		if r.ID != id {
			t.Errorf("got id %s want %s", r.ID, id)
		}
	})

	t.Run("ok, find recent respects since", func(t *testing.T) {
		s := newStore(t)

		old := request("u@x.com", 0)
		insert(t, s, &old)

		recent := request("u@x.com", 30*time.Second)
		insert(t, s, &recent)

		other := request("v@x.com", 40*time.Second)
		insert(t, s, &other)

		got, err := s.FindRecentByEmail(context.Background(), "u@x.com", start.Add(10*time.Second))
		if err != nil {
			t.Fatalf("failed to find recent request: %v", err)
		}

		if got.ID != recent.ID {
			t.Errorf("got request %s want %s", got.ID, recent.ID)
		}

		// since is inclusive.
		got, err = s.FindRecentByEmail(context.Background(), "u@x.com", start.Add(30*time.Second))
		if err != nil || got.ID != recent.ID {
			t.Errorf("expected request created at since to be found, got %v", err)
		}

		_, err = s.FindRecentByEmail(context.Background(), "u@x.com", start.Add(31*time.Second))
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Errorf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})

	t.Run("ok, find unused is newest first and limited", func(t *testing.T) {
		s := newStore(t)

		var want []reset.Request
		for i := 0; i < 12; i++ {
			r := request("u@x.com", time.Duration(i)*time.Minute)
			insert(t, s, &r)
			want = append([]reset.Request{r}, want...)
		}

		other := request("v@x.com", time.Hour)
		insert(t, s, &other)

		got := findUnused(t, s, "u@x.com", 10)
		if !reflect.DeepEqual(got, want[:10]) {
			t.Errorf("got\n%#v\nwant\n%#v", got, want[:10])
		}
	})

	t.Run("ok, used requests are not returned as unused", func(t *testing.T) {
		s := newStore(t)

		first := request("u@x.com", 0)
		insert(t, s, &first)

		second := request("u@x.com", time.Second)
		insert(t, s, &second)

		err := s.MarkUsed(context.Background(), second.ID, start.Add(time.Minute))
		if err != nil {
			t.Fatalf("failed to mark used: %v", err)
		}

		got := findUnused(t, s, "u@x.com", 10)
		if !reflect.DeepEqual(got, []reset.Request{first}) {
			t.Errorf("got\n%#v\nwant\n%#v", got, []reset.Request{first})
		}

		// used requests still count for the cooldown.
		recent, err := s.FindRecentByEmail(context.Background(), "u@x.com", start.Add(time.Second))
		if err != nil {
			t.Fatalf("failed to find recent request: %v", err)
		}

		if !recent.Used || recent.UsedAt == nil || !recent.UsedAt.Equal(start.Add(time.Minute)) {
			t.Errorf("expected request to be used at %v, got %#v", start.Add(time.Minute), recent)
		}
	})

	t.Run("fail, mark used twice", func(t *testing.T) {
		s := newStore(t)

		r := request("u@x.com", 0)
		insert(t, s, &r)

		err := s.MarkUsed(context.Background(), r.ID, start)
		if err != nil {
			t.Fatalf("failed to mark used: %v", err)
		}

		err = s.MarkUsed(context.Background(), r.ID, start.Add(time.Second))
		if !errors.Is(err, reset.ErrAlreadyUsed) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", reset.ErrAlreadyUsed, err)
		}
	})

	t.Run("fail, mark unknown request used", func(t *testing.T) {
		s := newStore(t)

		err := s.MarkUsed(context.Background(), uuid.New(), start)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})

	t.Run("ok, concurrent mark used succeeds once", func(t *testing.T) {
		s := newStore(t)

		r := request("u@x.com", 0)
		insert(t, s, &r)

		const callers = 8

		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.MarkUsed(context.Background(), r.ID, start)
			}()
		}

		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, reset.ErrAlreadyUsed):
				t.Errorf("unexpected error: %v", err)
			}
		}

		if succeeded != 1 {
			t.Errorf("expected 1 success, got %d", succeeded)
		}
	})
}

func request(addr email.Address, offset time.Duration) reset.Request {
	createdAt := start.Add(offset)
	return reset.Request{
		Email:     addr,
		CodeHash:  reset.NewHasher().Hash(mustCode(offset.String())),
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(15 * time.Minute),
	}
}

func insert(t *testing.T, s reset.Store, r *reset.Request) {
	t.Helper()

	err := s.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("failed to insert request: %v", err)
	}
}

func findUnused(t *testing.T, s reset.Store, addr email.Address, limit int) []reset.Request {
	t.Helper()

	got, err := s.FindUnusedByEmail(context.Background(), addr, limit)
	if err != nil {
		t.Fatalf("failed to find unused requests: %v", err)
	}

	return got
}

func mustCode(raw string) reset.Code {
	c, err := reset.ParseCode(raw)
	if err != nil {
		panic(err)
	}
	return c
}
