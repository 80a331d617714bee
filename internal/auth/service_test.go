package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skyward-school/skyward/internal/auth"
	"github.com/skyward-school/skyward/internal/auth/db"
	"github.com/skyward-school/skyward/internal/db/testdb"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
	"github.com/skyward-school/skyward/internal/errorz/testerr"
	"github.com/skyward-school/skyward/internal/krypto"
)

// legacyHash is a bcrypt hash of "reallyStrongPassword1" as written by the previous application.
const legacyHash = "$2y$04$2NPoiYCbexvJtpWZgaoEDOLA5Ex4LLN6nPrrCxJQCFH53sPsmDvry"

func Test_Service_CreateTeacher(t *testing.T) {
	t.Run("ok, create teacher", func(t *testing.T) {
		st := newServiceTest(t)

		user, err := st.svc.CreateTeacher(context.Background(), newTeacher(nil))
		if err != nil {
			t.Fatalf("failed to create teacher: %v", err)
		}

		if user.Role != auth.RoleTeacher {
			t.Errorf("got role %q, want %q", user.Role, auth.RoleTeacher)
		}

		if !user.CreatedAt.Equal(st.now) || !user.UpdatedAt.Equal(st.now) {
			t.Errorf("expected timestamps to be %v, got %v and %v", st.now, user.CreatedAt, user.UpdatedAt)
		}

		got := st.findByEmail("alice@example.com")
		if got.ID != user.ID || got.Name != "Alice" || got.Username != "alice" {
			t.Errorf("unexpected stored user %#v", got)
		}

		if !must(auth.ParsePassword("reallyStrongPassword1")).Match(got.PasswordHash) {
			t.Errorf("stored hash does not match the password")
		}

		if got.PasswordHash.IsLegacy() {
			t.Errorf("new accounts should not get a legacy hash")
		}

		st.errList.assertNoError(t)
	})

	t.Run("ok, name is trimmed", func(t *testing.T) {
		st := newServiceTest(t)

		user, err := st.svc.CreateTeacher(context.Background(), newTeacher(func(nt *auth.NewTeacher) {
			nt.Name = "  Alice  "
		}))
		if err != nil {
			t.Fatalf("failed to create teacher: %v", err)
		}

		if user.Name != "Alice" {
			t.Errorf("got name %q, want %q", user.Name, "Alice")
		}
	})

	duplicates := map[string]func(*auth.NewTeacher){
		"fail, same username": func(nt *auth.NewTeacher) {
			nt.Email = "bob@example.com"
		},
		"fail, same username other case": func(nt *auth.NewTeacher) {
			nt.Email = "bob@example.com"
			nt.Username = "ALICE"
		},
		"fail, same email": func(nt *auth.NewTeacher) {
			nt.Username = "bob"
		},
	}

	for name, mf := range duplicates {
		t.Run(name, func(t *testing.T) {
			st := newServiceTest(t)
			st.createTeacher(nil)

			_, err := st.svc.CreateTeacher(context.Background(), newTeacher(mf))
			if !errors.Is(err, auth.ErrDuplicateUser) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", auth.ErrDuplicateUser, err)
			}
		})
	}

	missing := map[string]struct {
		mf  func(*auth.NewTeacher)
		key string
	}{
		"fail, no name":     {mf: func(nt *auth.NewTeacher) { nt.Name = " " }, key: "teacher_name"},
		"fail, no email":    {mf: func(nt *auth.NewTeacher) { nt.Email = "" }, key: "teacher_email"},
		"fail, no username": {mf: func(nt *auth.NewTeacher) { nt.Username = "" }, key: "teacher_username"},
		"fail, no password": {mf: func(nt *auth.NewTeacher) { nt.Password = auth.NewPassword{} }, key: "teacher_password"},
	}

	for name, tc := range missing {
		t.Run(name, func(t *testing.T) {
			st := newServiceTest(t)

			_, err := st.svc.CreateTeacher(context.Background(), newTeacher(tc.mf))

			var ii errorz.InvalidInput
			if !errors.As(err, &ii) {
				t.Fatalf("expected invalid input, got %v", err)
			}

			if !errors.Is(err, errorz.ErrMissingField) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrMissingField, err)
			}

			var keyed errorz.Keyed
			if !errors.As(err, &keyed) || keyed.Key != tc.key {
				t.Fatalf("expected error for key %s, got %v", tc.key, err)
			}
		})
	}

	for _, tracker := range testerr.NewFailingDeps(testerr.Err, 5) {
		t.Run("fail, store fails", func(t *testing.T) {
			st := newServiceTest(t)
			st.store.tracker = &tracker

			_, err := st.svc.CreateTeacher(context.Background(), newTeacher(nil))
			if !errors.Is(err, testerr.Err) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", testerr.Err, err)
			}
		})
	}
}

func Test_Service_Authenticate(t *testing.T) {
	identifiers := map[string]string{
		"ok, by username":            "alice",
		"ok, by username other case": "ALICE",
		"ok, by email":               "alice@example.com",
		"ok, by email other case":    "Alice@Example.com",
		"ok, surrounding spaces":     " alice ",
	}

	for name, identifier := range identifiers {
		t.Run(name, func(t *testing.T) {
			st := newServiceTest(t)
			created := st.createTeacher(nil)

			user, err := st.svc.Authenticate(context.Background(), auth.Credentials{
				Identifier: identifier,
				Password:   must(auth.ParsePassword("reallyStrongPassword1")),
			})
			if err != nil {
				t.Fatalf("failed to authenticate: %v", err)
			}

			if user.ID != created.ID {
				t.Errorf("got user %s, want %s", user.ID, created.ID)
			}

			st.errList.assertNoError(t)
		})
	}

	failing := map[string]auth.Credentials{
		"fail, wrong password": {
			Identifier: "alice",
			Password:   must(auth.ParsePassword("reallyStrongPassword2")),
		},
		"fail, unknown username": {
			Identifier: "bob",
			Password:   must(auth.ParsePassword("reallyStrongPassword1")),
		},
		"fail, unknown email": {
			Identifier: "bob@example.com",
			Password:   must(auth.ParsePassword("reallyStrongPassword1")),
		},
		"fail, identifier is no username": {
			Identifier: "a",
			Password:   must(auth.ParsePassword("reallyStrongPassword1")),
		},
		"fail, identifier is no email": {
			Identifier: "alice@",
			Password:   must(auth.ParsePassword("reallyStrongPassword1")),
		},
	}

	for name, credentials := range failing {
		t.Run(name, func(t *testing.T) {
			st := newServiceTest(t)
			st.createTeacher(nil)

			_, err := st.svc.Authenticate(context.Background(), credentials)
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", auth.ErrInvalidCredentials, err)
			}

			st.errList.assertNoError(t)
		})
	}

	t.Run("fail, missing credentials", func(t *testing.T) {
		st := newServiceTest(t)

		_, err := st.svc.Authenticate(context.Background(), auth.Credentials{})

		var ii errorz.InvalidInput
		if !errors.As(err, &ii) || len(ii) != 2 {
			t.Fatalf("expected invalid input for both fields, got %v", err)
		}
	})

	t.Run("ok, legacy hash is upgraded", func(t *testing.T) {
		st := newServiceTest(t)
		created := st.createTeacher(nil)
		st.setHash(created, must(auth.ParsePasswordHash(legacyHash)))

		_, err := st.svc.Authenticate(context.Background(), auth.Credentials{
			Identifier: "alice",
			Password:   must(auth.ParsePassword("reallyStrongPassword1")),
		})
		if err != nil {
			t.Fatalf("failed to authenticate: %v", err)
		}

		got := st.findByEmail("alice@example.com")
		if got.PasswordHash.IsLegacy() {
			t.Fatalf("expected hash to be upgraded")
		}

		if !must(auth.ParsePassword("reallyStrongPassword1")).Match(got.PasswordHash) {
			t.Errorf("upgraded hash does not match the password")
		}

		st.errList.assertNoError(t)
	})

	t.Run("fail, legacy hash with wrong password is kept", func(t *testing.T) {
		st := newServiceTest(t)
		created := st.createTeacher(nil)
		st.setHash(created, must(auth.ParsePasswordHash(legacyHash)))

		_, err := st.svc.Authenticate(context.Background(), auth.Credentials{
			Identifier: "alice",
			Password:   must(auth.ParsePassword("reallyStrongPassword2")),
		})
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", auth.ErrInvalidCredentials, err)
		}

		if !st.findByEmail("alice@example.com").PasswordHash.IsLegacy() {
			t.Errorf("expected legacy hash to be kept")
		}
	})

	t.Run("fail, store fails", func(t *testing.T) {
		st := newServiceTest(t)
		st.createTeacher(nil)

		failingDeps := testerr.NewFailingDeps(testerr.Err, 1)
		st.store.tracker = &failingDeps[0]

		_, err := st.svc.Authenticate(context.Background(), auth.Credentials{
			Identifier: "alice",
			Password:   must(auth.ParsePassword("reallyStrongPassword1")),
		})
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", testerr.Err, err)
		}
	})

	// The lookup is call 0, the upgrade uses calls 1 to 3.
	for _, tracker := range testerr.NewFailingDeps(testerr.Err, 4)[2:] {
		t.Run("ok, failed upgrade is reported but user is authenticated", func(t *testing.T) {
			st := newServiceTest(t)
			created := st.createTeacher(nil)
			st.setHash(created, must(auth.ParsePasswordHash(legacyHash)))
			st.store.tracker = &tracker

			user, err := st.svc.Authenticate(context.Background(), auth.Credentials{
				Identifier: "alice",
				Password:   must(auth.ParsePassword("reallyStrongPassword1")),
			})
			if err != nil {
				t.Fatalf("failed to authenticate: %v", err)
			}

			if user.ID != created.ID {
				t.Errorf("got user %s, want %s", user.ID, created.ID)
			}

			st.errList.assertErrorIs(t, testerr.Err)
		})
	}
}

func Test_Service_SetPasswordByEmail(t *testing.T) {
	t.Run("ok, password replaced", func(t *testing.T) {
		st := newServiceTest(t)
		st.createTeacher(nil)
		st.now = st.now.Add(time.Minute)

		err := st.svc.SetPasswordByEmail(context.Background(), "alice@example.com", must(auth.ParseNewPassword("anotherPassword")))
		if err != nil {
			t.Fatalf("failed to set password: %v", err)
		}

		got := st.findByEmail("alice@example.com")
		if !must(auth.ParsePassword("anotherPassword")).Match(got.PasswordHash) {
			t.Errorf("stored hash does not match the new password")
		}

		if must(auth.ParsePassword("reallyStrongPassword1")).Match(got.PasswordHash) {
			t.Errorf("stored hash still matches the old password")
		}

		if !got.UpdatedAt.Equal(st.now) {
			t.Errorf("got updated at %v, want %v", got.UpdatedAt, st.now)
		}
	})

	t.Run("fail, no such account", func(t *testing.T) {
		st := newServiceTest(t)
		st.createTeacher(nil)

		err := st.svc.SetPasswordByEmail(context.Background(), "bob@example.com", must(auth.ParseNewPassword("anotherPassword")))
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})

	t.Run("fail, zero password", func(t *testing.T) {
		st := newServiceTest(t)

		err := st.svc.SetPasswordByEmail(context.Background(), "alice@example.com", auth.NewPassword{})
		if !errors.Is(err, errorz.ErrMissingField) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrMissingField, err)
		}
	})

	for _, tracker := range testerr.NewFailingDeps(testerr.Err, 4) {
		t.Run("fail, store fails", func(t *testing.T) {
			st := newServiceTest(t)
			st.createTeacher(nil)
			st.store.tracker = &tracker

			err := st.svc.SetPasswordByEmail(context.Background(), "alice@example.com", must(auth.ParseNewPassword("anotherPassword")))
			if !errors.Is(err, testerr.Err) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", testerr.Err, err)
			}
		})
	}
}

type svcTest struct {
	t       *testing.T
	svc     *auth.Service
	store   *testStore
	errList *errList
	now     time.Time
}

func newServiceTest(t *testing.T) *svcTest {
	encryptor := must(krypto.NewEncryptor([]krypto.Key{
		must(krypto.ParseKey("2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d")),
	}))

	indexKey := must(krypto.ParseKey("90303dfed7994260ea4817a5ca8a392915cd401115b2f97495dadfcbcd14adbf"))

	testDB := testdb.RunWhile(t)
	test := &svcTest{
		t: t,
		store: &testStore{
			store:   db.New(testDB, testDB, encryptor, indexKey),
			tracker: &testerr.Calltracker{}, // empty call trackers never fail.
		},
		errList: &errList{
			mutex: &sync.Mutex{},
			errs:  make([]error, 0),
		},
		now: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC),
	}

	svc, err := auth.NewService(test.store, test.errList.AppendErr)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	svc.NowFunc = func() time.Time {
		return test.now
	}

	test.svc = svc

	return test
}

func newTeacher(mf func(*auth.NewTeacher)) auth.NewTeacher {
	nt := auth.NewTeacher{
		Name:     "Alice",
		Email:    must(email.ParseAddress("alice@example.com")),
		Username: must(auth.ParseUsername("alice")),
		Password: must(auth.ParseNewPassword("reallyStrongPassword1")),
	}

	if mf != nil {
		mf(&nt)
	}

	return nt
}

func (st *svcTest) createTeacher(mf func(*auth.NewTeacher)) auth.User {
	st.t.Helper()

	user, err := st.svc.CreateTeacher(context.Background(), newTeacher(mf))
	if err != nil {
		st.t.Fatalf("failed to create teacher: %v", err)
	}

	return user
}

func (st *svcTest) findByEmail(addr email.Address) auth.User {
	st.t.Helper()

	users, err := st.store.store.FindUsers(context.Background(), &auth.UserFilter{
		Emails: []email.Address{addr},
	})
	if err != nil {
		st.t.Fatalf("failed to find users: %v", err)
	}

	if len(users) != 1 {
		st.t.Fatalf("expected 1 user, got %d", len(users))
	}

	return users[0]
}

// setHash replaces the password hash of u directly in the store.
func (st *svcTest) setHash(u auth.User, hash auth.PasswordHash) {
	st.t.Helper()

	tx, err := st.store.store.BeginTx(context.Background())
	if err != nil {
		st.t.Fatalf("failed to begin tx: %v", err)
	}

	u.PasswordHash = hash
	err = tx.UpdateUser(&u)
	if err != nil {
		st.t.Fatalf("failed to update user: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		st.t.Fatalf("failed to commit: %v", err)
	}
}

type errList struct {
	mutex *sync.Mutex
	errs  []error
}

func (e *errList) AppendErr(err error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.errs = append(e.errs, err)
}

func (e *errList) assertNoError(t *testing.T) {
	t.Helper()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.errs) > 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}
}

func (e *errList) assertErrorIs(t *testing.T, err error) {
	t.Helper()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.errs) != 1 || !errors.Is(e.errs[0], err) {
		t.Fatalf("expected error %v, got %v via errors.Is()", err, e.errs)
	}
}

// testStore wraps a real store but uses a testerr.Calltracker to
// possibly fail on certain method calls.
type testStore struct {
	store   auth.Store
	tracker *testerr.Calltracker
}

func (f *testStore) BeginTx(ctx context.Context) (auth.Tx, error) {
	return testerr.MaybeFail(f.tracker, func() (auth.Tx, error) {
		realTx, err := f.store.BeginTx(ctx)
		return &testTx{
			store: f,
			tx:    realTx,
		}, err
	})
}

func (f *testStore) FindUsers(ctx context.Context, filter *auth.UserFilter) ([]auth.User, error) {
	return testerr.MaybeFail(f.tracker, func() ([]auth.User, error) {
		return f.store.FindUsers(ctx, filter)
	})
}

type testTx struct {
	store *testStore
	tx    auth.Tx
}

func (tx *testTx) Commit() error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.Commit()
	})
}

func (tx *testTx) Rollback() error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.Rollback()
	})
}

func (tx *testTx) CreateUser(u *auth.User) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.CreateUser(u)
	})
}

func (tx *testTx) UpdateUser(u *auth.User) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.UpdateUser(u)
	})
}

func (tx *testTx) FindUsers(filter *auth.UserFilter) ([]auth.User, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]auth.User, error) {
		return tx.tx.FindUsers(filter)
	})
}
