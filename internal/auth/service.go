package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
	"github.com/skyward-school/skyward/internal/krypto"
)

var (
	ErrDuplicateUser      = errors.New("username or email already in use")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const maxNameLen = 200

// ErrFunc handles errors that should not fail the current operation.
type ErrFunc func(error)

// Service is the type that provides the main rules for
// account creation and authentication.
type Service struct {
	store      Store
	errHandler ErrFunc

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash PasswordHash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, errHandler ErrFunc) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := Password{plain: []byte(tok.Hex())}.Hash()
	if err != nil {
		return nil, err
	}

	return &Service{
		store:          s,
		errHandler:     errHandler,
		comparisonHash: hash,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// NewTeacher holds the data to create a teacher account.
type NewTeacher struct {
	Name     string        `schema:"teacher_name,required"`
	Email    email.Address `schema:"teacher_email,required"`
	Username Username      `schema:"teacher_username,required"`
	Password NewPassword   `schema:"teacher_password,required"`
}

func (nt NewTeacher) validate() error {
	var ii errorz.InvalidInput

	if nt.Name == "" {
		ii.Add("teacher_name", errorz.ErrMissingField)
	} else if len(nt.Name) > maxNameLen {
		ii.Add("teacher_name", fmt.Errorf("name is longer than %d bytes", maxNameLen))
	}

	if nt.Email == "" {
		ii.Add("teacher_email", errorz.ErrMissingField)
	}

	if nt.Username == "" {
		ii.Add("teacher_username", errorz.ErrMissingField)
	}

	if nt.Password.IsZero() {
		ii.Add("teacher_password", errorz.ErrMissingField)
	}

	return ii.OrNil()
}

// CreateTeacher creates an account with the teacher role.
// It returns ErrDuplicateUser if the username or email is already in use.
func (s *Service) CreateTeacher(ctx context.Context, nt NewTeacher) (User, error) {
	nt.Name = strings.TrimSpace(nt.Name)
	if err := nt.validate(); err != nil {
		return User{}, err
	}

	pwdHash, err := nt.Password.Hash()
	if err != nil {
		return User{}, err
	}

	now := s.NowFunc()
	user := User{
		ID:           uuid.New(),
		Name:         nt.Name,
		Email:        nt.Email,
		Username:     nt.Username,
		PasswordHash: pwdHash,
		Role:         RoleTeacher,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.inTx(ctx, func(tx Tx) error {
		// Two lookups, a user conflicts when either the username or the email matches.
		for _, filter := range []*UserFilter{
			{Usernames: []Username{nt.Username}},
			{Emails: []email.Address{nt.Email}},
		} {
			users, txErr := tx.FindUsers(filter)
			if txErr != nil {
				return txErr
			}

			if len(users) > 0 {
				return ErrDuplicateUser
			}
		}

		txErr := tx.CreateUser(&user)
		if errors.Is(txErr, errorz.ErrConstraintViolated) {
			// the unique indexes are the source of truth.
			return errors.Join(ErrDuplicateUser, txErr)
		}

		return txErr
	})
	if err != nil {
		return User{}, err
	}

	return user, nil
}

// Credentials are provided by a user that wants to log in.
type Credentials struct {
	// Identifier is a username or an email address.
	Identifier string   `schema:"username,required"`
	Password   Password `schema:"password,required"`
}

// Authenticate returns the user identified by the credentials. It returns
// ErrInvalidCredentials both when the user does not exist and when the
// password does not match.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (User, error) {
	c.Identifier = strings.TrimSpace(c.Identifier)

	var ii errorz.InvalidInput
	if c.Identifier == "" {
		ii.Add("username", errorz.ErrMissingField)
	}
	if c.Password.IsZero() {
		ii.Add("password", errorz.ErrMissingField)
	}
	if err := ii.OrNil(); err != nil {
		return User{}, err
	}

	filter, ok := identifierFilter(c.Identifier)

	var users []User
	if ok {
		var err error
		users, err = s.store.FindUsers(ctx, filter)
		if err != nil {
			return User{}, err
		}
	}

	if len(users) != 1 {
		// Even if no user is found we compare to a hash to prevent timing differences
		// that could result in user enumeration attacks.
		_ = c.Password.Match(s.comparisonHash)
		return User{}, ErrInvalidCredentials
	}

	user := users[0]
	if !c.Password.Match(user.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}

	if user.PasswordHash.IsLegacy() {
		// The user is logged in either way, a failed upgrade is retried on the next login.
		err := s.upgradeHash(ctx, &user, c.Password)
		if err != nil {
			s.errHandler(fmt.Errorf("failed to upgrade legacy password hash of user %s: %w", user.ID, err))
		}
	}

	return user, nil
}

// identifierFilter builds a filter for a username or an email address.
// It returns false if the identifier can't identify any user.
func identifierFilter(identifier string) (*UserFilter, bool) {
	if strings.Contains(identifier, "@") {
		addr, err := email.ParseAddress(identifier)
		if err != nil {
			return nil, false
		}
		return &UserFilter{Emails: []email.Address{addr}}, true
	}

	username, err := ParseUsername(identifier)
	if err != nil {
		return nil, false
	}
	return &UserFilter{Usernames: []Username{username}}, true
}

func (s *Service) upgradeHash(ctx context.Context, user *User, pwd Password) error {
	hash, err := pwd.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		updated := *user
		updated.PasswordHash = hash
		updated.UpdatedAt = s.NowFunc()

		txErr := tx.UpdateUser(&updated)
		if txErr != nil {
			return txErr
		}

		*user = updated
		return nil
	})
}

// SetPasswordByEmail replaces the password of the account with the given email address.
// It returns errorz.ErrNotFound if there is no such account.
func (s *Service) SetPasswordByEmail(ctx context.Context, addr email.Address, pwd NewPassword) error {
	if pwd.IsZero() {
		return errorz.Missing("newPassword")
	}

	hash, err := pwd.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(&UserFilter{
			Emails: []email.Address{addr},
		})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		user := users[0]
		user.PasswordHash = hash
		user.UpdatedAt = s.NowFunc()

		return tx.UpdateUser(&user)
	})
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	return tx.Commit()
}
