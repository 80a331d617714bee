package reset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyward-school/skyward/internal/auth"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
)

var (
	ErrRateLimited          = errors.New("too many reset requests, try again later")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrAccountNotFound      = errors.New("no account for email address")
	ErrStorage              = errors.New("reset storage failed")
	ErrNotifier             = errors.New("reset code delivery failed")
)

// CodeEmailTemplate is the name of the email template used to deliver codes.
const CodeEmailTemplate = "password-reset-code"

// verifyScanLimit is the number of most recent unused requests that are
// checked when a code is submitted.
const verifyScanLimit = 10

// CodeEmail is the data passed to the code email template.
type CodeEmail struct {
	Code       string
	TTLMinutes int
}

// Emailer sends templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, recipient email.Address, data any) error
}

// CredentialStore replaces the password of an account.
// It returns errorz.ErrNotFound if no account uses the email address.
type CredentialStore interface {
	SetPasswordByEmail(ctx context.Context, addr email.Address, pwd auth.NewPassword) error
}

// Config is the configuration for the Service.
type Config struct {
	// TTL is how long an issued code stays valid.
	TTL time.Duration
	// Cooldown is the minimum time between two codes for the same email address.
	Cooldown        time.Duration
	StoreTimeout    time.Duration
	NotifierTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TTL:             15 * time.Minute,
		Cooldown:        time.Minute,
		StoreTimeout:    5 * time.Second,
		NotifierTimeout: 10 * time.Second,
	}
}

// Service issues and redeems password reset codes.
type Service struct {
	store       Store
	hasher      *Hasher
	limiter     *RateLimiter
	emailer     Emailer
	credentials CredentialStore
	cfg         Config

	// GenerateFunc creates new codes.
	// Exposed for testing purposes.
	GenerateFunc func() (Code, error)

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(store Store, hasher *Hasher, emailer Emailer, credentials CredentialStore, cfg Config) *Service {
	return &Service{
		store:        store,
		hasher:       hasher,
		limiter:      NewRateLimiter(store, cfg.Cooldown),
		emailer:      emailer,
		credentials:  credentials,
		cfg:          cfg,
		GenerateFunc: GenerateCode,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// CodeRequest is a request for a new reset code.
type CodeRequest struct {
	Email email.Address `schema:"email,required"`
}

// RequestCode issues a new code for the email address and emails it.
//
// The request is stored before the email is sent. If sending fails
// the code still counts towards the cooldown.
func (s *Service) RequestCode(ctx context.Context, req CodeRequest) error {
	if req.Email == "" {
		return errorz.Missing("email")
	}

	now := s.NowFunc()

	allowed, err := withTimeout(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (bool, error) {
		return s.limiter.Allow(ctx, req.Email, now)
	})
	if err != nil {
		return fmt.Errorf("%w: rate limit check: %w", ErrStorage, err)
	}

	if !allowed {
		return ErrRateLimited
	}

	code, err := s.GenerateFunc()
	if err != nil {
		return err
	}

	r := Request{
		Email:     req.Email,
		CodeHash:  s.hasher.Hash(code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	err = withTimeoutErr(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		return s.store.Insert(ctx, &r)
	})
	if err != nil {
		return fmt.Errorf("%w: insert: %w", ErrStorage, err)
	}

	err = withTimeoutErr(ctx, s.cfg.NotifierTimeout, func(ctx context.Context) error {
		return s.emailer.Send(ctx, CodeEmailTemplate, req.Email, CodeEmail{
			Code:       code.Plain(),
			TTLMinutes: int(s.cfg.TTL / time.Minute),
		})
	})
	if err != nil {
		return fmt.Errorf("%w: request %s: %w", ErrNotifier, r.ID, err)
	}

	return nil
}

// ConfirmRequest redeems a code for a new password.
type ConfirmRequest struct {
	Email       email.Address    `schema:"email,required"`
	Code        Code             `schema:"code,required"`
	NewPassword auth.NewPassword `schema:"newPassword,required"`
}

func (r ConfirmRequest) validate() error {
	var ii errorz.InvalidInput

	if r.Email == "" {
		ii.Add("email", errorz.ErrMissingField)
	}

	if r.Code.IsZero() {
		ii.Add("code", errorz.ErrMissingField)
	}

	if r.NewPassword.IsZero() {
		ii.Add("newPassword", errorz.ErrMissingField)
	}

	return ii.OrNil()
}

// VerifyAndConsume checks the code against the most recent unused requests
// for the email address. The first unexpired request with a matching digest
// is marked used, after that the password of the account is replaced.
//
// If replacing the password fails the code stays used.
func (s *Service) VerifyAndConsume(ctx context.Context, req ConfirmRequest) error {
	err := req.validate()
	if err != nil {
		return err
	}

	now := s.NowFunc()

	candidates, err := withTimeout(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]Request, error) {
		return s.store.FindUnusedByEmail(ctx, req.Email, verifyScanLimit)
	})
	if err != nil {
		return fmt.Errorf("%w: find requests: %w", ErrStorage, err)
	}

	var match *Request
	for i := range candidates {
		if candidates[i].IsExpired(now) {
			continue
		}

		if s.hasher.Verify(req.Code, candidates[i].CodeHash) {
			match = &candidates[i]
			break
		}
	}

	if match == nil {
		return ErrInvalidOrExpiredCode
	}

	err = withTimeoutErr(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		return s.store.MarkUsed(ctx, match.ID, now)
	})
	if errors.Is(err, ErrAlreadyUsed) {
		// another request consumed the code in the meantime.
		return fmt.Errorf("%w: %w", ErrInvalidOrExpiredCode, err)
	}

	if err != nil {
		return fmt.Errorf("%w: mark used: %w", ErrStorage, err)
	}

	err = withTimeoutErr(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		return s.credentials.SetPasswordByEmail(ctx, req.Email, req.NewPassword)
	})
	if errors.Is(err, errorz.ErrNotFound) {
		return ErrAccountNotFound
	}

	if err != nil {
		return fmt.Errorf("%w: set password: %w", ErrStorage, err)
	}

	return nil
}

func withTimeout[T any](ctx context.Context, d time.Duration, f func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return f(ctx)
}

func withTimeoutErr(ctx context.Context, d time.Duration, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return f(ctx)
}
