package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skyward-school/skyward/internal/krypto"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordBytes = 8
	// We put a generous upper cap on password length, so people can use
	// passphrases but we don't allow MBs of data as a password.
	maxPasswordBytes = 512
)

var (
	ErrInvalidPassword   = errors.New("invalid password")
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters: %w", minPasswordBytes, ErrInvalidPassword)
	ErrInvalidHashFormat = errors.New("invalid password hash format")
)

// Password is a plaintext password as provided when logging in.
//
// It should never be persisted, logged or exposed in any other way. To
// protect ourselves from accidentally doing so, the type implements
// several common interfaces that would allow it to be used inappropriately.
//
// There are only two operations allowed on a Password:
// - Converting it to a hash.
// - Comparing it with an existing hash to see if they match.
type Password struct {
	plain []byte
}

// ParsePassword accepts any non-empty password up to the maximum length.
// Length policy is only enforced for new passwords, existing accounts may
// predate it.
func ParsePassword(pwd string) (Password, error) {
	if len(pwd) == 0 || len(pwd) > maxPasswordBytes {
		return Password{}, ErrInvalidPassword
	}

	return Password{
		plain: []byte(pwd),
	}, nil
}

// IsZero reports whether no password was provided.
func (p Password) IsZero() bool {
	return len(p.plain) == 0
}

// Match checks if the plaintext password matches the given hash.
func (p Password) Match(h PasswordHash) bool {
	switch {
	case len(h.bcrypt) > 0:
		return bcrypt.CompareHashAndPassword(h.bcrypt, p.plain) == nil
	default:
		return h.argon2.MatchBytes(p.plain)
	}
}

// Hash hashes the plaintext password using argon2id.
func (p Password) Hash() (PasswordHash, error) {
	h, err := krypto.HashArgon2(p.plain)
	if err != nil {
		return PasswordHash{}, err
	}

	return PasswordHash{argon2: h}, nil
}

func (p *Password) UnmarshalText(text []byte) error {
	parsed, err := ParsePassword(string(text))
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}

func (p Password) Format(f fmt.State, verb rune) {
	f.Write([]byte(krypto.SecretMarker))
}

func (p Password) MarshalText() ([]byte, error) {
	return []byte(krypto.SecretMarker), nil
}

func (p Password) LogValue() slog.Value {
	return slog.StringValue(krypto.SecretMarker)
}

// NewPassword is a password that is about to be set on an account.
// On top of the Password rules it has a minimum length.
type NewPassword struct {
	Password
}

func ParseNewPassword(pwd string) (NewPassword, error) {
	if len(pwd) < minPasswordBytes {
		return NewPassword{}, ErrPasswordTooShort
	}

	p, err := ParsePassword(pwd)
	if err != nil {
		return NewPassword{}, err
	}

	return NewPassword{Password: p}, nil
}

func (p *NewPassword) UnmarshalText(text []byte) error {
	parsed, err := ParseNewPassword(string(text))
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}

// PasswordHash is a stored password hash. New hashes are always argon2id,
// bcrypt hashes created by the previous version of the application are
// still accepted and get replaced after the next successful login.
type PasswordHash struct {
	argon2 krypto.Argon2Hash
	bcrypt []byte
}

// ParsePasswordHash parses an argon2id PHC string or a bcrypt hash.
func ParsePasswordHash(s string) (PasswordHash, error) {
	if isBcrypt(s) {
		if _, err := bcrypt.Cost([]byte(s)); err != nil {
			return PasswordHash{}, fmt.Errorf("%w: %w", ErrInvalidHashFormat, err)
		}
		return PasswordHash{bcrypt: []byte(s)}, nil
	}

	h, err := krypto.ParseArgon2Hash(s)
	if err != nil {
		return PasswordHash{}, fmt.Errorf("%w: %w", ErrInvalidHashFormat, err)
	}

	return PasswordHash{argon2: h}, nil
}

func isBcrypt(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// IsLegacy reports whether the hash should be replaced by an argon2id hash.
func (h PasswordHash) IsLegacy() bool {
	return len(h.bcrypt) > 0
}

func (h PasswordHash) String() string {
	if h.IsLegacy() {
		return string(h.bcrypt)
	}
	return h.argon2.String()
}

// Scan implements sql.Scanner.
func (h *PasswordHash) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("can not scan %T into a password hash", src)
	}

	parsed, err := ParsePasswordHash(s)
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}
