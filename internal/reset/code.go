package reset

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/skyward-school/skyward/internal/krypto"
)

const (
	codeMin = 100000
	codeMax = 999999
	// submitted codes are not checked for shape, a wrong code simply won't match.
	maxCodeBytes = 64
)

var ErrInvalidCode = errors.New("invalid code")

// Code is a plaintext one-time reset code. It is only ever handed to the
// emailer, everything else works with its Digest.
type Code struct {
	plain string
}

// GenerateCode returns a uniformly random 6-digit code.
func GenerateCode() (Code, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return Code{}, fmt.Errorf("failed to generate code: %w", err)
	}

	return Code{plain: fmt.Sprintf("%d", n.Int64()+codeMin)}, nil
}

// ParseCode parses a code as submitted by a user.
func ParseCode(raw string) (Code, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len(trimmed) > maxCodeBytes {
		return Code{}, ErrInvalidCode
	}

	return Code{plain: trimmed}, nil
}

// IsZero reports whether no code was provided.
func (c Code) IsZero() bool {
	return c.plain == ""
}

// Plain returns the plaintext code, for delivery to the account owner.
func (c Code) Plain() string {
	return c.plain
}

func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := ParseCode(string(text))
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}

func (c Code) Format(f fmt.State, verb rune) {
	f.Write([]byte(krypto.SecretMarker))
}

func (c Code) MarshalText() ([]byte, error) {
	return []byte(krypto.SecretMarker), nil
}

func (c Code) LogValue() slog.Value {
	return slog.StringValue(krypto.SecretMarker)
}
