package email

import (
	"errors"
	"net/mail"
	"strings"
)

// maxAddressLen is the longest address SMTP allows in a forward path.
const maxAddressLen = 254

// ErrInvalidEmail indicates an email address is not valid.
var ErrInvalidEmail = errors.New("invalid email address")

// Address is a trimmed and lower-cased email address. Accounts and reset
// requests are looked up by it, so two spellings of the same address must
// compare equal.
type Address string

// ParseAddress checks that raw is a bare address such as "ada@example.com".
// Display names and comments are rejected. Deliverability is not checked.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > maxAddressLen {
		return "", ErrInvalidEmail
	}

	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", ErrInvalidEmail
	}

	return Address(strings.ToLower(parsed.Address)), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr

	return nil
}
