package auth

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidUsername indicates a username does not match the username rules.
var ErrInvalidUsername = errors.New("invalid username (3-50 chars: letters, numbers, _, -, .)")

var usernameRegexp = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// Username is a login name. Usernames are compared case-insensitively.
type Username string

// ParseUsername trims raw and checks it against the username rules.
func ParseUsername(raw string) (Username, error) {
	trimmed := strings.TrimSpace(raw)
	if !usernameRegexp.MatchString(trimmed) {
		return "", ErrInvalidUsername
	}

	return Username(trimmed), nil
}

func (u *Username) UnmarshalText(text []byte) error {
	parsed, err := ParseUsername(string(text))
	if err != nil {
		return err
	}

	*u = parsed
	return nil
}
