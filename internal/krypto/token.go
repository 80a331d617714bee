package krypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

const (
	tokenLen = 32
)

var ErrInvalidToken = errors.New("invalid token")

// Token is a random 32 byte value. It's used as a session identifier
// and as comparison input where a value nobody knows is needed.
//
// Tokens identify sessions, so they should not end up in logs.
type Token [tokenLen]byte

// GenerateToken creates a new random token.
func GenerateToken() (Token, error) {
	b, err := randBytes(tokenLen)
	if err != nil {
		return Token{}, err
	}
	return Token(b), nil
}

// ParseToken parses a hex encoded token.
func ParseToken(raw string) (Token, error) {
	if len(raw) != tokenLen*2 {
		return Token{}, ErrInvalidToken
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	return Token(b), nil
}

// Hex returns the token hex encoded. Only use this to hand the token to
// the party that should hold it.
func (t Token) Hex() string {
	return hex.EncodeToString(t[:])
}

func (t Token) Format(f fmt.State, verb rune) {
	f.Write([]byte(SecretMarker))
}

// LogValue implements the slog.LogValuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}
