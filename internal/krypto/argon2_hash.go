package krypto

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant     = "argon2id"
	argon2Version     = argon2.Version
	argon2MemoryKiB   = 46 * 1024
	argon2Iterations  = 1
	argon2Parallelism = 1
	argon2SaltLen     = 16
	argon2KeyLen      = 32
)

// ErrInvalidInput is returned when a hash can not be created from, or parsed out of, the input.
var ErrInvalidInput = errors.New("invalid input")

var b64 = base64.RawStdEncoding

// Argon2Hash is a hash created by the argon2id algorithm, together with
// the parameters that were used to create it.
//
// Its text representation is the PHC string format:
//
//	$argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes data using argon2id and a random salt.
func HashArgon2(data []byte) (Argon2Hash, error) {
	salt, err := randBytes(argon2SaltLen)
	if err != nil {
		return Argon2Hash{}, err
	}

	return hashArgon2(data, salt)
}

// HashArgon2WithKey hashes data using argon2id with the key as salt. The
// resulting hash is deterministic for a given key, which makes it usable
// as a blind index.
func HashArgon2WithKey(data []byte, key Key) (Argon2Hash, error) {
	return hashArgon2(data, key.SecretValue())
}

func hashArgon2(data, salt []byte) (Argon2Hash, error) {
	if len(data) == 0 {
		return Argon2Hash{}, fmt.Errorf("no data to hash: %w", ErrInvalidInput)
	}

	return Argon2Hash{
		Variant:     argon2Variant,
		Version:     argon2Version,
		MemoryKiB:   argon2MemoryKiB,
		Iterations:  argon2Iterations,
		Parallelism: argon2Parallelism,
		Salt:        salt,
		Hash:        argon2.IDKey(data, salt, argon2Iterations, argon2MemoryKiB, argon2Parallelism, argon2KeyLen),
	}, nil
}

// ParseArgon2Hash parses a hash in PHC string format.
func ParseArgon2Hash(s string) (Argon2Hash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("expected 6 segments: %w", ErrInvalidInput)
	}

	var h Argon2Hash

	h.Variant = parts[1]
	if h.Variant != argon2Variant {
		return Argon2Hash{}, fmt.Errorf("unsupported variant %q: %w", h.Variant, ErrInvalidInput)
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return Argon2Hash{}, fmt.Errorf("missing version: %w", ErrInvalidInput)
	}

	v, err := strconv.Atoi(version)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid version: %w", errors.Join(ErrInvalidInput, err))
	}

	if v != argon2Version {
		return Argon2Hash{}, fmt.Errorf("unsupported version %d: %w", v, ErrInvalidInput)
	}
	h.Version = v

	_, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.MemoryKiB, &h.Iterations, &h.Parallelism)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid parameters: %w", errors.Join(ErrInvalidInput, err))
	}

	h.Salt, err = b64.DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid salt: %w", errors.Join(ErrInvalidInput, err))
	}

	h.Hash, err = b64.DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid hash: %w", errors.Join(ErrInvalidInput, err))
	}

	return h, nil
}

// MatchBytes reports whether data hashes to h, using the parameters and salt of h.
func (h Argon2Hash) MatchBytes(data []byte) bool {
	if len(h.Hash) == 0 {
		return false
	}

	other := argon2.IDKey(data, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}

func (h Argon2Hash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant, h.Version, h.MemoryKiB, h.Iterations, h.Parallelism,
		b64.EncodeToString(h.Salt), b64.EncodeToString(h.Hash),
	)
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseArgon2Hash(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// Scan implements sql.Scanner.
func (h *Argon2Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("can not scan %T into an argon2 hash", src)
	}
}
