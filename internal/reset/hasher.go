package reset

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"

	"github.com/skyward-school/skyward/internal/krypto"
)

// Digest is the hex encoded hash of a code. Only digests are stored.
type Digest string

// Hasher turns codes into digests. Without a key the digest is the
// SHA-256 of the code, with a key it's HMAC-SHA256.
//
// Codes are short-lived and rate limited, so no salt or work factor is used.
type Hasher struct {
	key []byte
}

// NewHasher creates an unkeyed hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// NewKeyedHasher creates a hasher that computes HMAC-SHA256 digests with key.
func NewKeyedHasher(key krypto.Key) *Hasher {
	return &Hasher{
		key: key.SecretValue(),
	}
}

// Hash returns the digest of c. The same code always results in the same digest.
func (h *Hasher) Hash(c Code) Digest {
	var mac hash.Hash
	if len(h.key) > 0 {
		mac = hmac.New(sha256.New, h.key)
	} else {
		mac = sha256.New()
	}

	mac.Write([]byte(c.plain))
	return Digest(hex.EncodeToString(mac.Sum(nil)))
}

// Verify reports whether c hashes to d. The comparison is constant time.
func (h *Hasher) Verify(c Code, d Digest) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(c)), []byte(d)) == 1
}
