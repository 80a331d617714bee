package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skyward-school/skyward/internal/krypto"
)

// Query builds SQL statements with bind parameters. Values that need to
// be stored encrypted or looked up by blind index go through
// ParamEncrypted and ParamBlindIndex.
//
// The first error encountered is kept and returned by Get, so callers
// don't need to check errors while building.
type Query struct {
	Encryptor     *krypto.Encryptor
	BlindIndexKey krypto.Key
	b             strings.Builder
	params        []any
	err           error
}

// Unsafe writes a non-parameterized part of a query.
func (q *Query) Unsafe(s string) {
	q.b.WriteString(s)
}

// Param writes a single bind parameter.
func (q *Query) Param(v any) {
	q.b.WriteString("?")
	q.params = append(q.params, v)
}

// Params writes multiple bind parameters separated by commas.
func (q *Query) Params(v ...any) {
	for i, p := range v {
		if i > 0 {
			q.b.WriteString(", ")
		}
		q.Param(p)
	}
}

// ParamEncrypted encrypts d and writes it as a bind parameter.
func (q *Query) ParamEncrypted(d []byte) {
	if q.Encryptor == nil {
		q.err = errors.Join(q.err, errors.New("no encryptor set"))
		return
	}

	enc, err := q.Encryptor.Encrypt(d)
	if err != nil {
		q.err = errors.Join(q.err, fmt.Errorf("failed to encrypt parameter: %w", err))
		return
	}

	q.Param(enc)
}

// ParamBlindIndex writes a keyed argon2 hash of d as a bind parameter.
// Existing blind indexes need to be rebuilt if the key or argon2 parameters change.
func (q *Query) ParamBlindIndex(d []byte) {
	q.Param(q.blindIndex(d))
}

func (q *Query) blindIndex(d []byte) string {
	hash, err := krypto.HashArgon2WithKey(d, q.BlindIndexKey)
	if err != nil {
		q.err = errors.Join(q.err, fmt.Errorf("failed to create blind index: %w", err))
		return ""
	}

	// the salt is the key, it must not be stored.
	hash.Salt = nil
	return hash.String()
}

// Get returns the constructed query and parameter values.
func (q *Query) Get() (string, []any, error) {
	return q.b.String(), q.params, q.err
}

// DecryptionTarget returns a sql.Scanner that decrypts the scanned value.
func (q *Query) DecryptionTarget() *Decryptable {
	return &Decryptable{
		encryptor: q.Encryptor,
	}
}

// Decryptable holds the plaintext of a scanned encrypted column.
type Decryptable struct {
	encryptor *krypto.Encryptor
	Data      []byte
}

func (d *Decryptable) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("can not decrypt %T", src)
	}

	data, err := d.encryptor.Decrypt(b)
	if err != nil {
		return err
	}

	d.Data = data

	return nil
}
