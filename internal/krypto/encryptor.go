package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
)

var (
	// ErrUnknownKey indicates that the key used to encrypt the data is unknown.
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidData indicates that the data is invalid.
	ErrInvalidData = errors.New("invalid data")
)

const indexBytes = 4

// Encryptor encrypts and decrypts data using AES-GCM.
//
// Keys form an append only list, the last key is used for encryption.
// Every ciphertext starts with the (non-secret) big endian index of the key
// that sealed it, so data encrypted with older keys can still be opened
// after a key rotation. The index is also used as additional data.
type Encryptor struct {
	keys []Key
}

// NewEncryptor creates a new encryptor with the provided keys.
func NewEncryptor(keys []Key) (*Encryptor, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one key is required")
	}

	return &Encryptor{
		keys: keys,
	}, nil
}

// Encrypt encrypts the data using the latest available key.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	index := uint32(len(e.keys) - 1)
	gcm, err := e.aead(index)
	if err != nil {
		return nil, err
	}

	nonce, err := randBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}

	ad := binary.BigEndian.AppendUint32(nil, index)

	out := make([]byte, 0, indexBytes+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, ad...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, ad), nil
}

// Decrypt opens a message created by Encrypt.
func (e *Encryptor) Decrypt(message []byte) ([]byte, error) {
	if len(message) < indexBytes {
		return nil, ErrInvalidData
	}

	index := binary.BigEndian.Uint32(message[:indexBytes])
	if int(index) >= len(e.keys) {
		return nil, ErrUnknownKey
	}

	gcm, err := e.aead(index)
	if err != nil {
		return nil, err
	}

	headerLen := indexBytes + gcm.NonceSize()
	if len(message) <= headerLen {
		return nil, ErrInvalidData
	}

	nonce := message[indexBytes:headerLen]
	return gcm.Open(nil, nonce, message[headerLen:], message[:indexBytes])
}

func (e *Encryptor) aead(index uint32) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.keys[index].value)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
