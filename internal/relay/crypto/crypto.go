// Package crypto seals relay payloads exchanged between the companion and
// the host: HKDF-SHA256 key derivation from a shared secret and AES-256-GCM
// with separate IV and tag fields.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length.
const KeySize = 32

const hkdfInfo = "hrkit-relay"

// ErrEmptySecret is returned by DeriveKey for an empty shared secret.
var ErrEmptySecret = errors.New("relay/crypto: empty shared secret")

// DeriveKey uses HKDF-SHA256 to derive a 32-byte AES key from the shared
// secret configured on both ends of the relay.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	r := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("relay/crypto: HKDF: %w", err)
	}
	return key, nil
}

// Box is a sealed payload.
type Box struct {
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"data"`
	Tag        []byte `json:"tag"`
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("relay/crypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("relay/crypto: new GCM: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext under a fresh random IV.
func Seal(key, plaintext []byte) (Box, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return Box{}, err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Box{}, fmt.Errorf("relay/crypto: random IV: %w", err)
	}

	// GCM appends the tag to the ciphertext.
	sealed := aead.Seal(nil, iv, plaintext, nil)
	tagSize := aead.Overhead()
	return Box{
		IV:         iv,
		Ciphertext: sealed[:len(sealed)-tagSize],
		Tag:        sealed[len(sealed)-tagSize:],
	}, nil
}

// Open authenticates and decrypts a Box.
func Open(key []byte, box Box) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(box.IV) != aead.NonceSize() {
		return nil, fmt.Errorf("relay/crypto: IV must be %d bytes, got %d", aead.NonceSize(), len(box.IV))
	}

	sealed := make([]byte, len(box.Ciphertext)+len(box.Tag))
	copy(sealed, box.Ciphertext)
	copy(sealed[len(box.Ciphertext):], box.Tag)
	plaintext, err := aead.Open(nil, box.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("relay/crypto: open: %w", err)
	}
	return plaintext, nil
}
