// Package cipher derives symmetric keys from shared secrets and seals the
// payloads exchanged during the connection handshake.
//
// A sealed payload is laid out as
//
//	[16-byte salt][12-byte nonce][ciphertext + 16-byte tag]
//
// The salt travels in the clear so the receiver can derive the same key from
// a secret it already knows. Opening succeeds only with the right key; a wrong
// key and a tampered payload are indistinguishable to the caller.
package cipher

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize   = 16
	KeySize    = chacha20poly1305.KeySize
	NonceSize  = chacha20poly1305.NonceSize
	Iterations = 20000

	// Overhead is the number of bytes Seal adds to a plaintext
	Overhead = SaltSize + NonceSize + chacha20poly1305.Overhead
)

var (
	ErrMalformed = errors.New("cipher: malformed sealed payload")
	ErrOpen      = errors.New("cipher: message authentication failed")
	ErrBadKey    = errors.New("cipher: invalid key encoding")
)

// Key is key material derived from a secret, paired with the salt used to derive it.
// Keys are immutable values and safe to share between goroutines.
type Key struct {
	material []byte
	salt     []byte
}

// DeriveKey stretches secret with salt using PBKDF2-HMAC-SHA256
func DeriveKey(secret string, salt []byte) Key {
	s := bytes.Clone(salt)
	return Key{
		material: pbkdf2.Key([]byte(secret), s, Iterations, KeySize, sha256.New),
		salt:     s,
	}
}

// NewKey derives a key from secret under a fresh random salt
func NewKey(secret string, rnd io.Reader) (Key, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return Key{}, fmt.Errorf("generate salt: %w", err)
	}
	return DeriveKey(secret, salt), nil
}

// KeyFromEncoded rebuilds a key from its base64 material and salt.
// The salt may be padded or unpadded.
func KeyFromEncoded(material, salt string) (Key, error) {
	m, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return Key{}, fmt.Errorf("%w: key: %v", ErrBadKey, err)
	}
	if len(m) != KeySize {
		return Key{}, fmt.Errorf("%w: key is %d bytes, want %d", ErrBadKey, len(m), KeySize)
	}
	s, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		s, err = base64.StdEncoding.DecodeString(salt)
		if err != nil {
			return Key{}, fmt.Errorf("%w: salt: %v", ErrBadKey, err)
		}
	}
	if len(s) == 0 {
		return Key{}, fmt.Errorf("%w: empty salt", ErrBadKey)
	}
	return Key{material: m, salt: s}, nil
}

// Salt returns a copy of the salt
func (k Key) Salt() []byte {
	return bytes.Clone(k.salt)
}

// IsZero reports whether k holds no key material
func (k Key) IsZero() bool {
	return len(k.material) == 0
}

// EncodedMaterial returns the key material as standard base64
func (k Key) EncodedMaterial() string {
	return base64.StdEncoding.EncodeToString(k.material)
}

// EncodedSalt returns the salt as unpadded standard base64
func (k Key) EncodedSalt() string {
	return base64.RawStdEncoding.EncodeToString(k.salt)
}

// HasSalt reports whether k was derived with salt
func (k Key) HasSalt(salt []byte) bool {
	return len(k.salt) > 0 && bytes.Equal(k.salt, salt)
}

// Seal encrypts plaintext under k with a fresh nonce read from rnd
func (k Key) Seal(plaintext []byte, rnd io.Reader) ([]byte, error) {
	if k.IsZero() {
		return nil, ErrBadKey
	}
	if len(k.salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d", ErrBadKey, len(k.salt), SaltSize)
	}
	aead, err := chacha20poly1305.New(k.material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}

	out := make([]byte, SaltSize+NonceSize, Overhead+len(plaintext))
	copy(out, k.salt)
	nonce := out[SaltSize : SaltSize+NonceSize]
	if _, err := io.ReadFull(rnd, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal. A payload sealed under a different
// salt or key, or altered in transit, fails with ErrOpen.
func (k Key) Open(payload []byte) ([]byte, error) {
	salt, err := SaltOf(payload)
	if err != nil {
		return nil, err
	}
	if !k.HasSalt(salt) {
		return nil, ErrOpen
	}
	aead, err := chacha20poly1305.New(k.material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	nonce := payload[SaltSize : SaltSize+NonceSize]
	plaintext, err := aead.Open(nil, nonce, payload[SaltSize+NonceSize:], nil)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// SaltOf returns the salt prefix of a sealed payload
func SaltOf(payload []byte) ([]byte, error) {
	if len(payload) < Overhead {
		return nil, ErrMalformed
	}
	return payload[:SaltSize], nil
}

// SealWithSecret derives a key from secret under a fresh salt and seals plaintext with it
func SealWithSecret(secret string, plaintext []byte, rnd io.Reader) ([]byte, error) {
	key, err := NewKey(secret, rnd)
	if err != nil {
		return nil, err
	}
	return key.Seal(plaintext, rnd)
}

// OpenWithSecret derives the key for payload's salt from secret and opens payload
func OpenWithSecret(secret string, payload []byte) ([]byte, error) {
	salt, err := SaltOf(payload)
	if err != nil {
		return nil, err
	}
	return DeriveKey(secret, salt).Open(payload)
}
