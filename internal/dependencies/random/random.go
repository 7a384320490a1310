package random

import (
	"crypto/rand"
)

// Random provides random bytes for salts and nonces; it can be mocked for testing
type Random interface {
	// Read fills p with random bytes
	Read(p []byte) (int, error)
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Read fills p from the operating system's CSPRNG
func (r *CryptoRandom) Read(p []byte) (int, error) {
	return rand.Read(p)
}
