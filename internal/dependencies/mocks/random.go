package mocks

import (
	"sync"

	"github.com/mcoot/tabletop/internal/dependencies/random"
)

// MockRandom is a deterministic implementation of Random for testing.
// Queued byte slices are returned first; once exhausted it fills reads
// from an incrementing counter so successive salts still differ.
type MockRandom struct {
	mu      sync.Mutex
	queued  [][]byte
	counter byte
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Read copies the next queued value into p, or counter bytes if none remain
func (r *MockRandom) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queued) > 0 {
		next := r.queued[0]
		r.queued = r.queued[1:]
		n := copy(p, next)
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return len(p), nil
	}

	r.counter++
	for i := range p {
		p[i] = r.counter + byte(i)
	}
	return len(p), nil
}

// QueueBytes adds values to the Read result queue
func (r *MockRandom) QueueBytes(values ...[]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = nil
	r.counter = 0
}
