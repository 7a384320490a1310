package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/tabletop/internal/dependencies/clock"
	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/storage"
)

// Registry is an in-memory implementation of the session registry
type Registry struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]reservation
}

type reservation struct {
	token     string
	confirmed bool
	expiresAt time.Time // zero means no expiry
}

// NewRegistry creates a new in-memory session registry
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clock:   clk,
		entries: make(map[string]reservation),
	}
}

// Ensure Registry implements the interface
var _ storage.SessionRegistry = (*Registry)(nil)

// live reports whether r still holds its name at now
func (r reservation) live(now time.Time) bool {
	return r.confirmed || r.expiresAt.IsZero() || now.Before(r.expiresAt)
}

func (s *Registry) Reserve(ctx context.Context, name string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if existing, ok := s.entries[name]; ok && existing.live(now) {
		return "", fmt.Errorf("%w: %s", model.ErrNameInUse, name)
	}

	res := reservation{token: uuid.NewString()}
	if ttl > 0 {
		res.expiresAt = now.Add(ttl)
	}
	s.entries[name] = res
	return res.token, nil
}

func (s *Registry) Confirm(ctx context.Context, name, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.entries[name]
	if !ok || res.token != token || !res.live(s.clock.Now()) {
		return fmt.Errorf("%w: %s", model.ErrReservationNotFound, name)
	}
	res.confirmed = true
	res.expiresAt = time.Time{}
	s.entries[name] = res
	return nil
}

func (s *Registry) Release(ctx context.Context, name, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.entries[name]
	if !ok || res.token != token {
		return fmt.Errorf("%w: %s", model.ErrReservationNotFound, name)
	}
	delete(s.entries, name)
	return nil
}

func (s *Registry) IsActive(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.entries[name]
	return ok && res.live(s.clock.Now()), nil
}

func (s *Registry) Active(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	names := make([]string, 0, len(s.entries))
	for name, res := range s.entries {
		if res.live(now) {
			names = append(names, name)
		} else {
			delete(s.entries, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
