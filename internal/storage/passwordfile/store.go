// Package passwordfile implements the player database backed by a JSON
// password file with one salted key per player.
//
// The in-memory state is authoritative. Every mutation marks the store dirty
// and flushes synchronously; the dirty flag is cleared by an atomic
// compare-and-swap under the flush lock, so concurrent mutations coalesce
// into a single rewrite of the whole document and none returns before its
// change is on disk.
package passwordfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/tabletop/internal/dependencies/random"
	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/cipher"
	"github.com/mcoot/tabletop/internal/storage"
)

// FlushObserver is notified after every attempted write of the password file
type FlushObserver interface {
	ObserveFlush(duration time.Duration, err error)
}

// Store is a password-file backed player database
type Store struct {
	path   string
	rnd    io.Reader
	logger *slog.Logger
	obs    FlushObserver

	// players maps name -> *entrySlot
	players sync.Map
	dirty   atomic.Bool

	// flushMu serializes document writes and clearing dirty; lookups never
	// take it
	flushMu sync.Mutex
}

// entrySlot holds the current record for one name. Readers load the pointer
// without locking; mu orders read-modify-write mutations of the same player.
type entrySlot struct {
	mu  sync.Mutex
	rec atomic.Pointer[record]
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for load and flush events
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRandom sets the source of salts for newly derived keys
func WithRandom(rnd random.Random) Option {
	return func(s *Store) { s.rnd = rnd }
}

// WithFlushObserver registers an observer for document writes
func WithFlushObserver(obs FlushObserver) Option {
	return func(s *Store) { s.obs = obs }
}

// Ensure Store implements the interface
var _ storage.PlayerDatabase = (*Store)(nil)

// Load builds a Store from the password file at path.
//
// If additional is non-empty and the file exists, its entries replace
// same-named entries from path and the file is deleted once merged. The
// merged state is written back to path before Load returns.
func Load(path, additional string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("password file path is required")
	}

	s := &Store{
		path:   path,
		rnd:    random.New(),
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("password_file", path))

	loaded, err := s.merge(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("password file not found, creating")
		s.dirty.Store(true)
	case err != nil:
		return nil, err
	default:
		s.logger.Info("password file loaded", slog.Int("players", loaded))
	}

	if additional != "" {
		imported, err := s.merge(additional)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("import additional players: %w", err)
		default:
			s.dirty.Store(true)
			if err := os.Remove(additional); err != nil {
				return nil, fmt.Errorf("remove imported players file: %w", err)
			}
			s.logger.Info("additional players imported",
				slog.String("file", additional),
				slog.Int("players", imported))
		}
	}

	if err := s.flush(); err != nil {
		return nil, err
	}
	return s, nil
}

// merge reads file and stores its records, replacing any with the same name
func (s *Store) merge(file string) (int, error) {
	records, upgraded, err := readDocument(file, s.rnd)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		s.put(rec)
	}
	if len(upgraded) > 0 {
		s.logger.Info("derived salted keys for plaintext entries",
			slog.String("file", file),
			slog.Int("players", len(upgraded)))
		s.dirty.Store(true)
	}
	return len(records), nil
}

func (s *Store) put(rec *record) {
	slot := &entrySlot{}
	slot.rec.Store(rec)
	if existing, loaded := s.players.LoadOrStore(rec.name, slot); loaded {
		e := existing.(*entrySlot)
		e.mu.Lock()
		e.rec.Store(rec)
		e.mu.Unlock()
	}
}

func (s *Store) slot(name string) (*entrySlot, bool) {
	v, ok := s.players.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*entrySlot), true
}

func (s *Store) lookup(name string) (*record, bool) {
	slot, ok := s.slot(name)
	if !ok {
		return nil, false
	}
	rec := slot.rec.Load()
	return rec, rec != nil
}

// update applies fn to a copy of name's record, installs the result and flushes
func (s *Store) update(name string, fn func(r *record)) error {
	slot, ok := s.slot(name)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
	}

	slot.mu.Lock()
	current := slot.rec.Load()
	if current == nil {
		slot.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
	}
	next := current.clone()
	fn(next)
	slot.rec.Store(next)
	slot.mu.Unlock()

	s.dirty.Store(true)
	return s.flush()
}

// flush writes the document if the store is dirty. The flag is cleared under
// flushMu, so a caller that finds it already clear knows the write that
// cleared it has completed and included its mutation. A failed write re-arms
// the flag so a later mutation retries it.
func (s *Store) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if !s.dirty.CompareAndSwap(true, false) {
		return nil
	}

	start := time.Now()
	err := writeDocument(s.path, s.snapshot())
	if s.obs != nil {
		s.obs.ObserveFlush(time.Since(start), err)
	}
	if err != nil {
		s.dirty.Store(true)
		s.logger.Error("password file flush failed", slog.String("error", err.Error()))
		return fmt.Errorf("write password file: %w", err)
	}
	s.logger.Debug("password file flushed")
	return nil
}

// snapshot returns the current records sorted by name
func (s *Store) snapshot() []*record {
	var records []*record
	s.players.Range(func(_, v any) bool {
		if rec := v.(*entrySlot).rec.Load(); rec != nil {
			records = append(records, rec)
		}
		return true
	})
	slices.SortFunc(records, func(a, b *record) int {
		return strings.Compare(a.name, b.name)
	})
	return records
}

// Lookups

func (s *Store) PlayerExists(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

func (s *Store) GetPlayer(name string) (*model.Player, error) {
	rec, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
	}
	return rec.player(), nil
}

func (s *Store) GetPlayerKey(name string) (cipher.Key, bool) {
	rec, ok := s.lookup(name)
	if !ok {
		return cipher.Key{}, false
	}
	return rec.key, true
}

func (s *Store) GetPlayerSalt(name string) []byte {
	rec, ok := s.lookup(name)
	if !ok {
		return []byte{}
	}
	return rec.key.Salt()
}

func (s *Store) GetPlayerWithRole(name string, role model.Role) (*model.Player, error) {
	if _, ok := s.lookup(name); !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
	}
	return &model.Player{Name: name, Role: role}, nil
}

func (s *Store) PlayersWithSalt(salt []byte) []string {
	var names []string
	s.players.Range(func(k, v any) bool {
		if rec := v.(*entrySlot).rec.Load(); rec != nil && rec.key.HasSalt(salt) {
			names = append(names, k.(string))
		}
		return true
	})
	slices.Sort(names)
	return names
}

func (s *Store) Players() []model.Player {
	records := s.snapshot()
	players := make([]model.Player, 0, len(records))
	for _, rec := range records {
		players = append(players, *rec.player())
	}
	return players
}

// Capabilities

func (s *Store) SupportsDisabling() bool      { return true }
func (s *Store) SupportsPlayTimes() bool      { return true }
func (s *Store) SupportsAdministration() bool { return true }

// Disabling

func (s *Store) DisablePlayer(name, reason string) error {
	return s.update(name, func(r *record) {
		r.disabledReason = reason
	})
}

func (s *Store) EnablePlayer(name string) error {
	return s.DisablePlayer(name, "")
}

func (s *Store) IsDisabled(name string) (bool, error) {
	reason, err := s.GetDisabledReason(name)
	if err != nil {
		return false, err
	}
	return reason != "", nil
}

func (s *Store) GetDisabledReason(name string) (string, error) {
	rec, ok := s.lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
	}
	return rec.disabledReason, nil
}

// Play times

func (s *Store) GetPlayTimes(name string) ([]model.PlayTime, error) {
	rec, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
	}
	return slices.Clone(rec.playTimes), nil
}

func (s *Store) SetPlayTimes(name string, times []model.PlayTime) error {
	normalized := model.NormalizePlayTimes(times)
	return s.update(name, func(r *record) {
		r.playTimes = normalized
	})
}

// Administration

// AddPlayer creates a player whose key is derived from secret under a fresh salt
func (s *Store) AddPlayer(name string, role model.Role, secret string) error {
	if name == "" {
		return errors.New("player name is required")
	}
	if secret == "" {
		return errors.New("player password is required")
	}
	role, err := model.ParseRole(string(role))
	if err != nil {
		return err
	}
	key, err := cipher.NewKey(secret, s.rnd)
	if err != nil {
		return err
	}

	slot := &entrySlot{}
	slot.rec.Store(&record{name: name, role: role, key: key})
	if _, loaded := s.players.LoadOrStore(name, slot); loaded {
		return fmt.Errorf("%w: %s", model.ErrPlayerExists, name)
	}

	s.logger.Info("player added", slog.String("player", name), slog.String("role", role.String()))
	s.dirty.Store(true)
	return s.flush()
}

func (s *Store) RemovePlayer(name string) error {
	if _, loaded := s.players.LoadAndDelete(name); !loaded {
		return fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
	}

	s.logger.Info("player removed", slog.String("player", name))
	s.dirty.Store(true)
	return s.flush()
}
