// Package personal implements the player database for servers that rely on
// one shared secret per role. It keeps no per-player records, so any name
// authenticated by a role secret resolves to that role.
package personal

import (
	"fmt"

	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/cipher"
	"github.com/mcoot/tabletop/internal/storage"
)

// Store is a player database without per-player state
type Store struct{}

// New creates a new personal Store
func New() *Store {
	return &Store{}
}

// Ensure Store implements the interface
var _ storage.PlayerDatabase = (*Store)(nil)

func (s *Store) PlayerExists(string) bool { return false }

func (s *Store) GetPlayer(name string) (*model.Player, error) {
	return nil, fmt.Errorf("%w: %s", model.ErrPlayerNotFound, name)
}

func (s *Store) GetPlayerKey(string) (cipher.Key, bool) { return cipher.Key{}, false }
func (s *Store) GetPlayerSalt(string) []byte            { return []byte{} }
func (s *Store) PlayersWithSalt([]byte) []string        { return nil }
func (s *Store) Players() []model.Player                { return nil }

// GetPlayerWithRole resolves any non-empty name with the given role
func (s *Store) GetPlayerWithRole(name string, role model.Role) (*model.Player, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", model.ErrPlayerNotFound)
	}
	return &model.Player{Name: name, Role: role}, nil
}

func (s *Store) SupportsDisabling() bool      { return false }
func (s *Store) SupportsPlayTimes() bool      { return false }
func (s *Store) SupportsAdministration() bool { return false }

// Disabling and play times are not tracked; these calls do nothing

func (s *Store) DisablePlayer(string, string) error            { return nil }
func (s *Store) EnablePlayer(string) error                     { return nil }
func (s *Store) IsDisabled(string) (bool, error)               { return false, nil }
func (s *Store) GetDisabledReason(string) (string, error)      { return "", nil }
func (s *Store) GetPlayTimes(string) ([]model.PlayTime, error) { return nil, nil }
func (s *Store) SetPlayTimes(string, []model.PlayTime) error   { return nil }

func (s *Store) AddPlayer(string, model.Role, string) error {
	return model.ErrUnsupported
}

func (s *Store) RemovePlayer(string) error {
	return model.ErrUnsupported
}
