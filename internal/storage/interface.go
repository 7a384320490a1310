package storage

import (
	"context"
	"time"

	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/cipher"
)

// PlayerDatabase is the credential store consulted during the handshake.
//
// Implementations differ in what they support; callers must check the
// Supports* flags rather than the concrete type. Unsupported mutations are
// no-ops except for the administrative ones, which return model.ErrUnsupported.
type PlayerDatabase interface {
	// Lookups
	PlayerExists(name string) bool
	GetPlayer(name string) (*model.Player, error)
	GetPlayerKey(name string) (cipher.Key, bool)
	GetPlayerSalt(name string) []byte
	// GetPlayerWithRole resolves name using role instead of any stored role.
	// The caller decides whether the override is legitimate.
	GetPlayerWithRole(name string, role model.Role) (*model.Player, error)
	// PlayersWithSalt lists players whose key was derived with salt
	PlayersWithSalt(salt []byte) []string
	Players() []model.Player

	// Capabilities
	SupportsDisabling() bool
	SupportsPlayTimes() bool
	SupportsAdministration() bool

	// Disabling
	DisablePlayer(name, reason string) error
	EnablePlayer(name string) error
	IsDisabled(name string) (bool, error)
	GetDisabledReason(name string) (string, error)

	// Play times
	GetPlayTimes(name string) ([]model.PlayTime, error)
	SetPlayTimes(name string, times []model.PlayTime) error

	// Administration
	AddPlayer(name string, role model.Role, secret string) error
	RemovePlayer(name string) error
}

// SessionRegistry tracks which names currently hold a session.
//
// A handshake reserves the name before validating the rest of the request,
// then confirms the reservation on success or releases it on failure. A
// pending reservation expires after its ttl; a confirmed one lasts until
// released.
type SessionRegistry interface {
	// Reserve atomically claims name, returning a token identifying the claim.
	// It fails with model.ErrNameInUse if name is already claimed.
	Reserve(ctx context.Context, name string, ttl time.Duration) (string, error)
	// Confirm makes a pending reservation permanent
	Confirm(ctx context.Context, name, token string) error
	// Release frees name if token still owns it
	Release(ctx context.Context, name, token string) error
	IsActive(ctx context.Context, name string) (bool, error)
	// Active lists claimed names, sorted
	Active(ctx context.Context) ([]string, error)
}
