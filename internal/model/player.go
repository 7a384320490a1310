package model

import (
	"fmt"
	"strings"
)

// Role is the permission level a player connects with
type Role string

const (
	RolePlayer Role = "PLAYER"
	RoleGM     Role = "GM"
)

// Roles lists every role in handshake evaluation order
var Roles = []Role{RolePlayer, RoleGM}

// ParseRole parses a role name, ignoring case
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RolePlayer:
		return RolePlayer, nil
	case RoleGM:
		return RoleGM, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) String() string {
	return string(r)
}

// Player is an authenticated identity: who connected and with which role.
// It is what the handshake hands to the rest of the application.
type Player struct {
	Name string
	Role Role
}

// IsGM reports whether the player holds the GM role
func (p Player) IsGM() bool {
	return p.Role == RoleGM
}
