package handshake

import (
	"errors"
	"strings"

	"github.com/mcoot/tabletop/internal/model"
)

const (
	usernameField = "username:"
	versionField  = "version:"
)

var ErrInvalidName = errors.New("invalid player name")

// Request is what a client sends to join. Secret is only used to seal the
// request and never leaves the client.
type Request struct {
	Name string
	// Role is the role the client expects; the server infers the actual role
	// from the secret that opens the request.
	Role    model.Role
	Version string
	Secret  string
	// Salt selects the salt the key is derived under. Players with a personal
	// password must use the salt they were registered with; when empty a
	// fresh salt is generated.
	Salt []byte
}

func (r Request) validate() error {
	if r.Name == "" || strings.ContainsAny(r.Name, "\r\n") {
		return ErrInvalidName
	}
	if strings.ContainsAny(r.Version, "\r\n") {
		return errors.New("invalid version")
	}
	return nil
}

func (r Request) plaintext() []byte {
	var sb strings.Builder
	sb.WriteString(usernameField)
	sb.WriteString(r.Name)
	sb.WriteString("\n")
	sb.WriteString(versionField)
	sb.WriteString(r.Version)
	sb.WriteString("\n")
	return []byte(sb.String())
}

// claim is a decrypted request
type claim struct {
	name    string
	version string
}

// parseClaim extracts the name and version lines. Both must be present and
// the name must not be empty.
func parseClaim(b []byte) (claim, bool) {
	var (
		c                   claim
		hasName, hasVersion bool
	)
	for _, line := range strings.Split(string(b), "\n") {
		switch {
		case strings.HasPrefix(line, usernameField):
			c.name = strings.TrimPrefix(line, usernameField)
			hasName = true
		case strings.HasPrefix(line, versionField):
			c.version = strings.TrimPrefix(line, versionField)
			hasVersion = true
		}
	}
	if !hasName || !hasVersion || c.name == "" {
		return claim{}, false
	}
	return c, true
}
