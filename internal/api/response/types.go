package response

import (
	"time"

	"github.com/mcoot/tabletop/internal/model"
)

// Player represents a player in API responses
type Player struct {
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Disabled       bool       `json:"disabled"`
	DisabledReason string     `json:"disabled_reason,omitempty"`
	PlayTimes      []PlayTime `json:"play_times,omitempty"`
}

// PlayerFromModel converts a model.Player to a response Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		Name: p.Name,
		Role: p.Role.String(),
	}
}

// CreatedPlayer is returned when a player is added. Salt is the base64 salt
// the client must derive its key under to use the personal password.
type CreatedPlayer struct {
	Player
	Salt string `json:"salt"`
}

// PlayTime is one weekly window in API responses
type PlayTime struct {
	Day   int    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// PlayTimesFromModel converts play times, never returning nil
func PlayTimesFromModel(times []model.PlayTime) []PlayTime {
	out := make([]PlayTime, 0, len(times))
	for _, pt := range times {
		out = append(out, PlayTime{
			Day:   pt.ISODay(),
			Start: pt.Start.String(),
			End:   pt.End.String(),
		})
	}
	return out
}

// PlayerList is the response for listing players
type PlayerList struct {
	Players []Player `json:"players"`
}

// SessionList is the response for listing connected players
type SessionList struct {
	Active []string `json:"active"`
}

// Health is the response for the health check
type Health struct {
	Status   string `json:"status"`
	Registry string `json:"registry"`
}

// Identity describes the caller's admin token
type Identity struct {
	Subject   string    `json:"subject"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
