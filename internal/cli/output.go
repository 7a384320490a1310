package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Player:
		o.printPlayer(v)
	case CreatedPlayer:
		o.printPlayer(v.Player)
		fmt.Fprintf(o.w, "Salt: %s\n", v.Salt)
	case PlayerList:
		o.printPlayerList(v)
	case PlayTimes:
		o.printPlayTimes(v)
	case SessionList:
		o.printSessionList(v)
	case ConnectResult:
		o.printConnectResult(v)
	case HealthResult:
		o.printHealthResult(v)
	case Identity:
		fmt.Fprintf(o.w, "Subject: %s\n", v.Subject)
		fmt.Fprintf(o.w, "Expires: %s\n", v.ExpiresAt.Format(time.RFC3339))
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Player response type (matches API)
type Player struct {
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Disabled       bool       `json:"disabled"`
	DisabledReason string     `json:"disabled_reason,omitempty"`
	PlayTimes      []PlayTime `json:"play_times,omitempty"`
}

// CreatedPlayer is a newly added player and the salt of its personal key
type CreatedPlayer struct {
	Player
	Salt string `json:"salt"`
}

// PlayerList response type
type PlayerList struct {
	Players []Player `json:"players"`
}

// PlayTime is one weekly window; Day is ISO (1 = Monday)
type PlayTime struct {
	Day   int    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// PlayTimes is a player's full set of windows
type PlayTimes []PlayTime

// SessionList response type
type SessionList struct {
	Active []string `json:"active"`
}

// ConnectResult is the outcome of a join handshake
type ConnectResult struct {
	Admitted bool            `json:"admitted"`
	Code     string          `json:"code"`
	Message  string          `json:"message,omitempty"`
	Policy   json.RawMessage `json:"policy,omitempty"`
}

// HealthResult response type
type HealthResult struct {
	Status   string `json:"status"`
	Registry string `json:"registry"`
}

// Identity is the admin token in use
type Identity struct {
	Subject   string    `json:"subject"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

var weekdays = []string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func dayName(day int) string {
	if day < 1 || day >= len(weekdays) {
		return fmt.Sprintf("day %d", day)
	}
	return weekdays[day]
}

func (o *Output) printPlayer(p Player) {
	fmt.Fprintf(o.w, "Player: %s\n", p.Name)
	fmt.Fprintf(o.w, "Role: %s\n", p.Role)
	if p.Disabled {
		fmt.Fprintf(o.w, "Disabled: %s\n", p.DisabledReason)
	}
	if len(p.PlayTimes) > 0 {
		fmt.Fprintln(o.w, "Play times:")
		for _, pt := range p.PlayTimes {
			fmt.Fprintf(o.w, "  %s %s-%s\n", dayName(pt.Day), pt.Start, pt.End)
		}
	}
}

func (o *Output) printPlayerList(l PlayerList) {
	if len(l.Players) == 0 {
		fmt.Fprintln(o.w, "No players")
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROLE\tSTATUS")
	for _, p := range l.Players {
		status := "enabled"
		if p.Disabled {
			status = "disabled: " + p.DisabledReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Role, status)
	}
	_ = tw.Flush()
}

func (o *Output) printPlayTimes(times PlayTimes) {
	if len(times) == 0 {
		fmt.Fprintln(o.w, "No play time restrictions")
		return
	}
	for _, pt := range times {
		fmt.Fprintf(o.w, "%s %s-%s\n", dayName(pt.Day), pt.Start, pt.End)
	}
}

func (o *Output) printSessionList(s SessionList) {
	fmt.Fprintf(o.w, "Connected (%d):\n", len(s.Active))
	for _, name := range s.Active {
		fmt.Fprintf(o.w, "  - %s\n", name)
	}
}

func (o *Output) printConnectResult(r ConnectResult) {
	if r.Admitted {
		fmt.Fprintln(o.w, "Admitted")
	} else {
		fmt.Fprintf(o.w, "Refused: %s\n", r.Message)
	}
	if len(r.Policy) > 0 && strings.TrimSpace(string(r.Policy)) != "{}" {
		fmt.Fprintf(o.w, "Policy: %s\n", r.Policy)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Registry: %s\n", h.Registry)
}
