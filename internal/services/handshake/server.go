// Package handshake admits clients to a running table.
//
// A client seals "username:<name>\nversion:<version>\n" under the secret of
// the role it wants to play and sends it as a length-prefixed frame. The
// server tries its candidate keys in order (personal keys first, then the
// PLAYER and GM secrets), validates the first request that opens and parses,
// and answers with a JSON response carrying the outcome and the server
// policy.
package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mcoot/tabletop/internal/dependencies/clock"
	"github.com/mcoot/tabletop/internal/metrics"
	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/cipher"
	"github.com/mcoot/tabletop/internal/services/messages"
	"github.com/mcoot/tabletop/internal/storage"
)

// Versions that are compatible with every other version
var developmentVersions = map[string]bool{
	"":               true,
	"DEVELOPMENT":    true,
	"@buildVersion@": true,
	"@buildNumber@":  true,
}

var errNameMismatch = errors.New("decrypted name does not match key owner")

// Config holds the server side handshake settings
type Config struct {
	// PlayerSecret and GMSecret are the role secrets. An empty secret
	// disables that role's candidate.
	PlayerSecret string
	GMSecret     string
	Version      string
	// Development accepts any client version
	Development bool
	// ReservationTTL bounds how long a name stays reserved by a handshake
	// that never completes
	ReservationTTL time.Duration
}

// DefaultConfig returns default handshake configuration
func DefaultConfig() Config {
	return Config{
		Version:        "DEVELOPMENT",
		ReservationTTL: 30 * time.Second,
	}
}

// PolicyFunc returns the current policy snapshot
type PolicyFunc func() json.RawMessage

// StaticPolicy returns a PolicyFunc that always yields policy
func StaticPolicy(policy json.RawMessage) PolicyFunc {
	return func() json.RawMessage { return policy }
}

// Server runs the server side of the handshake
type Server struct {
	db       storage.PlayerDatabase
	registry storage.SessionRegistry
	clock    clock.Clock
	cfg      Config

	messages *messages.Catalog
	metrics  *metrics.Metrics
	policy   PolicyFunc
	logger   *slog.Logger
}

// Option configures a Server
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithMessages(c *messages.Catalog) Option {
	return func(s *Server) { s.messages = c }
}

func WithPolicy(p PolicyFunc) Option {
	return func(s *Server) { s.policy = p }
}

// New creates a handshake Server
func New(db storage.PlayerDatabase, registry storage.SessionRegistry, clk clock.Clock, cfg Config, opts ...Option) *Server {
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = DefaultConfig().ReservationTTL
	}
	s := &Server{
		db:       db,
		registry: registry,
		clock:    clk,
		cfg:      cfg,
		messages: messages.Default(),
		policy:   StaticPolicy(json.RawMessage(`{}`)),
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session is an admitted connection. It holds the name until released.
type Session struct {
	Player      model.Player
	ConnectedAt time.Time

	token    string
	registry storage.SessionRegistry
	once     sync.Once
	err      error
}

// Token identifies the name reservation held by the session
func (s *Session) Token() string {
	return s.token
}

// Release frees the session's name. Only the first call has an effect.
func (s *Session) Release(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.registry.Release(ctx, s.Player.Name, s.token)
	})
	return s.err
}

// refusal is a validation failure reported to the client
type refusal struct {
	result  string
	message string
}

// Receive runs the handshake on conn. It returns the admitted session, or
// nil if the client was refused. Errors mean no outcome could be delivered;
// transport failures are reported as *TransportError.
func (s *Server) Receive(ctx context.Context, conn io.ReadWriter) (*Session, error) {
	start := time.Now()
	logger := s.logger
	if rc, ok := conn.(interface{ RemoteAddr() net.Addr }); ok {
		logger = logger.With(slog.String("remote", rc.RemoteAddr().String()))
	}

	frame, err := ReadFrame(conn)
	if err != nil {
		s.metrics.ObserveHandshake(metrics.ResultTransport, time.Since(start))
		logger.Info("handshake aborted", slog.String("error", err.Error()))
		return nil, err
	}

	player, version, ok := s.authenticate(frame, logger)
	if !ok {
		resp := s.refuse(refusal{
			result:  metrics.ResultWrongPassword,
			message: s.messages.Text(messages.WrongPassword),
		})
		return nil, s.respond(conn, resp, metrics.ResultWrongPassword, start, logger)
	}
	logger = logger.With(slog.String("player", player.Name), slog.String("role", player.Role.String()))

	token, err := s.registry.Reserve(ctx, player.Name, s.cfg.ReservationTTL)
	if errors.Is(err, model.ErrNameInUse) {
		resp := s.refuse(refusal{
			result:  metrics.ResultDuplicateName,
			message: s.messages.Text(messages.DuplicateName, player.Name),
		})
		return nil, s.respond(conn, resp, metrics.ResultDuplicateName, start, logger)
	}
	if err != nil {
		s.metrics.ObserveHandshake(metrics.ResultInternal, time.Since(start))
		logger.Error("reserve name failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("reserve name: %w", err)
	}

	if r := s.validate(player, version); r != nil {
		s.release(player.Name, token, logger)
		return nil, s.respond(conn, s.refuse(*r), r.result, start, logger)
	}

	if err := s.registry.Confirm(ctx, player.Name, token); err != nil {
		s.release(player.Name, token, logger)
		s.metrics.ObserveHandshake(metrics.ResultInternal, time.Since(start))
		logger.Error("confirm name failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("confirm name: %w", err)
	}

	resp := Response{Code: CodeOK, Policy: s.policy()}
	if err := s.respond(conn, resp, metrics.ResultOK, start, logger); err != nil {
		s.release(player.Name, token, logger)
		return nil, err
	}

	return &Session{
		Player:      *player,
		ConnectedAt: s.clock.Now(),
		token:       token,
		registry:    s.registry,
	}, nil
}

func (s *Server) refuse(r refusal) Response {
	return Response{Code: CodeError, Message: r.message, Policy: s.policy()}
}

// respond writes resp and records the handshake outcome
func (s *Server) respond(w io.Writer, resp Response, result string, start time.Time, logger *slog.Logger) error {
	payload, err := encodeResponse(resp)
	if err != nil {
		s.metrics.ObserveHandshake(metrics.ResultInternal, time.Since(start))
		return err
	}
	if err := WriteFrame(w, payload); err != nil {
		s.metrics.ObserveHandshake(metrics.ResultTransport, time.Since(start))
		logger.Info("handshake response not delivered", slog.String("error", err.Error()))
		return err
	}

	s.metrics.ObserveHandshake(result, time.Since(start))
	if resp.Code == CodeOK {
		logger.Info("connection admitted")
	} else {
		logger.Info("connection refused", slog.String("result", result))
	}
	return nil
}

// release frees a reservation on behalf of a failed handshake. It must not
// depend on the request context, which may already be cancelled.
func (s *Server) release(name, token string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.registry.Release(ctx, name, token); err != nil {
		logger.Warn("release name failed", slog.String("error", err.Error()))
	}
}

// validate checks an authenticated request. A nil result means admit.
func (s *Server) validate(player *model.Player, version string) *refusal {
	if !s.versionAccepted(version) {
		return &refusal{
			result:  metrics.ResultWrongVersion,
			message: s.messages.Text(messages.WrongVersion, version, s.cfg.Version),
		}
	}

	if s.db.SupportsDisabling() {
		if reason, err := s.db.GetDisabledReason(player.Name); err == nil && reason != "" {
			return &refusal{
				result:  metrics.ResultDisabled,
				message: s.messages.Text(messages.PlayerDisabled, reason),
			}
		}
	}

	if s.db.SupportsPlayTimes() {
		if times, err := s.db.GetPlayTimes(player.Name); err == nil && !model.AllowedAt(times, s.clock.Now()) {
			return &refusal{
				result:  metrics.ResultNotPlayTime,
				message: s.messages.Text(messages.NotPlayTime),
			}
		}
	}

	return nil
}

func (s *Server) versionAccepted(client string) bool {
	if s.cfg.Development || developmentVersions[client] || developmentVersions[s.cfg.Version] {
		return true
	}
	return client == s.cfg.Version
}

// candidate is one way of opening a request
type candidate struct {
	source  string
	key     func() cipher.Key
	resolve func(name string) (*model.Player, error)
}

// candidates lists the keys to try for a frame sealed under salt, in order
func (s *Server) candidates(salt []byte) []candidate {
	var out []candidate

	for _, owner := range s.db.PlayersWithSalt(salt) {
		owner := owner
		key, ok := s.db.GetPlayerKey(owner)
		if !ok {
			continue
		}
		out = append(out, candidate{
			source: "personal",
			key:    func() cipher.Key { return key },
			resolve: func(name string) (*model.Player, error) {
				if name != owner {
					return nil, errNameMismatch
				}
				return s.db.GetPlayer(owner)
			},
		})
	}

	for _, role := range model.Roles {
		role := role
		secret := s.roleSecret(role)
		if secret == "" {
			continue
		}
		out = append(out, candidate{
			source: role.String(),
			key:    func() cipher.Key { return cipher.DeriveKey(secret, salt) },
			resolve: func(name string) (*model.Player, error) {
				return s.db.GetPlayerWithRole(name, role)
			},
		})
	}

	return out
}

func (s *Server) roleSecret(role model.Role) string {
	switch role {
	case model.RolePlayer:
		return s.cfg.PlayerSecret
	case model.RoleGM:
		return s.cfg.GMSecret
	default:
		return ""
	}
}

// authenticate evaluates candidates until one opens and parses the frame.
// Failure causes are logged without the plaintext or any key material.
func (s *Server) authenticate(frame []byte, logger *slog.Logger) (*model.Player, string, bool) {
	salt, err := cipher.SaltOf(frame)
	if err != nil {
		logger.Warn("failed login", slog.String("cause", "malformed frame"))
		return nil, "", false
	}

	var causes []string
	for _, c := range s.candidates(salt) {
		plaintext, err := c.key().Open(frame)
		if err != nil {
			causes = append(causes, c.source+": decrypt failed")
			continue
		}
		cl, ok := parseClaim(plaintext)
		if !ok {
			causes = append(causes, c.source+": malformed request")
			continue
		}
		player, err := c.resolve(cl.name)
		if err != nil {
			causes = append(causes, c.source+": identity not resolved")
			continue
		}
		return player, cl.version, true
	}

	if len(causes) == 0 {
		causes = append(causes, "no candidate keys")
	}
	logger.Warn("failed login", slog.Any("causes", causes))
	return nil, "", false
}
