package handshake

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tabletop/internal/dependencies/mocks"
	"github.com/mcoot/tabletop/internal/dependencies/random"
	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/cipher"
	"github.com/mcoot/tabletop/internal/services/messages"
	"github.com/mcoot/tabletop/internal/storage"
	"github.com/mcoot/tabletop/internal/storage/memory"
	"github.com/mcoot/tabletop/internal/storage/passwordfile"
	"github.com/mcoot/tabletop/internal/storage/personal"
	"github.com/mcoot/tabletop/internal/testutil"
)

const (
	playerSecret  = "dragons"
	gmSecret      = "dungeon-master"
	serverVersion = "1.14.3"
	testPolicy    = `{"useIndividualViews":true,"movementLocked":false}`
)

type exchange struct {
	session   *Session
	serverErr error
	response  *Response
	clientErr error
}

type ServerSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	registry *memory.Registry
	ctx      context.Context
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	// Monday
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = memory.NewRegistry(s.clock)
	s.ctx = context.Background()
}

func (s *ServerSuite) newServer(db storage.PlayerDatabase, opts ...func(*Config)) *Server {
	cfg := DefaultConfig()
	cfg.PlayerSecret = playerSecret
	cfg.GMSecret = gmSecret
	cfg.Version = serverVersion
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(db, s.registry, s.clock, cfg,
		WithLogger(testutil.NopLogger()),
		WithPolicy(StaticPolicy(json.RawMessage(testPolicy))))
}

func (s *ServerSuite) passwordFile() *passwordfile.Store {
	store, err := passwordfile.Load(filepath.Join(s.T().TempDir(), "passwords.json"), "",
		passwordfile.WithLogger(testutil.NopLogger()))
	s.Require().NoError(err)
	return store
}

// run performs one handshake over an in-memory connection
func (s *ServerSuite) run(srv *Server, req Request) exchange {
	client, server := net.Pipe()
	defer client.Close()

	var result exchange
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer server.Close()
		result.session, result.serverErr = srv.Receive(s.ctx, server)
	}()

	result.response, result.clientErr = Send(s.ctx, client, req)
	<-done
	return result
}

func (s *ServerSuite) request(name, secret string) Request {
	return Request{Name: name, Role: model.RolePlayer, Version: serverVersion, Secret: secret}
}

func (s *ServerSuite) requireAdmitted(ex exchange) *Session {
	s.Require().NoError(ex.serverErr)
	s.Require().NoError(ex.clientErr)
	s.Require().Equal(CodeOK, ex.response.Code, ex.response.Message)
	s.Require().NotNil(ex.session)
	return ex.session
}

func (s *ServerSuite) requireRefused(ex exchange, message string) {
	s.Require().NoError(ex.serverErr)
	s.Require().NoError(ex.clientErr)
	s.Nil(ex.session)
	s.Equal(CodeError, ex.response.Code)
	s.Equal(message, ex.response.Message)
	s.JSONEq(testPolicy, string(ex.response.Policy))
}

func (s *ServerSuite) isActive(name string) bool {
	active, err := s.registry.IsActive(s.ctx, name)
	s.Require().NoError(err)
	return active
}

// Role secrets

func (s *ServerSuite) TestPlayerSecretAdmitsAsPlayer() {
	srv := s.newServer(personal.New())

	session := s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))

	s.Equal(model.Player{Name: "alice", Role: model.RolePlayer}, session.Player)
	s.True(s.isActive("alice"))
}

func (s *ServerSuite) TestGMSecretAdmitsAsGM() {
	srv := s.newServer(personal.New())

	session := s.requireAdmitted(s.run(srv, s.request("gm", gmSecret)))

	s.Equal(model.RoleGM, session.Player.Role)
}

func (s *ServerSuite) TestOKResponseCarriesPolicy() {
	srv := s.newServer(personal.New())

	ex := s.run(srv, s.request("alice", playerSecret))

	s.requireAdmitted(ex)
	s.Empty(ex.response.Message)
	s.JSONEq(testPolicy, string(ex.response.Policy))
}

func (s *ServerSuite) TestDefaultPolicyIsEmptyObject() {
	srv := New(personal.New(), s.registry, s.clock, Config{PlayerSecret: playerSecret})

	ex := s.run(srv, s.request("alice", playerSecret))

	s.requireAdmitted(ex)
	s.JSONEq(`{}`, string(ex.response.Policy))
}

func (s *ServerSuite) TestWrongSecretIsRefused() {
	srv := s.newServer(personal.New())

	s.requireRefused(s.run(srv, s.request("alice", "guess")), "wrong password")
	s.False(s.isActive("alice"))
}

func (s *ServerSuite) TestEmptyRoleSecretIsNotACandidate() {
	srv := s.newServer(personal.New(), func(c *Config) { c.GMSecret = "" })

	s.requireRefused(s.run(srv, s.request("alice", "")), "wrong password")
}

func (s *ServerSuite) TestMalformedPlaintextIsWrongPassword() {
	srv := s.newServer(personal.New())
	sealed, err := cipher.SealWithSecret(playerSecret, []byte("username:alice\n"), random.New())
	s.Require().NoError(err)

	resp, sess, err := s.rawExchange(srv, sealed)

	s.Require().NoError(err)
	s.Nil(sess)
	s.Equal(CodeError, resp.Code)
	s.Equal("wrong password", resp.Message)
}

func (s *ServerSuite) TestEveryFlippedFrameByteIsWrongPassword() {
	srv := s.newServer(personal.New())
	sealed, err := cipher.SealWithSecret(gmSecret, s.request("gm", gmSecret).plaintext(), random.New())
	s.Require().NoError(err)

	for i := range sealed {
		tampered := bytes.Clone(sealed)
		tampered[i] ^= 0x01

		resp, sess, err := s.rawExchange(srv, tampered)
		s.Require().NoError(err, "byte %d", i)
		s.Nil(sess, "byte %d", i)
		s.Equal(CodeError, resp.Code, "byte %d", i)
		s.Equal("wrong password", resp.Message, "byte %d", i)
	}
	s.False(s.isActive("gm"))
}

func (s *ServerSuite) TestPlayerSecretTriedBeforeGMSecret() {
	srv := s.newServer(personal.New(), func(c *Config) { c.GMSecret = playerSecret })

	session := s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))

	s.Equal(model.RolePlayer, session.Player.Role)
}

// Name uniqueness

func (s *ServerSuite) TestDuplicateNameIsRefused() {
	srv := s.newServer(personal.New())
	s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))

	s.requireRefused(s.run(srv, s.request("alice", gmSecret)), "duplicate name: alice is already connected")
	s.True(s.isActive("alice"))
}

func (s *ServerSuite) TestReleasedNameCanReconnect() {
	srv := s.newServer(personal.New())
	session := s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))

	s.Require().NoError(session.Release(s.ctx))
	s.Require().NoError(session.Release(s.ctx))
	s.False(s.isActive("alice"))

	s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))
}

func (s *ServerSuite) TestDuplicateCheckedBeforeVersion() {
	srv := s.newServer(personal.New())
	s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))

	req := s.request("alice", playerSecret)
	req.Version = "0.1"
	s.requireRefused(s.run(srv, req), "duplicate name: alice is already connected")
}

// Versions

func (s *ServerSuite) TestVersionMismatchIsRefusedAndReleased() {
	srv := s.newServer(personal.New())
	req := s.request("alice", playerSecret)
	req.Version = "1.13.0"

	s.requireRefused(s.run(srv, req), "wrong version: client is 1.13.0, server is 1.14.3")
	s.False(s.isActive("alice"))
}

func (s *ServerSuite) TestDevelopmentClientVersionsAreAccepted() {
	for _, version := range []string{"DEVELOPMENT", "@buildVersion@", ""} {
		srv := s.newServer(personal.New())
		req := s.request("alice-"+version, playerSecret)
		req.Version = version

		s.requireAdmitted(s.run(srv, req))
	}
}

func (s *ServerSuite) TestDevelopmentServerVersionAcceptsAnyClient() {
	srv := s.newServer(personal.New(), func(c *Config) { c.Version = "DEVELOPMENT" })
	req := s.request("alice", playerSecret)
	req.Version = "0.0.1"

	s.requireAdmitted(s.run(srv, req))
}

func (s *ServerSuite) TestDevelopmentModeAcceptsAnyClient() {
	srv := s.newServer(personal.New(), func(c *Config) { c.Development = true })
	req := s.request("alice", playerSecret)
	req.Version = "0.0.1"

	s.requireAdmitted(s.run(srv, req))
}

// Personal passwords

func (s *ServerSuite) TestPersonalPasswordAdmitsWithStoredRole() {
	db := s.passwordFile()
	s.Require().NoError(db.AddPlayer("alice", model.RoleGM, "alice-secret"))
	srv := s.newServer(db)

	req := s.request("alice", "alice-secret")
	req.Salt = db.GetPlayerSalt("alice")
	session := s.requireAdmitted(s.run(srv, req))

	s.Equal(model.RoleGM, session.Player.Role)
}

func (s *ServerSuite) TestPersonalKeyCannotClaimAnotherName() {
	db := s.passwordFile()
	s.Require().NoError(db.AddPlayer("alice", model.RolePlayer, "alice-secret"))
	s.Require().NoError(db.AddPlayer("bob", model.RoleGM, "bob-secret"))
	srv := s.newServer(db)

	req := s.request("bob", "alice-secret")
	req.Salt = db.GetPlayerSalt("alice")

	s.requireRefused(s.run(srv, req), "wrong password")
	s.False(s.isActive("bob"))
}

func (s *ServerSuite) TestPersonalPasswordWithoutSaltIsRefused() {
	db := s.passwordFile()
	s.Require().NoError(db.AddPlayer("alice", model.RolePlayer, "alice-secret"))
	srv := s.newServer(db)

	s.requireRefused(s.run(srv, s.request("alice", "alice-secret")), "wrong password")
}

func (s *ServerSuite) TestRoleSecretOverridesStoredRole() {
	db := s.passwordFile()
	s.Require().NoError(db.AddPlayer("alice", model.RolePlayer, "alice-secret"))
	srv := s.newServer(db)

	session := s.requireAdmitted(s.run(srv, s.request("alice", gmSecret)))

	s.Equal(model.RoleGM, session.Player.Role)
}

func (s *ServerSuite) TestRoleSecretRequiresRegisteredName() {
	db := s.passwordFile()
	srv := s.newServer(db)

	s.requireRefused(s.run(srv, s.request("mallory", playerSecret)), "wrong password")
}

// Disabling and play times

func (s *ServerSuite) TestDisabledPlayerIsRefused() {
	db := s.passwordFile()
	s.Require().NoError(db.AddPlayer("alice", model.RolePlayer, "alice-secret"))
	s.Require().NoError(db.DisablePlayer("alice", "spamming chat"))
	srv := s.newServer(db)

	s.requireRefused(s.run(srv, s.request("alice", playerSecret)), "player disabled: spamming chat")
	s.False(s.isActive("alice"))
}

func (s *ServerSuite) TestReenabledPlayerIsAdmitted() {
	db := s.passwordFile()
	s.Require().NoError(db.AddPlayer("alice", model.RolePlayer, "alice-secret"))
	s.Require().NoError(db.DisablePlayer("alice", "spamming chat"))
	s.Require().NoError(db.EnablePlayer("alice"))
	srv := s.newServer(db)

	s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))
}

func (s *ServerSuite) TestOutsidePlayTimeIsRefused() {
	db := s.passwordFile()
	s.Require().NoError(db.AddPlayer("alice", model.RolePlayer, "alice-secret"))
	window, err := model.NewPlayTime(time.Monday, model.NewClockTime(18, 0, 0), model.NewClockTime(22, 0, 0))
	s.Require().NoError(err)
	s.Require().NoError(db.SetPlayTimes("alice", []model.PlayTime{window}))
	srv := s.newServer(db)

	s.requireRefused(s.run(srv, s.request("alice", playerSecret)), "outside permitted play time")

	s.clock.Set(time.Date(2024, 1, 1, 19, 30, 0, 0, time.UTC))
	s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))
}

func (s *ServerSuite) TestCapabilityLessStoreSkipsChecks() {
	srv := s.newServer(personal.New())

	s.requireAdmitted(s.run(srv, s.request("anyone", playerSecret)))
}

// Localization

func (s *ServerSuite) TestMessagesUseConfiguredLanguage() {
	catalog, err := messages.New("de")
	s.Require().NoError(err)
	srv := New(personal.New(), s.registry, s.clock, Config{PlayerSecret: playerSecret},
		WithMessages(catalog), WithPolicy(StaticPolicy(json.RawMessage(testPolicy))))

	s.requireRefused(s.run(srv, s.request("alice", "guess")), "falsches Passwort")
}

// Transport

func (s *ServerSuite) TestTruncatedFrameIsTransportError() {
	srv := s.newServer(personal.New())
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte{0, 0, 0, 100, 1, 2, 3})
		_ = client.Close()
	}()

	session, err := srv.Receive(s.ctx, server)

	s.Nil(session)
	var terr *TransportError
	s.ErrorAs(err, &terr)
}

func (s *ServerSuite) TestOversizeFrameIsTransportError() {
	srv := s.newServer(personal.New())
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)
	conn := &scriptedConn{in: bytes.NewReader(header)}

	session, err := srv.Receive(s.ctx, conn)

	s.Nil(session)
	s.ErrorIs(err, ErrFrameTooLarge)
	s.Zero(conn.out.Len())
}

func (s *ServerSuite) TestFailedResponseWriteReleasesName() {
	srv := s.newServer(personal.New())
	sealed, err := cipher.SealWithSecret(playerSecret, s.request("alice", playerSecret).plaintext(), random.New())
	s.Require().NoError(err)
	var frame bytes.Buffer
	s.Require().NoError(WriteFrame(&frame, sealed))
	conn := &scriptedConn{in: &frame, writeErr: errors.New("connection reset")}

	session, err := srv.Receive(s.ctx, conn)

	s.Nil(session)
	var terr *TransportError
	s.ErrorAs(err, &terr)
	s.False(s.isActive("alice"))
}

func (s *ServerSuite) TestPendingReservationExpires() {
	token, err := s.registry.Reserve(s.ctx, "alice", DefaultConfig().ReservationTTL)
	s.Require().NoError(err)
	s.NotEmpty(token)
	srv := s.newServer(personal.New())

	s.requireRefused(s.run(srv, s.request("alice", playerSecret)), "duplicate name: alice is already connected")

	s.clock.Advance(DefaultConfig().ReservationTTL + time.Second)
	s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))
}

func (s *ServerSuite) TestSendRejectsInvalidName() {
	_, err := Send(s.ctx, &scriptedConn{in: bytes.NewReader(nil)}, Request{Name: "a\nb", Secret: playerSecret})

	s.ErrorIs(err, ErrInvalidName)
}

// rawExchange sends an already sealed payload and reads the response
func (s *ServerSuite) rawExchange(srv *Server, sealed []byte) (*Response, *Session, error) {
	var frame bytes.Buffer
	s.Require().NoError(WriteFrame(&frame, sealed))
	conn := &scriptedConn{in: &frame}

	session, err := srv.Receive(s.ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	payload, err := ReadFrame(&conn.out)
	s.Require().NoError(err)
	resp, err := decodeResponse(payload)
	return resp, session, err
}

// scriptedConn replays in and records or fails writes
type scriptedConn struct {
	in       io.Reader
	out      bytes.Buffer
	writeErr error
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	return c.in.Read(p)
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.out.Write(p)
}

// Logging

func (s *ServerSuite) TestFailedLoginLogsRedactedCauses() {
	logger, logs := testutil.CaptureLogger()
	cfg := DefaultConfig()
	cfg.PlayerSecret = playerSecret
	cfg.GMSecret = gmSecret
	cfg.Version = serverVersion
	srv := New(personal.New(), s.registry, s.clock, cfg, WithLogger(logger))

	ex := s.run(srv, s.request("mallory", "guessed-secret"))
	s.Require().NoError(ex.serverErr)
	s.Require().Equal(CodeError, ex.response.Code)

	out := logs.String()
	s.Contains(out, "failed login")
	s.Contains(out, "PLAYER: decrypt failed")
	s.Contains(out, "GM: decrypt failed")
	s.NotContains(out, "guessed-secret")
	s.NotContains(out, playerSecret)
	s.NotContains(out, "mallory")
}

func (s *ServerSuite) TestAdmissionLogsIdentityWithoutSecret() {
	logger, logs := testutil.CaptureLogger()
	cfg := DefaultConfig()
	cfg.PlayerSecret = playerSecret
	cfg.Version = serverVersion
	srv := New(personal.New(), s.registry, s.clock, cfg, WithLogger(logger))

	s.requireAdmitted(s.run(srv, s.request("alice", playerSecret)))

	out := logs.String()
	s.Contains(out, "connection admitted")
	s.Contains(out, `"player":"alice"`)
	s.NotContains(out, playerSecret)
}
