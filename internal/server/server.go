// Package server accepts table connections, runs the handshake on each and
// hands admitted sessions to a Handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/tabletop/internal/metrics"
	"github.com/mcoot/tabletop/internal/services/handshake"
)

// Config holds configuration for the connection listener
type Config struct {
	Addr             string
	HandshakeTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the listener
func DefaultConfig() Config {
	return Config{
		Addr:             ":51234",
		HandshakeTimeout: 10 * time.Second,
	}
}

// Handler serves an admitted connection. The session's name is released
// when ServeSession returns.
type Handler interface {
	ServeSession(ctx context.Context, conn net.Conn, session *handshake.Session)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, conn net.Conn, session *handshake.Session)

func (f HandlerFunc) ServeSession(ctx context.Context, conn net.Conn, session *handshake.Session) {
	f(ctx, conn, session)
}

// Idle keeps a session open, discarding anything the client sends, until the
// client disconnects or the server shuts down
var Idle = HandlerFunc(func(_ context.Context, conn net.Conn, _ *handshake.Session) {
	_, _ = io.Copy(io.Discard, conn)
})

// Server runs the accept loop
type Server struct {
	cfg       Config
	handshake *handshake.Server
	handler   Handler
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

// New creates a connection Server
func New(hs *handshake.Server, handler Handler, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Server {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if handler == nil {
		handler = Idle
	}
	return &Server{
		cfg:       cfg,
		handshake: hs,
		handler:   handler,
		metrics:   m,
		logger:    logger,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener and every open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	s.logger.Info("accepting connections", slog.String("addr", ln.Addr().String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		_ = ln.Close()
		s.closeConns()
		return nil
	})

	g.Go(func() error {
		defer cancel()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			s.track(conn)
			g.Go(func() error {
				defer s.untrack(conn)
				s.handle(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	s.logger.Info("connection listener stopped")
	return err
}

// ListenAndServe binds the configured address and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if ctx.Err() != nil {
		return
	}

	logger := s.logger.With(
		slog.String("conn", uuid.NewString()),
		slog.String("remote", conn.RemoteAddr().String()))

	if err := conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		logger.Warn("set handshake deadline", slog.String("error", err.Error()))
		return
	}

	session, err := s.handshake.Receive(ctx, conn)
	if err != nil {
		logger.Info("handshake failed", slog.String("error", err.Error()))
		return
	}
	if session == nil {
		return
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.Release(releaseCtx); err != nil {
			logger.Warn("release session", slog.String("error", err.Error()))
		}
	}()

	if err := conn.SetDeadline(time.Time{}); err != nil {
		logger.Warn("clear handshake deadline", slog.String("error", err.Error()))
		return
	}

	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	logger = logger.With(
		slog.String("player", session.Player.Name),
		slog.String("role", session.Player.Role.String()),
		slog.String("reservation", session.Token()))
	logger.Info("session started")
	s.handler.ServeSession(ctx, conn, session)
	logger.Info("session ended")
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
