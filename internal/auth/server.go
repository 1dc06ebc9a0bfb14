package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ironrift/server/internal/config"
	"github.com/ironrift/server/internal/db"
	"github.com/ironrift/server/internal/metrics"
	"github.com/ironrift/server/internal/protocol"
	"github.com/ironrift/server/internal/udp"
)

// ServerOption is a functional option for Server configuration.
type ServerOption func(*Server)

// WithAccountRepository sets a custom account store (useful for testing).
func WithAccountRepository(r AccountRepository) ServerOption {
	return func(s *Server) {
		s.accounts = r
	}
}

// WithSessionRepository sets a custom session store (useful for testing).
func WithSessionRepository(r SessionRepository) ServerOption {
	return func(s *Server) {
		s.sessions = r
	}
}

// WithLoginFailureRepository sets a custom failure store (useful for testing).
func WithLoginFailureRepository(r LoginFailureRepository) ServerOption {
	return func(s *Server) {
		s.failures = r
	}
}

// Server is the auth service listening for UDP datagrams on port 27015.
type Server struct {
	cfg      config.AuthServer
	accounts AccountRepository
	sessions SessionRepository
	failures LoginFailureRepository
	handler  *Handler

	ep *udp.Endpoint
	mu sync.Mutex
}

// NewServer creates an auth service. Repositories default to the Postgres
// implementations over database unless overridden by options.
func NewServer(cfg config.AuthServer, database *db.DB, opts ...ServerOption) *Server {
	s := &Server{cfg: cfg}

	// Применяем опции
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.accounts == nil {
		s.accounts = db.NewPostgresAccountRepository(database.Pool())
	}
	if s.sessions == nil {
		s.sessions = db.NewPostgresSessionRepository(database.Pool())
	}
	if s.failures == nil {
		s.failures = db.NewPostgresLoginFailureRepository(database.Pool())
	}
	s.handler = NewHandler(s.accounts, s.sessions, s.failures, cfg)

	return s
}

// Addr возвращает адрес, на котором слушает сервер.
// Возвращает nil если сервер ещё не запущен.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ep == nil {
		return nil
	}
	return s.ep.LocalAddr()
}

// Close закрывает endpoint и останавливает сервер.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ep != nil {
		return s.ep.Close()
	}
	return nil
}

// Run binds cfg.BindAddress:cfg.Port and starts the service loop.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ep, err := udp.Listen(addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ep)
}

// Serve принимает готовый endpoint и запускает service loop.
// Используется для тестирования с произвольным портом.
func (s *Server) Serve(ctx context.Context, ep *udp.Endpoint) error {
	s.mu.Lock()
	s.ep = ep
	s.mu.Unlock()

	slog.Info("auth service started", "address", ep.LocalAddr())

	sweep := time.NewTicker(time.Duration(s.cfg.CleanupInterval) * time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case d, ok := <-ep.Packets():
			if !ok {
				return nil
			}
			s.handleDatagram(ctx, ep, d)
			ep.Release(d)
		case <-sweep.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Server) handleDatagram(ctx context.Context, ep *udp.Endpoint, d udp.Datagram) {
	hdr, payload, err := protocol.ParseAuth(d.Data)
	if err != nil {
		slog.Debug("dropping malformed datagram", "from", d.Addr, "error", err)
		return
	}

	resp := s.handler.Handle(ctx, hdr, payload, d.Addr)
	if resp == nil {
		return
	}
	if err := ep.Send(d.Addr, resp); err != nil {
		slog.Warn("failed to send response", "to", d.Addr, "error", err)
	}
}

// runSweep clears expired sessions and login failures outside the rate
// limit window.
func (s *Server) runSweep(ctx context.Context) {
	now := time.Now()

	n, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		slog.Error("session sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("expired sessions swept", "count", n)
		metrics.SessionsSwept.Add(float64(n))
	}

	cutoff := now.Add(-time.Duration(s.cfg.LoginBlockAfterBan) * time.Second)
	if _, err := s.failures.DeleteOlder(ctx, cutoff); err != nil {
		slog.Error("login failure sweep failed", "error", err)
	}

	s.mu.Lock()
	ep := s.ep
	s.mu.Unlock()
	if ep != nil {
		metrics.DatagramsDropped.WithLabelValues("auth").Set(float64(ep.Dropped()))
	}
}
