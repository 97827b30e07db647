// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// RelayServer composes the room registry, the session manager and the
// HTTP surface into one process.
type RelayServer struct {
	cfg        Config
	logger     *slog.Logger
	registry   *relay.Registry
	manager    *SessionManager
	metrics    *Metrics
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewRelayServer builds a relay from cfg. A nil cfg uses defaults.
func NewRelayServer(cfg *Config, logger *slog.Logger) (*RelayServer, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	sanitized := sanitizeConfig(*cfg)

	codes, err := relay.NewGenerator(sanitized.RoomCodeLength)
	if err != nil {
		return nil, fmt.Errorf("room codes: %w", err)
	}

	registry := relay.NewRegistry(codes, logger.With("component", "registry"))
	metrics := NewMetrics()
	origins := newOriginPolicy(sanitized.AllowedOrigins, logger)

	s := &RelayServer{
		cfg:      sanitized,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		manager:  NewSessionManager(registry, sanitized, metrics, logger.With("component", "sessions")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
	s.httpServer = CreateServer(sanitized.Port, s.SetupRoutes())
	return s, nil
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Registry returns the room registry.
func (s *RelayServer) Registry() *relay.Registry {
	return s.registry
}

// Sessions returns the session manager.
func (s *RelayServer) Sessions() *SessionManager {
	return s.manager
}

// Metrics returns the relay counters.
func (s *RelayServer) Metrics() *Metrics {
	return s.metrics
}

// Start launches the session manager loop. It must be called before the
// HTTP server accepts connections.
func (s *RelayServer) Start() {
	go s.manager.Run()
	s.logger.Info("Session manager started and ready to manage WebSocket connections")
}

// ListenAndServe starts the HTTP server and blocks until it exits.
func (s *RelayServer) ListenAndServe() error {
	s.logger.Info("Server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and closes every session, which
// tears down their rooms. It waits until ctx is done at most.
func (s *RelayServer) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Shutting down HTTP server...")
		if err := s.httpServer.Shutdown(gctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.manager.Shutdown(timeout); err != nil {
			return fmt.Errorf("session shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("Shutdown error", "error", err)
		return err
	}
	s.logger.Info("Relay shutdown completed", "open_rooms", s.registry.OpenRooms())
	return nil
}
