// Package server serves an in-memory realtime store over websockets, for
// clients dialing ws:// or wss:// URLs.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/internal/server/middleware"
	ws "github.com/agentstation/rebase/internal/server/websocket"
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/database/memory"
	"github.com/agentstation/rebase/pkg/errors"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	store     *memory.DB
	wsHub     *ws.Hub
	limiter   *middleware.RateLimiter
	upgrader  websocket.Upgrader
	logger    *zerolog.Logger
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// New creates a server for store. Every websocket connection gets its own
// session of the store; the caller keeps ownership of store itself.
func New(store *memory.DB, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.NewConfigError("server", "a store is required", nil)
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return nil, errors.NewConfigError("server", "websocket path must start with /: "+cfg.Path, nil)
	}
	if cfg.AuthEnabled && cfg.AuthKey == "" {
		return nil, errors.NewConfigError("server", "an access key is required when auth is enabled", nil)
	}

	logger.Debug().Str("store", store.Name()).Msg("Creating new server instance")

	ctx, cancel := context.WithCancel(context.Background())
	open := func() database.Database { return store.Session() }

	s := &Server{
		store: store,
		wsHub: ws.NewHub(open, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.CheckOrigin(middleware.ParseOrigins(cfg.CORSOrigins)),
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit, logger)
	}
	return s, nil
}

// Start starts the websocket hub.
func (s *Server) Start() {
	s.logger.Debug().Msg("Starting WebSocket hub")
	go s.wsHub.Run(s.ctx)
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown closes every connection and waits for the hub to stop, or for
// ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Int("clients", s.wsHub.ClientCount()).Msg("Shutting down server background services")
	s.cancel()

	select {
	case <-s.wsHub.Done():
		s.logger.Info().Msg("Background services shut down successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// Config returns the server configuration.
func (s *Server) Config() Config {
	return s.config
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
