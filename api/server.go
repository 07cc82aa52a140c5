// Package api exposes the chat engine over HTTP: a JSON chat endpoint
// plus liveness and readiness probes.
package api

import (
	"errors"
	"net/http"

	"github.com/ragline/ragline/internal/log"
)

var errProcessorRequired = errors.New("api: processor is required")

// ServerConfig assembles the HTTP server.
type ServerConfig struct {
	Processor Processor
	Logger    log.Logger
	// ReadyChecks are probed by GET /ready. Typically a database ping.
	ReadyChecks map[string]ReadyCheck
}

// Server routes API requests. It implements http.Handler.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Processor == nil {
		return nil, errProcessorRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	mux := http.NewServeMux()

	NewHealth(cfg.ReadyChecks).RegisterRoutes(mux)
	mux.Handle("POST /api/chat", NewChat(cfg.Processor, cfg.Logger))

	return &Server{mux: mux, logger: cfg.Logger}, nil
}

// ServeHTTP applies the middleware stack: recovery outermost, then
// request logging, then the routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := recoveryMiddleware(s.logger)(loggingMiddleware(s.logger)(s.mux))
	handler.ServeHTTP(w, r)
}
