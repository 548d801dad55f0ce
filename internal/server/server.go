// Package server exposes the optional operator HTTP admin surface: job
// counts and per-agent job lists over REST, and the live event stream over
// WebSocket, gated by the same bearer-token scheme the underlying OAuth
// session layer uses to mint tokens.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/app"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
)

const wsPrefix = "/ws"

// Server wraps the admin HTTP server and application reference.
type Server struct {
	app    *app.App
	server *http.Server
	logger *common.Logger
}

// NewServer creates the admin HTTP server, bound to a.Config.Server.
func NewServer(a *app.App) *Server {
	s := &Server{
		app:    a,
		logger: a.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", handleJobCounts(a))
	mux.HandleFunc("/api/agents/", handleAgentJobs(a))
	mux.HandleFunc(wsPrefix, handleWS(a))

	handler := applyMiddleware(mux, a.Logger, &a.Config.Auth, wsPrefix)

	host := a.Config.Server.Host
	port := a.Config.Server.Port

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the admin HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting admin HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
