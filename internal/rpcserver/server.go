// Package rpcserver exposes a tool registry over HTTP as a single JSON-RPC
// route, plus a few read-only metadata endpoints.
package rpcserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/store"
	"github.com/klubi/scout/internal/tool"
)

// Server is the scout tool server. It dispatches RPC requests to the
// registry and records every call in the Store.
type Server struct {
	router   *mux.Router
	registry *tool.Registry
	records  store.Store
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a fully-wired Server ready to Start().
func NewServer(addr string, reg *tool.Registry, records store.Store, logger *zap.Logger) *Server {
	srv := &Server{
		router:   mux.NewRouter(),
		registry: reg,
		records:  records,
		logger:   logger,
	}
	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	srv.registerRoutes()
	return srv
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	s.logger.Info("tool server starting",
		zap.String("addr", s.server.Addr),
		zap.Int("tools", s.registry.Len()),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
