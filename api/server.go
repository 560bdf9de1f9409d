// Package api provides the HTTP REST API for the chat backend.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (recovery, logging, CORS, tracing)
//   - health.go: Health check endpoints (/health, /ready)
//   - session.go: Session management endpoints (CRUD, clone, messages)
//   - file.go: File upload endpoints
//   - chat.go: Chat endpoints (non-streaming and SSE streaming)
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents Slowloris-style connection hoarding.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout is the maximum wait for the next keep-alive request.
	IdleTimeout = 120 * time.Second

	// WriteTimeout is deliberately zero: chat responses stream over SSE for
	// as long as generation takes.
	WriteTimeout = 0
)

// Deps carries everything the handlers need. Fields are interfaces so
// tests can wire fakes.
type Deps struct {
	Sessions    SessionStore
	Files       FileStore
	Chat        ChatService
	Blobs       BlobStore
	DB          Pinger
	CORSOrigins []string
	Logger      log.Logger
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	cors   []string
	logger log.Logger

	health  *HealthHandler
	session *SessionHandler
	file    *FileHandler
	chat    *ChatHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		cors:    deps.CORSOrigins,
		logger:  deps.Logger,
		health:  NewHealthHandler(deps.DB, deps.Logger),
		session: NewSessionHandler(deps.Sessions, deps.Blobs, deps.Logger),
		file:    NewFileHandler(deps.Files, deps.Blobs, deps.Logger),
		chat:    NewChatHandler(deps.Sessions, deps.Chat, deps.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.file.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → tracing → CORS → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		tracingMiddleware,
		corsMiddleware(s.cors),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
