// Package server exposes the assistant over HTTP: chat with optional
// SSE streaming, bookmark analysis, and conversation inspection.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linkmind/linkmind/internal/admission"
	"github.com/linkmind/linkmind/internal/auth"
	"github.com/linkmind/linkmind/internal/config"
	"github.com/linkmind/linkmind/internal/convo"
	"github.com/linkmind/linkmind/internal/pipeline"
)

// maxBodyBytes limits the size of incoming request bodies.
const maxBodyBytes = 10 * 1024 * 1024 // 10 MB

// Server is the main HTTP server.
type Server struct {
	Config     *config.ServerConfig
	Pipeline   *pipeline.Driver
	Convo      *convo.Store
	handler    http.Handler
	httpServer *http.Server
}

// New creates a server with all routes registered.
func New(cfg *config.ServerConfig) *Server {
	store := convo.NewStore(cfg.ConvoTTL(), cfg.Conversations.Capacity)
	driver := &pipeline.Driver{
		Config: cfg,
		Convo:  store,
		Queue:  admission.NewQueue(),
		HTTPClient: auth.Client(context.Background(), auth.Config{
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scopes:       cfg.OAuth.Scopes,
		}),
	}

	s := &Server{
		Config:   cfg,
		Pipeline: driver,
		Convo:    store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/assistant/chat", s.handleChat)
	mux.HandleFunc("POST /v1/assistant/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /v1/assistant/conversations/{id}", s.handleConversationGet)
	mux.HandleFunc("DELETE /v1/assistant/conversations/{id}", s.handleConversationDelete)
	mux.HandleFunc("OPTIONS /", s.handleOptions)

	s.handler = corsMiddleware(authMiddleware(cfg, verboseMiddleware(cfg, mux)))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// Streams stay open for the whole generation.
		WriteTimeout: 600 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped route handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server and its conversation store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Convo != nil {
		s.Convo.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read request body")
		return nil, false
	}
	return body, true
}
