package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps the gateway in an http.Server with sane timeouts and
// graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds a server listening on addr with the gateway's routes
// mounted plus a liveness probe.
func NewServer(addr string, gateway *Gateway) *Server {
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: slog.Default().With("component", "mcp-server"),
	}
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.log.Info("mcp server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("mcp server shutting down")
	return s.httpServer.Shutdown(ctx)
}
