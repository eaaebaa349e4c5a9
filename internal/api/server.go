package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is the HTTP front for the dashboard and control endpoints.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer wires the routes and the websocket hub.
func NewServer(addr string, tracker Tracker, hub *Hub, logger *slog.Logger) *Server {
	h := NewHandlers(tracker, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.HandleFunc("GET /tokens/top", h.HandleTop)
	mux.HandleFunc("GET /tokens/holder", h.HandleHolder)
	mux.HandleFunc("POST /tokens/holder", h.HandleHolderAdd)
	mux.HandleFunc("DELETE /tokens/holder/{addr}", h.HandleHolderRemove)
	mux.HandleFunc("GET /tokens/all", h.HandleAll)
	mux.HandleFunc("GET /tokens/counts", h.HandleCounts)
	mux.HandleFunc("GET /tokens/mvp", h.HandleMVP)
	mux.HandleFunc("GET /stats", h.HandleStats)

	mux.HandleFunc("GET /blacklist", h.HandleBlacklistGet)
	mux.HandleFunc("POST /blacklist", h.HandleBlacklistAdd)
	mux.HandleFunc("DELETE /blacklist/{addr}", h.HandleBlacklistRemove)

	mux.HandleFunc("GET /mode", h.HandleModeGet)
	mux.HandleFunc("POST /mode", h.HandleModeSet)
	mux.HandleFunc("GET /view-mode", h.HandleViewModeGet)
	mux.HandleFunc("POST /view-mode", h.HandleViewModeSet)
	mux.HandleFunc("GET /tiers", h.HandleTiersGet)
	mux.HandleFunc("POST /tiers", h.HandleTiersSet)

	mux.HandleFunc("POST /purge", h.HandlePurge)
	mux.HandleFunc("GET /test/mc-check", h.HandleMCCheck)

	mux.HandleFunc("GET /ws", h.HandleWebSocket)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "api"),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("api server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
