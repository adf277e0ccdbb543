// Package api runs the dashboard HTTP server: a websocket endpoint that
// re-broadcasts every raw feed frame to connected clients, a health probe,
// and the prometheus scrape endpoint.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossover-bot/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard is an internal tool; the frames carry public market data.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server runs the HTTP/websocket API for the dashboard.
type Server struct {
	cfg    config.DashboardConfig
	frames <-chan []byte
	hub    *Hub
	server *http.Server
	logger *slog.Logger
}

// NewServer creates the dashboard server. frames is the feed's raw-frame
// stream; gatherer backs the /metrics endpoint.
func NewServer(cfg config.DashboardConfig, frames <-chan []byte, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	hub := NewHub(logger)

	s := &Server{
		cfg:    cfg,
		frames: frames,
		hub:    hub,
		logger: logger.With("component", "api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start starts the server and hub. Blocks until the listener fails or the
// server is stopped.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeFrames()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// consumeFrames relays the feed's raw frames into the hub.
func (s *Server) consumeFrames() {
	for frame := range s.frames {
		s.hub.Broadcast(frame)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	NewClient(s.hub, conn)
}
