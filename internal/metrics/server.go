package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunInfo identifies the chain run the health endpoint reports on.
type RunInfo struct {
	RunName string
	Model   string
	Chains  int
}

// Server provides HTTP endpoints for Prometheus metrics and health
// checks.
type Server struct {
	addr    string
	server  *http.Server
	logger  *slog.Logger
	info    RunInfo
	started time.Time
}

// NewServer creates a new metrics server.
func NewServer(addr string, info RunInfo, logger *slog.Logger) *Server {
	s := &Server{
		addr:    addr,
		logger:  logger,
		info:    info,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// handleHealth reports liveness plus enough run identity to tell one
// swarm's endpoint from another's when several runs share a host.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"run_name":       s.info.RunName,
		"model":          s.info.Model,
		"chains":         s.info.Chains,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// Start starts the metrics server in a goroutine. Returns
// immediately. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("metrics_server_starting", "addr", s.addr, "run_name", s.info.RunName)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}
