// Package http serves the stablecoin engine over HTTP. Orchestrator health
// checks and the position API share one listener.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/dsc/internal/ports/inbound"
)

// ServerConfig configures the engine's HTTP listener.
type ServerConfig struct {
	Addr         string
	Logger       *slog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// API mounts the position routes under /v1/. Nil serves health checks only.
	API *Handler
}

// ServerConfigDefaults returns a config with default values.
func ServerConfigDefaults() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		Logger:       slog.Default(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Server answers health checks for the engine and, optionally, the position API.
//
//   - GET /health/ready  - 200 once stored positions are restored
//   - GET /health/live   - 200 while no price feed is stale
//   - GET /health        - both flags plus the stale feeds, for dashboards
//
// A stale feed freezes valuations without killing the process. Liveness turns
// 503 so operators are alerted, and the engine recovers on its own once the
// feed updates. Once shutdown starts, position commands are refused with 503
// so no new unit of work begins while the process drains; queries still answer.
type Server struct {
	server       *http.Server
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	logger       *slog.Logger
}

// NewServer creates the listener. Zero timeouts fall back to the defaults.
func NewServer(config ServerConfig, checker inbound.HealthChecker, shuttingDown *atomic.Bool) *Server {
	defaults := ServerConfigDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	s := &Server{
		checker:      checker,
		shuttingDown: shuttingDown,
		logger:       config.Logger.With("component", "http-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("GET /health/live", s.handleLive)
	mux.HandleFunc("GET /health", s.handleHealth)
	if config.API != nil {
		api := http.NewServeMux()
		config.API.RegisterRoutes(api)
		mux.Handle("/v1/", s.refuseCommandsWhileDraining(api))
	}

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Start begins listening in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown waits up to timeout for in-flight requests, including running
// engine operations, to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) refuseCommandsWhileDraining(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && s.shuttingDown.Load() {
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.shuttingDown.Load():
		s.respondStatus(w, http.StatusServiceUnavailable, "shutting_down")
	case s.checker.IsReady():
		s.respondStatus(w, http.StatusOK, "ready")
	default:
		s.respondStatus(w, http.StatusServiceUnavailable, "not_ready")
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.shuttingDown.Load():
		s.respondStatus(w, http.StatusServiceUnavailable, "shutting_down")
	case s.checker.IsHealthy():
		s.respondStatus(w, http.StatusOK, "healthy")
	default:
		s.respondStatus(w, http.StatusServiceUnavailable, "unhealthy")
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string   `json:"status"`
	Ready        bool     `json:"ready"`
	Healthy      bool     `json:"healthy"`
	ShuttingDown bool     `json:"shuttingDown"`
	StaleFeeds   []string `json:"staleFeeds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{StaleFeeds: []string{}}
	if s.shuttingDown.Load() {
		resp.Status = "shutting_down"
		resp.ShuttingDown = true
		s.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Ready = s.checker.IsReady()
	resp.Healthy = s.checker.IsHealthy()
	for _, feed := range s.checker.StaleFeeds() {
		resp.StaleFeeds = append(resp.StaleFeeds, feed.Hex())
	}

	code := http.StatusOK
	resp.Status = "ok"
	if !resp.Ready || !resp.Healthy {
		code = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}
	s.respondJSON(w, code, resp)
}

func (s *Server) respondStatus(w http.ResponseWriter, code int, status string) {
	s.respondJSON(w, code, map[string]string{"status": status})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}
