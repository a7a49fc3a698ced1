package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const systemMetricsInterval = 15 * time.Second

// Health is the body of the health endpoint.
type Health struct {
	Healthy bool   `json:"healthy"`
	State   string `json:"state"`
}

// HealthReporter is implemented by the importer.
type HealthReporter interface {
	Health() Health
}

// Server exposes Prometheus metrics and the importer health over HTTP.
type Server struct {
	config *config.MetricsConfig
	health HealthReporter
	log    *logger.Logger
	server *http.Server
	cancel context.CancelFunc
}

// NewServer creates a metrics server. Without a reporter the health endpoint
// always answers healthy.
func NewServer(cfg *config.MetricsConfig, health HealthReporter, log *logger.Logger) *Server {
	return &Server{
		config: cfg,
		health: health,
		log:    log.WithComponent(common.ComponentMetrics),
	}
}

// Handler serves the metrics path and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.Handler())
	mux.HandleFunc("/health", s.serveHealth)
	return mux
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	h := Health{Healthy: true, State: "unknown"}
	if s.health != nil {
		h = s.health.Health()
	}

	w.Header().Set("Content-Type", "application/json")
	if !h.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.log.Debugw("failed to write health response", "error", err)
	}
}

// Start listens in the background and refreshes process metrics until Stop or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.refreshSystemMetrics(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("metrics server failed", "address", s.config.ListenAddress, "error", err)
		}
	}()

	s.log.Infow("metrics server listening", "address", s.config.ListenAddress, "path", s.config.Path)
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	return nil
}

func (s *Server) refreshSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		UpdateSystemMetrics()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
