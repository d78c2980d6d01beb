// Package server exposes devices, readings, reports, metrics and the live
// feed over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/analysis"
	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/transport"
)

// Config holds the HTTP server configuration
type Config struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Token      string `mapstructure:"token"`
	AcceptGzip bool   `mapstructure:"accept_gzip"`
}

// Engine is the part of the analysis engine the server uses
type Engine interface {
	Process(ctx context.Context, r models.Reading) []models.Alert
	Devices() []analysis.DeviceInfo
	LatestReading(deviceID string) (models.Reading, error)
	GenerateDailyReport(deviceID string) (models.Report, error)
}

// Stats holds ingest statistics
type Stats struct {
	TotalReceived   int
	TotalDuplicates int
	TotalErrors     int
}

// Option customizes a Server
type Option func(*Server)

// WithLive mounts the live feed at /live and /live/sse. Ingested readings
// are published to it.
func WithLive(live *transport.Live) Option {
	return func(s *Server) {
		s.live = live
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry serves reg at /metrics and registers the HTTP metrics with it
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithClock replaces the clock used for report trends
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// Server is the roomwatch HTTP API
type Server struct {
	config     Config
	engine     Engine
	live       *transport.Live
	logger     *zap.Logger
	registry   *prometheus.Registry
	clock      func() time.Time
	idempotent *IdempotencyStore
	router     *mux.Router
	server     *http.Server

	mu    sync.RWMutex
	stats Stats
}

// NewServer creates the server and builds its routes
func NewServer(config Config, engine Engine, opts ...Option) *Server {
	s := &Server{
		config:     config,
		engine:     engine,
		logger:     zap.NewNop(),
		clock:      time.Now,
		idempotent: NewIdempotencyStore(time.Hour),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	metrics := newMetricsMiddleware(s.registry)
	router.Use(s.logRequest, metrics.collect)

	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(s.requireToken)
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/reading", s.handleReading).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/report", s.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/report.xlsx", s.handleReportXLSX).Methods(http.MethodGet)
	api.HandleFunc("/readings", s.handleIngest).Methods(http.MethodPost)

	if s.live != nil {
		router.Handle("/live", s.requireToken(s.live.WebSocket)).Methods(http.MethodGet)
		router.Handle("/live/sse", s.requireToken(s.live.SSE)).Methods(http.MethodGet)
	}
	return router
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", s.Address()))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// Stats returns current ingest statistics
func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Server) countError() {
	s.mu.Lock()
	s.stats.TotalErrors++
	s.mu.Unlock()
}
