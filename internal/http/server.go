package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/verifyd/internal/config"
	"github.com/fyrsmithlabs/verifyd/internal/logging"
	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Host            string          `koanf:"host"`
	Port            int             `koanf:"port"`
	ShutdownTimeout config.Duration `koanf:"shutdown_timeout"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig bounds mutating requests per client IP.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// NewDefaultConfig returns defaults for a local daemon.
func NewDefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            8085,
		ShutdownTimeout: config.Duration(10 * time.Second),
		RateLimit:       RateLimitConfig{Enabled: true, RPS: 5, Burst: 20},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit rps and burst must be positive when enabled")
	}
	return nil
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// HealthCheck reports the state of one dependency; nil means healthy.
type HealthCheck func(ctx context.Context) error

// Server serves the session API.
type Server struct {
	echo     *echo.Echo
	registry *session.Registry
	logger   *logging.Logger
	config   *Config
	metrics  *HTTPMetrics
	prom     *prometheus.Registry
	ops      *prometheus.CounterVec
	checks   map[string]HealthCheck
	history  SnapshotHistory
}

// SnapshotHistory lists the saved snapshots of a session, newest first.
// Every persistence.Gateway implements it.
type SnapshotHistory interface {
	History(ctx context.Context, sessionID string, limit int) ([]persistence.SnapshotInfo, error)
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithSnapshotHistory serves GET /api/v1/sessions/:id/snapshots from h.
func WithSnapshotHistory(h SnapshotHistory) Option {
	return func(s *Server) { s.history = h }
}

// WithHTTPMetrics replaces the OTEL request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a Server over registry.
func NewServer(registry *session.Registry, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid http config: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger.Named("http"),
		config:   cfg,
		checks:   make(map[string]HealthCheck),
		prom:     prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(s.logger.Underlying())
	}
	if err := s.registerCollectors(); err != nil {
		return nil, err
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestContext)

	s.registerRoutes()
	return s, nil
}

// requestContext attaches the request id and logger to the request context
// and logs the request once it completes.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		ctx = logging.WithSessionID(ctx, c.Param("id"))
		ctx = logging.WithLogger(ctx, s.logger)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			// Resolve the status before logging.
			c.Error(err)
			err = nil
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("route", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerCollectors() error {
	s.ops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verifyd",
		Name:      "api_session_operations_total",
		Help:      "Session operations served over HTTP, by operation and error code (ok on success).",
	}, []string{"operation", "code"})

	for _, c := range []prometheus.Collector{
		s.ops,
		newSessionCollector(s.registry),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := s.prom.Register(c); err != nil {
			return fmt.Errorf("register prometheus collector: %w", err)
		}
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.prom, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	sessions := v1.Group("/sessions")
	sessions.GET("", s.handleList)
	sessions.GET("/:id", s.handleGet)
	sessions.GET("/:id/feedback-form", s.handleForm)
	sessions.GET("/:id/snapshots", s.handleSnapshots)

	mutating := []echo.MiddlewareFunc{}
	if s.config.RateLimit.Enabled {
		mutating = append(mutating, newIPRateLimiter(s.config.RateLimit).Middleware)
	}
	sessions.POST("", s.handleCreate, mutating...)
	sessions.POST("/:id/preflight", s.handlePreFlight, mutating...)
	sessions.POST("/:id/approve", s.handleApprove, mutating...)
	sessions.POST("/:id/reject", s.handleReject, mutating...)
	sessions.POST("/:id/resolve", s.handleResolve, mutating...)
	sessions.POST("/:id/restart", s.handleRestart, mutating...)
	sessions.POST("/:id/save", s.handleSave, mutating...)
	sessions.POST("/:id/end", s.handleEnd, mutating...)
	sessions.POST("/:id/resume", s.handleResume, mutating...)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout.Duration())
	defer cancel()
	return s.echo.Shutdown(ctx)
}
