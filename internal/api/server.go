package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/radiorec/radiorec/internal/api/middleware"
	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/observability"
	"github.com/radiorec/radiorec/internal/upload"
)

// Recorder is the part of the controller the API drives.
type Recorder interface {
	Start(ctx context.Context) (string, error)
	Stop() error
	Cancel() error
	State() controller.State
	Selections() controller.Selections
	SetSelections(sel controller.Selections) error
	RetryUpload(ctx context.Context) (upload.Outcome, error)
	Trim(ctx context.Context, req controller.TrimRequest) (*backend.TrimResult, error)
}

// StatsSource reports backend statistics.
type StatsSource interface {
	Stats(ctx context.Context) (*backend.Stats, error)
}

// Server is the control API HTTP server.
type Server struct {
	echo     *echo.Echo
	config   *Config
	recorder Recorder
	stats    StatsSource
	levels   *LevelHub
	metrics  *observability.Metrics
	log      logger.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStats enables GET /api/v1/stats.
func WithStats(src StatsSource) Option {
	return func(s *Server) { s.stats = src }
}

// WithLevelHub enables the level stream. The same hub must be installed
// on the controller as a meter view.
func WithLevelHub(h *LevelHub) Option {
	return func(s *Server) { s.levels = h }
}

// WithMetrics enables request metrics and GET /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates the server and registers its routes.
func New(config *Config, rec Recorder, opts ...Option) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("recorder is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		recorder:  rec,
		log:       GetLogger(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func isStream(path string) bool { return strings.HasSuffix(path, "/levels") }

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.log, func(c echo.Context) bool { return isStream(c.Path()) }))
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP, isStream))
	}
	s.echo.Use(mw.NewCORS(s.config.AllowedOrigins))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/recording/start", s.startRecording)
	v1.POST("/recording/stop", s.stopRecording)
	v1.POST("/recording/cancel", s.cancelRecording)
	v1.POST("/recording/retry", s.retryUpload)
	v1.GET("/recording/status", s.recordingStatus)
	v1.GET("/selections", s.getSelections)
	v1.PUT("/selections", s.putSelections)
	v1.GET("/levels", s.streamLevels, levelRateLimiter())
	v1.POST("/recordings/:id/trim", s.trimRecording)
	v1.GET("/stats", s.getStats)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	s.log.Info("control API listening", logger.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return s.Shutdown()
}

// Shutdown ends level streams and stops the server.
func (s *Server) Shutdown() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("control API stopped")
	return nil
}
