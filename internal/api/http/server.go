package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/capture-watchdog/internal/api/middleware"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/tracing"
)

const shutdownTimeout = 5 * time.Second

// Config configures the status server
type Config struct {
	Addr         string
	AllowOrigins []string
	RateLimit    int

	// Tracer adds a span per request when set.
	Tracer *tracing.Tracer
}

// Server is the local status endpoint
type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger *logging.Logger
}

// NewServer builds the router and its routes
func NewServer(cfg Config, status StatusProvider, metrics *monitoring.Metrics, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if logging.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(cfg.Tracer))
	}
	router.Use(middleware.RequestLogger(logger))
	router.Use(monitoring.Middleware(metrics))
	corsHandler, err := middleware.CORS(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		MaxAge:       12 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("status cors: %w", err)
	}
	router.Use(corsHandler)
	router.Use(middleware.GlobalRateLimit(cfg.RateLimit))

	h := NewHandlers(status, metrics)
	router.GET("/healthz", h.Health)
	router.GET("/status", h.Status)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return &Server{
		router: router,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}, nil
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status endpoint listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Status endpoint stopped")
	return nil
}
