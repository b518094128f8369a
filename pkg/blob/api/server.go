// Package api provides the HTTP blob API: upload and download of
// encrypted file and thumbnail blobs.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZentaChain/zentalk-client/pkg/blob"
	"github.com/ZentaChain/zentalk-client/pkg/logger"
	"github.com/ZentaChain/zentalk-client/pkg/metrics"
)

// Server is the HTTP API server of a blob store
type Server struct {
	store      *blob.Store
	router     *gin.Engine
	config     *Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	httpServer *http.Server
	startedAt  time.Time
}

// Config holds server configuration
type Config struct {
	ListenAddr      string
	EnableCORS      bool
	RateLimit       int // Requests per minute per client IP, 0 disables
	MaxUploadSizeMB int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8080",
		EnableCORS:      true,
		RateLimit:       600,
		MaxUploadSizeMB: 101,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// NewServer creates a blob API server. A nil config uses DefaultConfig;
// nil metrics disable /metrics.
func NewServer(store *blob.Store, config *Config, log *slog.Logger, m *metrics.Metrics) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:     store,
		router:    gin.New(),
		config:    config,
		log:       logger.OrDefault(log),
		metrics:   m,
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware(s.log, s.metrics))
	s.router.Use(gin.Recovery())

	if s.config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}
	if s.config.RateLimit > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RateLimit)))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/blob/:id", s.handleDownload)
	s.router.HEAD("/blob/:id", s.handleDownload)
	s.router.POST("/blob", s.handleUpload)
	s.router.DELETE("/blob/:id", s.handleDelete)
	s.router.GET("/blob/:id/health", s.handleBlobHealth)

	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("blob API listening", "addr", s.config.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down blob API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
