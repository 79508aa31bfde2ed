// Package http provides HTTP server implementation and request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	apikeyHTTP "github.com/allisson/apikeys/internal/apikey/http"
	apikeyUseCase "github.com/allisson/apikeys/internal/apikey/usecase"
	"github.com/allisson/apikeys/internal/config"
	"github.com/allisson/apikeys/internal/metrics"
)

// Server represents the HTTP server
type Server struct {
	db       *sql.DB
	server   *http.Server
	logger   *slog.Logger
	router   *gin.Engine
	inMemory bool
}

// NewServer creates a new HTTP server. db may be nil when tokens are kept in memory.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter registers the middleware chain, health endpoints and the API key routes.
//
// Every /v1 route runs through the Guard. The management routes additionally require
// the tokens:manage ability; /v1/verify only requires a valid token.
func (s *Server) SetupRouter(
	cfg *config.Config,
	tokenHandler *apikeyHTTP.TokenHandler,
	authenticator apikeyUseCase.Authenticator,
	meterProvider metric.MeterProvider,
	metricsNamespace string,
) {
	s.inMemory = cfg.DBDriver == "memory"

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if meterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(meterProvider, metricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	v1.Use(apikeyHTTP.GuardMiddleware(authenticator, s.logger))

	v1.GET("/verify", tokenHandler.VerifyHandler)

	manage := v1.Group("")
	manage.Use(apikeyHTTP.RequireAbility(apikeyHTTP.ManageAbility, s.logger))

	tokens := manage.Group("/tokens")
	{
		tokens.POST("", tokenHandler.IssueHandler)
		tokens.GET("/:id", tokenHandler.GetHandler)
		tokens.POST("/:id/revoke", tokenHandler.RevokeHandler)
		tokens.GET("/:id/revocation-preview", tokenHandler.PreviewRevocationHandler)
		tokens.POST("/:id/rotate", tokenHandler.RotateHandler)
		tokens.POST("/:id/derive", tokenHandler.DeriveHandler)
		tokens.GET("/:id/siblings/:type", tokenHandler.SiblingHandler)
		tokens.GET("/:id/children", tokenHandler.ChildrenHandler)
		tokens.GET("/:id/descendants", tokenHandler.DescendantsHandler)
		tokens.GET("/:id/rotations", tokenHandler.RotationChainHandler)
	}

	groups := manage.Group("/token-groups")
	{
		groups.POST("", tokenHandler.IssueGroupHandler)
		groups.GET("/:id", tokenHandler.GetGroupHandler)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured: call SetupRouter first")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports that the process is up.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the token store is reachable.
func (s *Server) readinessHandler(c *gin.Context) {
	if s.inMemory {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"components": gin.H{"database": "memory"},
		})
		return
	}

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": "ok"},
	})
}
