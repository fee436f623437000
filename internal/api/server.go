// Package api exposes the assistant over a JSON HTTP API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
	"github.com/ajitpratap0/portfoliobuddy/internal/db"
	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
)

// Chatter runs one conversation turn.
type Chatter interface {
	HandleMessage(ctx context.Context, userID, text string) (assistant.Reply, error)
}

// History returns stored turns for a user.
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]db.Transcript, error)
}

// Config contains server configuration
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Auth           AuthConfig    `mapstructure:"auth"`
}

// Deps are the services the API serves.
type Deps struct {
	Chat     Chatter
	Sessions assistant.SessionStore
	History  History
	Version  string
}

// Server represents the REST API server
type Server struct {
	router  *gin.Engine
	deps    Deps
	config  Config
	addr    string
	server  *http.Server
	started time.Time
}

// NewServer creates a new API server
func NewServer(config Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 2 * time.Minute
	}
	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", config.Auth.headerName()},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router:  router,
		deps:    deps,
		config:  config,
		addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
