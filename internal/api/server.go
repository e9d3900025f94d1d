// Package api implements the relay's REST API: live sessions, statistics,
// the capture store, the message catalog and a frame decoder, plus a
// Prometheus scrape endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/capture"
	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/guard"
	"github.com/tilewire-project/tilewire/internal/health"
	intnet "github.com/tilewire-project/tilewire/internal/network"
	"github.com/tilewire-project/tilewire/internal/protocol"
	"github.com/tilewire-project/tilewire/internal/stats"
)

// SessionSource is the live session view the API reads and kicks from.
type SessionSource interface {
	Snapshot() []intnet.SessionInfo
	Count() int
	Kick(id string) bool
}

// CaptureSource is the read side of the capture store.
type CaptureSource interface {
	List(ctx context.Context, f capture.Filter) ([]capture.Record, error)
	Get(ctx context.Context, id int64) (capture.Record, error)
	CountByReason(ctx context.Context) (map[capture.Reason]int, error)
}

// HealthSource reports the latest health check results.
type HealthSource interface {
	Status() health.Status
}

// Deps are the components the API serves. Captures may be nil when the
// capture store is disabled.
type Deps struct {
	Codec    *protocol.Codec
	Sessions SessionSource
	Stats    *stats.Collector
	Captures CaptureSource
	Guard    *guard.Guard
	Health   HealthSource
	Version  string
}

// Server is the REST API server for tilewire.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	deps     Deps
	started  time.Time

	// HTTP server
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, deps Deps) *Server {
	// Set Gin mode based on log level
	if cfg.GetLogging().Level == "debug" || cfg.GetLogging().Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		deps:     deps,
		started:  time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.GetAPI().Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Create listener with SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig(0)
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	apiCfg := s.cfg.GetAPI()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	// CORS
	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(apiCfg.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	if s.deps.Stats != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Stats.Gatherer(), promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/status", s.handleGetStatus)
		api.GET("/health", s.handleGetHealth)
		api.GET("/stats", s.handleGetStats)
		api.GET("/logs", s.handleGetLogEntries)

		api.GET("/messages", s.handleGetMessages)
		api.POST("/decode", s.handleDecode)

		api.GET("/sessions", s.handleGetSessions)
		api.DELETE("/sessions/:id", s.handleKickSession)

		api.GET("/captures", s.handleListCaptures)
		api.GET("/captures/summary", s.handleCaptureSummary)
		api.GET("/captures/:id", s.handleGetCapture)

		api.GET("/config", s.handleGetConfig)
		api.GET("/config/guard", s.handleGetGuard)
		api.PUT("/config/guard", s.handleSetGuard)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "tilewire API is running, see /api/status",
		})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
