// Package http implements the gin-based HTTP ingress, wiring the
// per-dialect route table to the dispatch engine.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modelrelay/relay/internal/application/dispatch"
	"github.com/modelrelay/relay/internal/domain/dialect"
	"github.com/modelrelay/relay/internal/infrastructure/router"
	apperrors "github.com/modelrelay/relay/pkg/errors"
	"github.com/modelrelay/relay/pkg/safego"
)

// Config is the HTTP server's own surface, separate from the
// process-wide config.Config.
type Config struct {
	Host        string
	Port        int
	Mode        string // debug, release
	CORSOrigins []string
}

// Server wraps gin's engine in an *http.Server with graceful Start/Stop.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the gin engine and registers every proxy route
// against engine.
func NewServer(cfg Config, engine *dispatch.Engine, rtr *router.Router, logger *zap.Logger) *Server {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginLogger(logger))
	r.Use(corsMiddleware(cfg.CORSOrigins))

	m := newMetrics()
	r.Use(m.middleware())

	registerRoutes(r, engine, rtr, m)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: r},
		logger: logger,
	}
}

// Start begins serving in the background; errors after shutdown are
// swallowed (http.ErrServerClosed).
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", zap.String("address", s.server.Addr))
	safego.Go(s.logger, "http-listener", func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	})
	return nil
}

// Stop gracefully shuts the server down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

func registerRoutes(r *gin.Engine, engine *dispatch.Engine, rtr *router.Router, m *metrics) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "0.1.0"})
	})

	r.GET("/metrics", m.handler(engine))

	r.GET("/providers", func(c *gin.Context) {
		var stats []router.ProviderStat
		if rtr != nil {
			stats = rtr.Stats()
		}
		names := make([]string, 0, len(stats))
		for _, s := range stats {
			names = append(names, s.Provider)
		}
		out := gin.H{"providers": names, "stats": stats}
		if engine != nil && engine.Cooldown != nil {
			out["cooldowns"] = engine.Cooldown.ActiveKeys()
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/models", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"models": knownModels()})
	})

	proxyHandler := func(defaultSource dialect.Name, forceSource bool, defaultProvider string) gin.HandlerFunc {
		return func(c *gin.Context) {
			handleProxy(c, engine, defaultSource, forceSource, defaultProvider)
		}
	}

	r.POST("/v1/chat/completions", proxyHandler(dialect.OpenAI, false, "openai"))
	r.POST("/v1/messages", proxyHandler(dialect.Anthropic, true, "anthropic"))
	r.POST("/messages", proxyHandler(dialect.Anthropic, true, "anthropic"))
	r.POST("/v1/generateContent", proxyHandler(dialect.Gemini, false, "gemini"))
	r.POST("/v1/auto", proxyHandler("", false, ""))
	r.POST("/v1/proxy", func(c *gin.Context) {
		if c.GetHeader("X-Target-Provider") == "" {
			writeAppError(c, apperrors.InvalidRequest("X-Target-Provider header is required for /v1/proxy"))
			return
		}
		handleProxy(c, engine, "", false, "")
	})
	r.POST("/v1/responses", proxyHandler(dialect.OpenAIWeb, true, "openai-web"))
	r.POST("/backend-api/codex/responses", func(c *gin.Context) {
		// "Forces target openai-web": unlike the other routes'
		// defaultProvider, this overrides any model mapping/router result.
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeAppError(c, apperrors.InvalidRequest("failed to read request body"))
			return
		}
		opts := dispatch.ProxyOptions{
			SourceFormat:   dialect.OpenAIWeb,
			TargetProvider: "openai-web",
			TargetModel:    c.GetHeader("X-Target-Model"),
			APIKey:         c.GetHeader("X-API-Key"),
		}
		if err := engine.Dispatch(c.Request.Context(), body, opts, c.Writer); err != nil {
			writeAppError(c, err)
		}
	})
}

// handleProxy reads the request body, builds dispatch.ProxyOptions from the
// X-Target-Provider/X-Target-Model/X-API-Key headers, and hands
// off to the dispatch engine. forceSource pins the client dialect instead of
// running format detection (used by the anthropic- and openai-web-only
// routes).
func handleProxy(c *gin.Context, engine *dispatch.Engine, forcedSource dialect.Name, forceSource bool, defaultProvider string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAppError(c, apperrors.InvalidRequest("failed to read request body"))
		return
	}

	opts := dispatch.ProxyOptions{
		TargetProvider:       c.GetHeader("X-Target-Provider"),
		TargetModel:          c.GetHeader("X-Target-Model"),
		APIKey:               c.GetHeader("X-API-Key"),
		RouteDefaultProvider: defaultProvider,
	}
	if forceSource {
		opts.SourceFormat = forcedSource
	}

	if err := engine.Dispatch(c.Request.Context(), body, opts, c.Writer); err != nil {
		writeAppError(c, err)
	}
}

func writeAppError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		c.JSON(appErr.HTTPStatus(), appErr.JSON())
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error(), "code": "internal"}})
}

// knownModels is the static model descriptor list surfaced by GET /models;
// Live upstream model-list fetching is out of scope, so this reflects
// the dialects this proxy understands rather than querying each provider.
func knownModels() []gin.H {
	return []gin.H{
		{"id": "gpt-4", "provider": "openai"},
		{"id": "gpt-5", "provider": "openai-web"},
		{"id": "claude-sonnet-4-20250514", "provider": "anthropic"},
		{"id": "gemini-pro", "provider": "gemini"},
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Target-Provider, X-Target-Model, X-API-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
