// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemon-dev/mnemon"
	"github.com/mnemon-dev/mnemon/pkg/config"
	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/server/handlers"
)

// Server is the HTTP surface over one engine.
type Server struct {
	config *config.Config
	router *gin.Engine
	engine *mnemon.Engine
	server *http.Server
}

// New creates a server around engine.
func New(cfg *config.Config, engine *mnemon.Engine) *Server {
	return &Server{
		config: cfg,
		engine: engine,
	}
}

// Setup builds routes and middleware. Call before Start.
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(requestLogMiddleware())
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

func (s *Server) setupRoutes() {
	memoryHandler := handlers.NewMemoryHandler(s.engine)
	adminHandler := handlers.NewAdminHandler(s.engine)

	s.router.GET("/health", adminHandler.HealthCheck)
	s.router.GET("/ready", adminHandler.ReadinessCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/turns", memoryHandler.CommitTurn)
		v1.POST("/recall", memoryHandler.Recall)
		v1.POST("/facts", memoryHandler.IngestFacts)
		v1.POST("/topics", memoryHandler.StoreTopic)
		v1.POST("/documents", memoryHandler.StoreDocument)
		v1.POST("/scenes/close", memoryHandler.CloseScene)
		v1.POST("/integrate", memoryHandler.Integrate)

		v1.GET("/schema", adminHandler.Schema)
		v1.GET("/stats", adminHandler.Stats)
	}
}

// Router exposes the configured router for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	logger.Get().Info("server listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	logger.Get().Info("server stopping")
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware tags every request with an id, honoring one supplied
// by the caller.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLogMiddleware logs one structured line per request.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Get().Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Tenant-ID, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
