// Package server wires the matchmaking HTTP API: request a match, look up a
// player's rating, and read scheduler status.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/colosseumrl/colosseumrl/internal/api/controller"
)

var tracer = otel.Tracer("server")

// Server is the matchmaking HTTP front end.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
}

// New builds the router. Matchmaking requests are long-polls, so the server
// carries no write timeout.
func New(match *controller.MatchController, players *controller.PlayerController) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), traceMiddleware(), logMiddleware())

	api := engine.Group("/api")
	{
		api.POST("/match", match.RequestMatch)
		api.GET("/players/:username", players.Get)
		api.GET("/status", match.Status)
	}

	return &Server{engine: engine}
}

// Run serves the API until the listener fails or Shutdown is called.
func (s *Server) Run(port int) error {
	s.srv = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.engine,
		ReadTimeout: 10 * time.Second,
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "http "+c.FullPath())
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}

func logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
