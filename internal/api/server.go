// Package api exposes the case-processing pipeline over HTTP. This layer is
// deliberately thin: request parsing and status mapping only. The outbound
// response never carries anything the redaction core did not already clear
// for the trust boundary.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sarforge/internal/jobqueue"
	"github.com/sarforge/internal/pipeline"
	"github.com/sarforge/internal/store"
)

// Server is the sarforge API server.
type Server struct {
	echo      *echo.Echo
	port      int
	pipeline  *pipeline.Pipeline
	artifacts store.ArtifactStore
	queue     *jobqueue.Queue
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithQueue enables the async submission endpoint.
func WithQueue(q *jobqueue.Queue) ServerOption {
	return func(s *Server) { s.queue = q }
}

// NewServer creates the API server.
func NewServer(port int, p *pipeline.Pipeline, artifacts store.ArtifactStore, opts ...ServerOption) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:      e,
		port:      port,
		pipeline:  p,
		artifacts: artifacts,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	v1 := s.echo.Group("/api/v1")
	v1.POST("/cases", s.processCase)
	v1.POST("/cases/async", s.enqueueCase)
	v1.GET("/cases/:case_id/artifacts", s.listArtifacts)
}

// Start begins serving and blocks until an interrupt triggers graceful
// shutdown.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Shutdown stops the server without waiting for a signal; used by tests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
