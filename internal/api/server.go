// Package api exposes persisted review runs and findings over HTTP. The
// server is read-mostly: runs are created by the CLI pipeline, the API serves
// them to dashboards and lets users update finding statuses.
package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/synth/copilot-review-agent/internal/store"
)

// Server represents the API server.
type Server struct {
	echo  *echo.Echo
	addr  string
	store store.Store
}

// NewServer creates a new API server backed by the given store.
func NewServer(addr string, st store.Store) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:  e,
		addr:  addr,
		store: st,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/latest", s.getLatestRun)
	v1.GET("/runs/:id", s.getRun)
	v1.GET("/runs/:id/findings", s.listRunFindings)
	v1.GET("/findings", s.listFindings)
	v1.GET("/findings/:id", s.getFinding)
	v1.PATCH("/findings/:id/status", s.updateFindingStatus)
}

// Start begins serving and blocks until an interrupt arrives or ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api server stopped")
		}
	}()
	log.Info().Str("addr", s.addr).Msg("api server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}
