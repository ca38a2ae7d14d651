// Package api assembles the ops HTTP server.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/donaldgifford/listing-watcher/internal/api/handlers"
	"github.com/donaldgifford/listing-watcher/internal/api/middleware"
	"github.com/donaldgifford/listing-watcher/internal/engine"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

const shutdownTimeout = 10 * time.Second

// Watcher is the engine surface the ops API reads.
type Watcher interface {
	State() engine.State
	Status() engine.Status
	RecentEvents(limit int) []domain.EventRecord
}

// Server is the ops HTTP server.
type Server struct {
	echo *echo.Echo
	addr string
	log  *slog.Logger
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// NewServer wires middleware and routes for w.
func NewServer(cfg ServerConfig, w Watcher, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.RequestLog(log), middleware.Recovery(log), middleware.Metrics())

	health := handlers.NewHealthHandler(w)
	e.GET("/healthz", health.Healthz)
	e.GET("/readyz", health.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	api := humaecho.New(e, huma.DefaultConfig("Listing Watcher", version))
	handlers.RegisterStatusRoutes(api, handlers.NewStatusHandler(w))

	return &Server{echo: e, addr: cfg.Addr, log: log}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting ops server", "addr", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down ops server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down ops server: %w", err)
	}
	return nil
}
