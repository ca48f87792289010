// Package http is the local control surface: voice and text requests in,
// pipeline results out, plus store management and observability routes.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackboxlabs/blackbox/internal/adapters/http/handlers"
	"github.com/blackboxlabs/blackbox/internal/adapters/http/middleware"
	"github.com/blackboxlabs/blackbox/internal/application/pipeline"
	"github.com/blackboxlabs/blackbox/internal/config"
	"github.com/blackboxlabs/blackbox/internal/ports"
)

// Version is the orchestrator release reported by /health.
const Version = "1.0.0"

type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer wires the router over the pipeline, store and thermal monitor.
func NewServer(cfg *config.Config, p *pipeline.Pipeline, store ports.ContextStore, thermal ports.ThermalMonitor, pinger handlers.Pinger) *Server {
	s := &Server{config: cfg}

	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(p, thermal, pinger, Version)
	r.Get("/health", healthHandler.Handle)
	r.Get("/api/thermal", healthHandler.Thermal)
	r.Post("/api/thermal/cooldown", healthHandler.Cooldown)
	r.Get("/api/metrics", healthHandler.Stats)
	r.Handle("/metrics", promhttp.Handler())

	pipelineHandler := handlers.NewPipelineHandler(p)
	r.Post("/api/voice", pipelineHandler.Voice)
	r.Post("/api/text", pipelineHandler.Text)
	r.Post("/api/transcribe", pipelineHandler.Transcribe)

	storeHandler := handlers.NewStoreHandler(store, cfg.Pipeline.DefaultUser)
	r.Get("/api/context", storeHandler.GetContext)
	r.Delete("/api/context", storeHandler.ClearContext)
	r.Get("/api/reminders", storeHandler.ListReminders)
	r.Post("/api/reminders", storeHandler.CreateReminder)
	r.Post("/api/reminders/{id}/complete", storeHandler.CompleteReminder)
	r.Get("/api/vault", storeHandler.ListVaultItems)
	r.Post("/api/vault", storeHandler.StoreVaultItem)

	s.router = r
	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	slog.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
