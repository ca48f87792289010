package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackboxlabs/blackbox/internal/adapters/http"
	"github.com/blackboxlabs/blackbox/internal/adapters/ipc"
	"github.com/blackboxlabs/blackbox/internal/adapters/sqlite"
	"github.com/blackboxlabs/blackbox/internal/adapters/thermal"
	"github.com/blackboxlabs/blackbox/internal/adapters/tracing"
	"github.com/blackboxlabs/blackbox/internal/application/pipeline"
)

// serveCmd starts the orchestrator
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator and HTTP API",
		Long: `Start the voice pipeline orchestrator.

Brings up the context store, the thermal monitor, the shared-memory
transport to the ASR/LLM/TTS workers, and the HTTP API. Startup blocks
until all three workers answer their health checks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	slog.Info("starting blackbox orchestrator",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"database", cfg.Database.Path,
		"shm_dir", cfg.Transport.Dir)

	shutdownTracer, err := tracing.InitTracer("blackbox-orchestrator")
	if err != nil {
		slog.Warn("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Warn("tracer shutdown error", "error", err)
			}
		}()
	}

	store, err := sqlite.Open(sqlite.Options{
		Path: cfg.Database.Path,
		Argon2: sqlite.Argon2Params{
			Time:      uint32(cfg.Vault.Argon2Time),
			MemoryKiB: uint32(cfg.Vault.Argon2MemoryKiB),
			Parallel:  uint8(cfg.Vault.Argon2Parallel),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	monitor := thermal.New(thermal.Options{
		WarningTemp:  cfg.Thermal.WarningTemp,
		CriticalTemp: cfg.Thermal.CriticalTemp,
		CooldownTemp: cfg.Thermal.CooldownTemp,
		PollInterval: cfg.ThermalPoll(),
		BasePath:     cfg.Thermal.BasePath,
	})
	monitor.Start()
	defer monitor.Stop()

	transport := ipc.NewManager(cfg, cfg.TransportPoll())
	if err := transport.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}
	defer transport.Shutdown()

	p := pipeline.New(cfg, transport, store, monitor)
	slog.Info("waiting for inference workers")
	if err := p.Initialize(ctx); err != nil {
		return fmt.Errorf("pipeline initialization failed: %w", err)
	}

	server := http.NewServer(cfg, p, store, monitor, store)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		slog.Info("server stopped")
		return nil
	}
}
