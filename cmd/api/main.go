// Command api serves the lead protection HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lead_protection_backend/internal/events"
	apphttp "lead_protection_backend/internal/http"
	"lead_protection_backend/internal/http/router"
	"lead_protection_backend/internal/leads"
	"lead_protection_backend/internal/notification"
	"lead_protection_backend/migrations"
	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/db"
	"lead_protection_backend/platform/logger"
	"lead_protection_backend/platform/telemetry"
	"lead_protection_backend/platform/validator"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	telemetryFlush    = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlush)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// The api owns the schema; the scheduler only connects.
	if err := db.Migrate(ctx, cfg, migrations.FS, log); err != nil {
		return err
	}
	log.Info("database migrations complete")

	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	publisher, closePublisher := notification.Connect(cfg, log)
	defer closePublisher()
	notification.New(publisher, log).RegisterHandlers(eventBus)

	leadsModule, err := leads.NewModule(pool, eventBus, validator.New(), cfg, log)
	if err != nil {
		return fmt.Errorf("leads module: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.New(&apphttp.App{
			Config:  cfg,
			Logger:  log,
			Health:  db.NewPoolAdapter(pool),
			Modules: []apphttp.Module{leadsModule},
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
