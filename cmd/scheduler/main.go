// Command scheduler runs the lead protection sweep, the dispatcher that moves
// owner notices from the outbox to the queue, and the worker that mails them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lead_protection_backend/internal/email"
	"lead_protection_backend/internal/events"
	"lead_protection_backend/internal/leads"
	"lead_protection_backend/internal/leads/repository"
	"lead_protection_backend/internal/leads/sweep"
	"lead_protection_backend/internal/notification"
	"lead_protection_backend/internal/notification/outbox"
	"lead_protection_backend/internal/scheduler"
	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/db"
	"lead_protection_backend/platform/logger"
	"lead_protection_backend/platform/telemetry"
)

const telemetryFlush = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.GetSweepInterval().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler stopped")
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

	sender, err := email.NewSender(cfg)
	if err != nil {
		return fmt.Errorf("email sender: %w", err)
	}

	notifier, err := scheduler.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("notice queue: %w", err)
	}
	defer func() { _ = notifier.Close() }()

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("redis client: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	store := repository.NewTracingStore(repository.New(pool))
	users := repository.NewUserDirectory(pool)

	sweeper, err := sweep.New(store, leads.NewLifecycle(), eventBus,
		scheduler.NewRedisLock(redisClient), sweep.OptionsFromConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	worker, err := scheduler.NewWorker(cfg, scheduler.NewNoticeHandler(store, users, sender, cfg.GetAppBaseURL(), log), log)
	if err != nil {
		return fmt.Errorf("notice worker: %w", err)
	}

	dispatcher := scheduler.NewNoticeOutboxDispatcher(outbox.New(pool), notifier, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	return g.Wait()
}
