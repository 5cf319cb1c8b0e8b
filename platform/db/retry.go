package db

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/logger"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Retry runs fn up to attempts times, sleeping attempt² × baseDelay between
// tries. It gives up early when ctx is done.
func Retry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if log != nil {
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", lastErr)
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt*attempt) * baseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}

// Connect opens the pool, retrying while the database comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := Retry(ctx, log, "database connection", connectAttempts, connectDelay, func() error {
		p, err := NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	return pool, err
}

// Migrate applies pending migrations, retrying while the database comes up.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, migrationsFS fs.FS, log *logger.Logger) error {
	return Retry(ctx, log, "database migrations", connectAttempts, connectDelay, func() error {
		return RunMigrations(ctx, cfg, migrationsFS)
	})
}
