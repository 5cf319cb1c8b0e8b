// Package sweep applies time-driven lead transitions. It is the only writer of
// reminder, grace, expiry and pre-claim release, and it pseudonymizes the
// contact data of long expired leads.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"lead_protection_backend/internal/events"
	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/lifecycle"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/platform/apperr"
	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/logger"
)

const (
	meterName = "lead_protection_backend/internal/leads/sweep"
	lockKey   = "lead-protection:sweep"
)

// Locker grants the single-writer lease for one sweep run.
type Locker interface {
	// TryLock returns ok=false without error when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// Options configure a Sweeper.
type Options struct {
	Interval      time.Duration
	BatchSize     int
	LockTTL       time.Duration
	CommitRetries int
	Clock         ports.Clock
	// Meter defaults to the global meter provider.
	Meter metric.Meter
}

// OptionsFromConfig reads the sweep settings.
func OptionsFromConfig(cfg config.SweepConfig) Options {
	return Options{
		Interval:      cfg.GetSweepInterval(),
		BatchSize:     cfg.GetSweepBatchSize(),
		LockTTL:       cfg.GetSweepLockTTL(),
		CommitRetries: cfg.GetCommitRetries(),
	}
}

// Report summarises one sweep run.
type Report struct {
	Skipped       bool
	Scanned       int
	Transitioned  int
	Pseudonymized int
	Failed        int
	// Queued counts notices committed to the outbox.
	Queued int
}

// Sweeper scans due leads and commits their next transition.
type Sweeper struct {
	store     ports.LeadStore
	lifecycle *lifecycle.Lifecycle
	bus       events.Bus
	locker    Locker
	opts      Options
	log       *logger.Logger

	transitions   metric.Int64Counter
	pseudonymized metric.Int64Counter
	failures      metric.Int64Counter
}

// New creates a Sweeper. locker and bus may be nil. Owner notices travel with
// each commit into the store's outbox.
func New(store ports.LeadStore, lc *lifecycle.Lifecycle, bus events.Bus, locker Locker, opts Options, log *logger.Logger) (*Sweeper, error) {
	if opts.BatchSize < 1 {
		return nil, errors.New("sweep batch size must be positive")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	if opts.CommitRetries < 1 {
		opts.CommitRetries = 1
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(meterName)
	}

	transitions, err := opts.Meter.Int64Counter("lead_protection.sweep.transitions",
		metric.WithDescription("Lead status transitions committed by the sweep"))
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	pseudonymized, err := opts.Meter.Int64Counter("lead_protection.sweep.pseudonymized",
		metric.WithDescription("Expired leads whose contact data the sweep pseudonymized"))
	if err != nil {
		return nil, fmt.Errorf("create pseudonymized counter: %w", err)
	}
	failures, err := opts.Meter.Int64Counter("lead_protection.sweep.failures",
		metric.WithDescription("Leads the sweep failed to process"))
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}

	return &Sweeper{
		store:         store,
		lifecycle:     lc,
		bus:           bus,
		locker:        locker,
		opts:          opts,
		log:           log,
		transitions:   transitions,
		pseudonymized: pseudonymized,
		failures:      failures,
	}, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("lead protection sweep started", slog.Duration("interval", s.opts.Interval))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("lead protection sweep failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			s.log.Info("lead protection sweep stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce processes every lead due at the current time. A lead that fails is
// logged and skipped; the run continues with the next one.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var report Report
	started := time.Now()

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, lockKey, s.opts.LockTTL)
		if err != nil {
			return report, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			s.log.Debug("lead protection sweep skipped, lock held elsewhere")
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("release sweep lock failed", slog.String("error", err.Error()))
			}
		}()
	}

	now := s.opts.Clock.Now()
	seen := make(map[uuid.UUID]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := s.store.QueryDue(ctx, now, s.opts.BatchSize)
		if err != nil {
			return report, fmt.Errorf("query due leads: %w", err)
		}

		progress := false
		for _, lead := range page {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if _, done := seen[lead.ID]; done {
				continue
			}
			seen[lead.ID] = struct{}{}
			progress = true
			report.Scanned++

			res, committed, err := s.processLead(ctx, lead.ID, now)
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failed++
				s.failures.Add(ctx, 1)
				s.log.WithContext(ctx).SweepLeadFailed(lead.ID.String(), err)
				continue
			}
			if !committed {
				continue
			}
			if res.StatusChanged() {
				report.Transitioned++
			} else {
				report.Pseudonymized++
			}
			report.Queued += len(res.Notices)
		}

		if len(page) < s.opts.BatchSize || !progress {
			break
		}
	}

	s.log.SweepCompleted(report.Scanned, report.Transitioned, report.Failed, float64(time.Since(started).Microseconds())/1000)
	return report, nil
}

// processLead re-reads the lead, evaluates it and commits at most one
// change, retrying on a stale version. Notices are committed with the change.
func (s *Sweeper) processLead(ctx context.Context, id uuid.UUID, now time.Time) (lifecycle.Result, bool, error) {
	for attempt := 1; ; attempt++ {
		lead, err := s.store.Get(ctx, id)
		if errors.Is(err, domain.ErrLeadNotFound) {
			return lifecycle.Result{}, false, nil
		}
		if err != nil {
			return lifecycle.Result{}, false, err
		}

		res, err := s.decide(now, lead)
		if err != nil || !res.Changed {
			return res, false, err
		}

		saved, err := s.store.CompareAndSwap(ctx, ports.Commit{
			ExpectedVersion: lead.Version,
			Lead:            res.Lead,
			Audit:           res.Audit,
			Activities:      res.Activities,
			Notices:         res.Notices,
		})
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			if attempt < s.opts.CommitRetries {
				continue
			}
			return res, false, apperr.Transient("lead is being modified concurrently", err)
		}
		if err != nil {
			return res, false, err
		}

		s.afterCommit(ctx, saved, res)
		return res, true, nil
	}
}

// decide picks the time-driven transition, or pseudonymization once an
// expired lead has nothing else pending.
func (s *Sweeper) decide(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
	res, err := s.lifecycle.Evaluate(now, lead)
	if err != nil || res.Changed {
		return res, err
	}
	return s.lifecycle.Pseudonymize(now, lead)
}

// afterCommit records metrics and publishes the status event for a committed
// change. The change itself stands whatever happens here.
func (s *Sweeper) afterCommit(ctx context.Context, lead domain.Lead, res lifecycle.Result) {
	if !res.StatusChanged() {
		s.pseudonymized.Add(ctx, 1)
		s.log.WithContext(ctx).Info("lead contact pseudonymized", "lead_id", lead.ID.String())
		return
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(res.From)),
		attribute.String("to", string(res.To)),
	))
	s.log.LeadTransition(lead.ID.String(), string(res.From), string(res.To), res.Trigger)

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      lead.ID,
			OwnerUserID: lead.OwnerUserID,
			TerritoryID: lead.TerritoryID,
			OldStatus:   string(res.From),
			NewStatus:   string(res.To),
			Trigger:     res.Trigger,
		})
	}
}
