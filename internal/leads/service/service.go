// Package service runs interactive lead operations: it checks access, asks the
// lifecycle for the next snapshot and commits it under optimistic concurrency.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/events"
	"lead_protection_backend/internal/leads/access"
	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/lifecycle"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/platform/apperr"
	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/logger"
)

const defaultRetryBackoff = 20 * time.Millisecond

// Options are the tunables of a Service.
type Options struct {
	ProtectionMonths int
	ReminderDays     int
	GraceDays        int
	CommitRetries    int
	RetryBackoff     time.Duration
	Clock            ports.Clock
}

// OptionsFromConfig reads protection lengths and the commit retry budget.
func OptionsFromConfig(protection config.ProtectionConfig, sweep config.SweepConfig) Options {
	return Options{
		ProtectionMonths: protection.GetProtectionMonths(),
		ReminderDays:     protection.GetReminderDays(),
		GraceDays:        protection.GetGraceDays(),
		CommitRetries:    sweep.GetCommitRetries(),
		RetryBackoff:     defaultRetryBackoff,
	}
}

// Service handles lead protection operations for authenticated callers.
type Service struct {
	store     ports.LeadStore
	lifecycle *lifecycle.Lifecycle
	guard     *access.Guard
	users     ports.UserExistenceChecker
	bus       events.Bus
	opts      Options
	log       *logger.Logger
}

// New creates a Service. users may be nil, in which case reassignment targets
// are not checked against the directory.
func New(store ports.LeadStore, lc *lifecycle.Lifecycle, guard *access.Guard, users ports.UserExistenceChecker, bus events.Bus, opts Options, log *logger.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.CommitRetries < 1 {
		opts.CommitRetries = 1
	}
	return &Service{
		store:     store,
		lifecycle: lc,
		guard:     guard,
		users:     users,
		bus:       bus,
		opts:      opts,
		log:       log,
	}
}

// decision computes the next snapshot of lead at now.
type decision func(now time.Time, lead domain.Lead) (lifecycle.Result, error)

// mutate is the commit loop: read, check access, decide, compare-and-swap.
// A stale version re-reads and decides again until the retry budget is spent.
func (s *Service) mutate(ctx context.Context, ac domain.AccessContext, id uuid.UUID, action domain.Action, reason string, decide decision) (domain.Lead, lifecycle.Result, error) {
	for attempt := 1; ; attempt++ {
		lead, err := s.store.Get(ctx, id)
		if err != nil {
			return domain.Lead{}, lifecycle.Result{}, mapError(err)
		}

		grant := s.guard.Decide(ac, lead, action)
		if !grant.Allowed {
			return domain.Lead{}, lifecycle.Result{}, denied(grant)
		}

		now := s.opts.Clock.Now()
		res, err := decide(now, lead)
		if err != nil {
			return domain.Lead{}, lifecycle.Result{}, mapError(err)
		}

		if grant.Override {
			if res.Audit == nil {
				rec := domain.NewAuditRecord(ac.UserID, action, lead, res.Lead, reason, now)
				res.Audit = &rec
			}
			res.Audit.Override = true
		}

		if !res.Changed && res.Audit == nil {
			for _, activity := range res.Activities {
				if err := s.store.AppendActivity(ctx, lead.ID, activity); err != nil {
					return domain.Lead{}, lifecycle.Result{}, mapError(err)
				}
			}
			return lead, res, nil
		}

		saved, err := s.store.CompareAndSwap(ctx, ports.Commit{
			ExpectedVersion: lead.Version,
			Lead:            res.Lead,
			Audit:           res.Audit,
			Activities:      res.Activities,
		})
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			if attempt >= s.opts.CommitRetries {
				return domain.Lead{}, lifecycle.Result{}, apperr.Transient("lead is being modified concurrently, retry later", err)
			}
			if err := s.backoff(ctx, attempt); err != nil {
				return domain.Lead{}, lifecycle.Result{}, err
			}
			continue
		}
		if err != nil {
			return domain.Lead{}, lifecycle.Result{}, mapError(err)
		}

		s.publish(ctx, ac.UserID, action, lead, saved, res)
		return saved, res, nil
	}
}

// backoff waits attempt² × RetryBackoff or until ctx is done.
func (s *Service) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt*attempt) * s.opts.RetryBackoff
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) publish(ctx context.Context, actor uuid.UUID, action domain.Action, before, after domain.Lead, res lifecycle.Result) {
	if res.StatusChanged() && s.log != nil {
		s.log.LeadTransition(after.ID.String(), string(res.From), string(res.To), res.Trigger)
	}
	if s.bus == nil {
		return
	}
	if res.StatusChanged() {
		s.bus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      after.ID,
			OwnerUserID: after.OwnerUserID,
			TerritoryID: after.TerritoryID,
			OldStatus:   string(res.From),
			NewStatus:   string(res.To),
			Trigger:     res.Trigger,
			ActorID:     actor,
		})
	}
	if action == domain.ActionReassign && after.OwnerUserID != nil && !before.IsOwner(*after.OwnerUserID) {
		s.bus.Publish(ctx, events.LeadReassigned{
			BaseEvent:     events.NewBaseEvent(),
			LeadID:        after.ID,
			PreviousOwner: before.OwnerUserID,
			NewOwner:      *after.OwnerUserID,
			ActorID:       actor,
			Override:      res.Audit != nil && res.Audit.Override,
		})
	}
}

func denied(d access.Decision) error {
	return apperr.Forbidden(d.Reason).WithDetails(map[string]string{"rule": string(d.Rule)})
}

// mapError translates domain and lifecycle errors into the apperr taxonomy.
func mapError(err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, domain.ErrLeadNotFound):
		return apperr.NotFound("lead not found")
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return apperr.Conflict("lead was modified concurrently")
	case errors.Is(err, domain.ErrAuditWrite):
		return apperr.AuditWrite(err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperr.InvalidTransition(err.Error())
	case errors.Is(err, lifecycle.ErrInvalidExtension),
		errors.Is(err, lifecycle.ErrInvalidOwner),
		errors.Is(err, lifecycle.ErrOwnerCollaborator):
		return apperr.Validation(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return apperr.Wrap(apperr.KindInternal, "lead store failure", err)
}
