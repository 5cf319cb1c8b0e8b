package scheduler

import (
	"context"
	"fmt"
	"time"

	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/internal/notification/outbox"
	"lead_protection_backend/platform/logger"
)

const (
	dispatchInterval = 2 * time.Second
	dispatchBatch    = 50
)

// NoticeOutboxDispatcher moves committed owner notices from the outbox to the
// notice queue. A record leaves the outbox only once the queue accepted it;
// the queue's task id makes a repeated hand-off harmless.
type NoticeOutboxDispatcher struct {
	outbox   outbox.Store
	notifier ports.Notifier
	clock    ports.Clock
	log      *logger.Logger
}

func NewNoticeOutboxDispatcher(store outbox.Store, notifier ports.Notifier, log *logger.Logger) *NoticeOutboxDispatcher {
	return &NoticeOutboxDispatcher{
		outbox:   store,
		notifier: notifier,
		clock:    ports.SystemClock{},
		log:      log,
	}
}

// Run dispatches on every tick until ctx is cancelled.
func (d *NoticeOutboxDispatcher) Run(ctx context.Context) error {
	if d == nil || d.outbox == nil || d.notifier == nil {
		return nil
	}

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn("outbox claim failed", "error", err)
		}
	}
}

// DispatchOnce hands one batch of due notices to the notifier and returns how
// many it accepted. A rejected notice is released for a later attempt with the
// same backoff the worker uses.
func (d *NoticeOutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.clock.Now()
	records, err := d.outbox.ClaimPending(ctx, now, dispatchBatch)
	if err != nil {
		return 0, fmt.Errorf("claim outbox notices: %w", err)
	}

	sent := 0
	for _, rec := range records {
		if err := d.notifier.NotifyOwner(ctx, rec.Notice); err != nil {
			retryAt := now.Add(noticeRetryDelay(rec.Attempts-1, err, nil))
			if markErr := d.outbox.MarkPending(ctx, rec.ID, retryAt, err.Error()); markErr != nil {
				d.log.Warn("outbox release failed", "outbox_id", rec.ID.String(), "error", markErr)
			}
			d.log.WithContext(ctx).Warn("owner notice not queued",
				"lead_id", rec.Notice.LeadID.String(),
				"kind", string(rec.Notice.Kind),
				"attempt", rec.Attempts,
				"retry_at", retryAt,
				"error", err,
			)
			continue
		}
		// If this fails the lease expires and the notice is offered again.
		if err := d.outbox.MarkSent(ctx, rec.ID); err != nil {
			d.log.Warn("outbox mark sent failed", "outbox_id", rec.ID.String(), "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
