package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/platform/config"
)

const (
	noticeMaxRetry  = 10
	noticeRetention = 30 * 24 * time.Hour
)

// Client enqueues owner notices. It implements ports.Notifier.
type Client struct {
	client *asynq.Client
	queue  string
}

var _ ports.Notifier = (*Client)(nil)

// NewClient connects the notice queue to the scheduler's Redis.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := asynqRedisOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt), queue: queueName(cfg)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// NotifyOwner enqueues the notice. A notice already enqueued for the same
// transition is treated as sent.
func (c *Client) NotifyOwner(ctx context.Context, notice domain.Notice) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewProtectionNoticeTask(notice)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(noticeTaskID(notice)),
		asynq.MaxRetry(noticeMaxRetry),
		asynq.Retention(noticeRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue protection notice: %w", err)
	}
	return nil
}
