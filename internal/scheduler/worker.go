package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"lead_protection_backend/internal/email"
	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/logger"
)

// LeadReader is the slice of the lead store the notice handler reads.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

// NoticeHandler delivers a queued owner notice by email.
type NoticeHandler struct {
	leads   LeadReader
	users   ports.UserProvider
	sender  email.Sender
	baseURL string
	log     *logger.Logger
}

func NewNoticeHandler(leads LeadReader, users ports.UserProvider, sender email.Sender, baseURL string, log *logger.Logger) *NoticeHandler {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &NoticeHandler{
		leads:   leads,
		users:   users,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// ProcessTask sends the notice. Malformed payloads and vanished recipients are
// not retried.
func (h *NoticeHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProtectionNoticePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("%w: lead id: %v", asynq.SkipRetry, err)
	}
	ownerID, err := uuid.Parse(payload.OwnerID)
	if err != nil {
		return fmt.Errorf("%w: owner id: %v", asynq.SkipRetry, err)
	}

	lead, err := h.leads.Get(ctx, leadID)
	if errors.Is(err, domain.ErrLeadNotFound) {
		h.log.WithContext(ctx).Info("protection notice dropped, lead gone", "lead_id", leadID.String(), "kind", payload.Kind)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	owner, err := h.users.GetUserByID(ctx, ownerID)
	if err != nil {
		h.log.WithContext(ctx).Warn("protection notice dropped, owner unresolved",
			"lead_id", leadID.String(), "owner_id", ownerID.String(), "error", err)
		return fmt.Errorf("%w: owner: %v", asynq.SkipRetry, err)
	}
	if owner.Email == "" {
		return nil
	}

	notice := email.ProtectionNotice{
		Kind:        payload.Kind,
		OwnerName:   owner.DisplayName,
		CompanyName: lead.CompanyName,
		LeadURL:     fmt.Sprintf("%s/leads/%s", h.baseURL, leadID),
		StampedAt:   payload.StampedAt,
		DueAt:       payload.DueAt,
	}
	if err := h.sender.SendProtectionNotice(ctx, owner.Email, notice); err != nil {
		return fmt.Errorf("send protection notice: %w", err)
	}
	return nil
}

// Worker consumes the notice queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

const (
	defaultConcurrency = 5
	maxRetryDelay      = 6 * time.Hour
)

// NewWorker builds the asynq server for the notice queue. Failed deliveries
// back off exponentially from one minute, capped at six hours, so ten retries
// span roughly two days.
func NewWorker(cfg config.SchedulerConfig, notices *NoticeHandler, log *logger.Logger) (*Worker, error) {
	opt, err := asynqRedisOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{queueName(cfg): 1},
		ShutdownTimeout: 10 * time.Second,
		RetryDelayFunc:  noticeRetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.WithContext(ctx).Warn("protection notice failed",
				"task", task.Type(), "retry", retried, "max_retry", maxRetry, "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProtectionNotice, notices.ProcessTask)

	return &Worker{server: server, mux: mux, log: log}, nil
}

func noticeRetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n > 9 {
		return maxRetryDelay
	}
	d := time.Minute << n
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	w.log.Info("scheduler worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
