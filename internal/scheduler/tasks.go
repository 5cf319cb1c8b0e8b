package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"lead_protection_backend/internal/leads/domain"
)

const TaskProtectionNotice = "leads.protection.notice"

type ProtectionNoticePayload struct {
	LeadID    string    `json:"leadId"`
	OwnerID   string    `json:"ownerId"`
	Kind      string    `json:"kind"`
	StampedAt time.Time `json:"stampedAt"`
	DueAt     time.Time `json:"dueAt,omitempty"`
}

func NewProtectionNoticeTask(notice domain.Notice) (*asynq.Task, error) {
	data, err := json.Marshal(ProtectionNoticePayload{
		LeadID:    notice.LeadID.String(),
		OwnerID:   notice.OwnerID.String(),
		Kind:      string(notice.Kind),
		StampedAt: notice.StampedAt.UTC(),
		DueAt:     notice.DueAt.UTC(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProtectionNotice, data), nil
}

func ParseProtectionNoticePayload(task *asynq.Task) (ProtectionNoticePayload, error) {
	var payload ProtectionNoticePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProtectionNoticePayload{}, err
	}
	return payload, nil
}

// noticeTaskID is stable per lead, kind and transition stamp, so a notice
// enqueued twice for the same transition is delivered once.
func noticeTaskID(notice domain.Notice) string {
	return fmt.Sprintf("%s:%s:%d", notice.LeadID, notice.Kind, notice.StampedAt.Unix())
}
