package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/ports"
)

// auditWriter appends audit records inside the transaction of the change they
// describe, so a failed append rolls the change back.
type auditWriter struct {
	tx pgx.Tx
}

var _ ports.AuditSink = auditWriter{}

func (w auditWriter) Append(ctx context.Context, rec domain.AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := w.tx.Exec(ctx, `
		INSERT INTO lead_audit_records (
			id, lead_id, actor_id, action, override, prior_owner, new_owner,
			prior_status, new_status, reason, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.LeadID, rec.ActorID, string(rec.Action), rec.Override, rec.PriorOwner, rec.NewOwner,
		string(rec.PriorStatus), string(rec.NewStatus), rec.Reason, rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListAudit returns a lead's audit trail, newest first.
func (r *Repository) ListAudit(ctx context.Context, leadID uuid.UUID) ([]domain.AuditRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, actor_id, action, override, prior_owner, new_owner,
			prior_status, new_status, reason, occurred_at
		FROM lead_audit_records
		WHERE lead_id = $1
		ORDER BY occurred_at DESC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0)
	for rows.Next() {
		var rec domain.AuditRecord
		var action, prior, next string
		if err := rows.Scan(&rec.ID, &rec.LeadID, &rec.ActorID, &action, &rec.Override, &rec.PriorOwner, &rec.NewOwner,
			&prior, &next, &rec.Reason, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.Action = domain.Action(action)
		rec.PriorStatus = domain.Status(prior)
		rec.NewStatus = domain.Status(next)
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
