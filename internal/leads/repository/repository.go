package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/internal/notification/outbox"
)

const pgForeignKeyViolation = "23503"

// Repository is the PostgreSQL LeadStore.
type Repository struct {
	pool *pgxpool.Pool
}

var _ ports.LeadStore = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, owner_user_id, collaborator_user_ids, territory_id, company_name,
	contact_name, contact_email, contact_phone, stage, status,
	created_at, registered_at, last_activity_at, reminder_sent_at, grace_period_start_at,
	expired_at, extended_at, pre_claim_released_at, deleted_at,
	clock_stopped_at, stop_reason, stop_approved_by,
	paused_seconds, reminder_pause_mark, grace_pause_mark,
	protection_months, reminder_days, grace_days,
	pause_baseline_seconds, pseudonymized_at, version, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		l                                     domain.Lead
		collaborators                         []uuid.UUID
		contactName, contactEmail, contactTel *string
		stage                                 int16
		status                                string
	)
	err := row.Scan(
		&l.ID, &l.OwnerUserID, &collaborators, &l.TerritoryID, &l.CompanyName,
		&contactName, &contactEmail, &contactTel, &stage, &status,
		&l.CreatedAt, &l.RegisteredAt, &l.LastActivityAt, &l.ReminderSentAt, &l.GracePeriodStartAt,
		&l.ExpiredAt, &l.ExtendedAt, &l.PreClaimReleasedAt, &l.DeletedAt,
		&l.ClockStoppedAt, &l.StopReason, &l.StopApprovedBy,
		&l.PausedSeconds, &l.ReminderPauseMark, &l.GracePauseMark,
		&l.ProtectionMonths, &l.ReminderDays, &l.GraceDays,
		&l.PauseBaseline, &l.PseudonymizedAt, &l.Version, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}

	l.Stage, err = domain.StageFromInt(int(stage))
	if err != nil {
		return domain.Lead{}, err
	}
	l.Status = domain.Status(status)
	l.CollaboratorUserIDs = collaborators
	if contactName != nil {
		l.Contact = &domain.ContactPerson{Name: *contactName, Email: deref(contactEmail), Phone: deref(contactTel)}
	}
	return l, nil
}

// Get returns a live lead; soft-deleted leads are reported as not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND deleted_at IS NULL`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, domain.ErrLeadNotFound
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// Create inserts lead at version 1 together with its initial activities.
func (r *Repository) Create(ctx context.Context, lead domain.Lead, activities []domain.Activity) (domain.Lead, error) {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		args := leadArgs(lead)
		row := tx.QueryRow(ctx, `
			INSERT INTO leads (
				id, owner_user_id, collaborator_user_ids, territory_id, company_name,
				contact_name, contact_email, contact_phone, stage, status,
				created_at, registered_at, last_activity_at, reminder_sent_at, grace_period_start_at,
				expired_at, extended_at, pre_claim_released_at, deleted_at,
				clock_stopped_at, stop_reason, stop_approved_by,
				paused_seconds, reminder_pause_mark, grace_pause_mark,
				protection_months, reminder_days, grace_days,
				pause_baseline_seconds, pseudonymized_at, version, updated_at
			)
			VALUES ($1, $2, $3::uuid[], $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, 1, now())
			RETURNING version, updated_at`, args...)
		if err := row.Scan(&lead.Version, &lead.UpdatedAt); err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		return insertActivities(ctx, tx, activities)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// CompareAndSwap writes c in one transaction: audit append, versioned update,
// activities, then outbox notices. Any failure rolls the whole unit back.
func (r *Repository) CompareAndSwap(ctx context.Context, c ports.Commit) (domain.Lead, error) {
	next := c.Lead
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if c.Audit != nil {
			if err := (auditWriter{tx: tx}).Append(ctx, *c.Audit); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrAuditWrite, err)
			}
		}

		args := append(leadArgs(next), c.ExpectedVersion)
		row := tx.QueryRow(ctx, `
			UPDATE leads SET
				owner_user_id = $2, collaborator_user_ids = $3::uuid[], territory_id = $4, company_name = $5,
				contact_name = $6, contact_email = $7, contact_phone = $8, stage = $9, status = $10,
				created_at = $11, registered_at = $12, last_activity_at = $13, reminder_sent_at = $14,
				grace_period_start_at = $15, expired_at = $16, extended_at = $17,
				pre_claim_released_at = $18, deleted_at = $19,
				clock_stopped_at = $20, stop_reason = $21, stop_approved_by = $22,
				paused_seconds = $23, reminder_pause_mark = $24, grace_pause_mark = $25,
				protection_months = $26, reminder_days = $27, grace_days = $28,
				pause_baseline_seconds = $29, pseudonymized_at = $30,
				version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $31
			RETURNING version, updated_at`, args...)
		if err := row.Scan(&next.Version, &next.UpdatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrConcurrencyConflict
			}
			return fmt.Errorf("update lead: %w", err)
		}

		if err := insertActivities(ctx, tx, c.Activities); err != nil {
			return err
		}
		return outbox.Insert(ctx, tx, c.Notices)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return next, nil
}

// QueryDue mirrors lifecycle.Evaluate as a prefilter; the sweep re-evaluates
// each lead before writing.
func (r *Repository) QueryDue(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads `+dueWhere+`
		ORDER BY updated_at ASC, id ASC
		LIMIT $3`, now, domain.PreClaimWindow.Seconds(), limit, domain.PseudonymizeAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("query due leads: %w", err)
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

const dueWhere = `
	WHERE deleted_at IS NULL
	  AND clock_stopped_at IS NULL
	  AND (
		(registered_at IS NULL AND pre_claim_released_at IS NULL AND status <> 'EXPIRED'
			AND created_at + make_interval(secs => $2) <= $1)
		OR (registered_at IS NOT NULL AND status IN ('REGISTERED', 'ACTIVE', 'EXTENDED') AND reminder_sent_at IS NULL
			AND GREATEST(registered_at, COALESCE(last_activity_at, registered_at), COALESCE(extended_at, registered_at))
				+ make_interval(days => reminder_days)
				+ make_interval(secs => GREATEST(paused_seconds - pause_baseline_seconds, 0)) <= $1)
		OR (status = 'REMINDER_SENT' AND reminder_sent_at IS NOT NULL AND grace_period_start_at IS NULL
			AND reminder_sent_at + make_interval(days => grace_days)
				+ make_interval(secs => GREATEST(paused_seconds - reminder_pause_mark, 0)) <= $1)
		OR (status = 'GRACE_PERIOD' AND grace_period_start_at IS NOT NULL AND expired_at IS NULL
			AND grace_period_start_at + make_interval(days => grace_days)
				+ make_interval(secs => GREATEST(paused_seconds - grace_pause_mark, 0)) <= $1)
		OR (status = 'EXPIRED' AND expired_at IS NOT NULL AND pseudonymized_at IS NULL
			AND expired_at + make_interval(secs => $4) <= $1)
	  )`

// AppendActivity records an activity on its own.
func (r *Repository) AppendActivity(ctx context.Context, leadID uuid.UUID, activity domain.Activity) error {
	activity.LeadID = leadID
	_, err := r.pool.Exec(ctx, insertActivitySQL, activityArgs(activity)...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return domain.ErrLeadNotFound
	}
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivities returns the newest activities first.
func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, activity_type, occurred_at, actor_id, outcome, next_action, next_action_date
		FROM lead_activities
		WHERE lead_id = $1
		ORDER BY occurred_at DESC, created_at DESC
		LIMIT $2`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		var activityType string
		if err := rows.Scan(&a.ID, &a.LeadID, &activityType, &a.OccurredAt, &a.ActorID, &a.Outcome, &a.NextAction, &a.NextActionDate); err != nil {
			return nil, err
		}
		a.Type = domain.ActivityType(activityType)
		items = append(items, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func leadArgs(l domain.Lead) []any {
	var contactName, contactEmail, contactPhone *string
	if l.Contact != nil {
		contactName = &l.Contact.Name
		contactEmail = nullIfEmpty(l.Contact.Email)
		contactPhone = nullIfEmpty(l.Contact.Phone)
	}
	collaborators := l.CollaboratorUserIDs
	if collaborators == nil {
		collaborators = []uuid.UUID{}
	}
	return []any{
		l.ID, l.OwnerUserID, collaborators, l.TerritoryID, l.CompanyName,
		contactName, contactEmail, contactPhone, int16(l.Stage.Int()), string(l.Status),
		l.CreatedAt, l.RegisteredAt, l.LastActivityAt, l.ReminderSentAt, l.GracePeriodStartAt,
		l.ExpiredAt, l.ExtendedAt, l.PreClaimReleasedAt, l.DeletedAt,
		l.ClockStoppedAt, l.StopReason, l.StopApprovedBy,
		l.PausedSeconds, l.ReminderPauseMark, l.GracePauseMark,
		l.ProtectionMonths, l.ReminderDays, l.GraceDays,
		l.PauseBaseline, l.PseudonymizedAt,
	}
}

const insertActivitySQL = `
	INSERT INTO lead_activities (id, lead_id, activity_type, occurred_at, actor_id, outcome, next_action, next_action_date)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func activityArgs(a domain.Activity) []any {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return []any{a.ID, a.LeadID, string(a.Type), a.OccurredAt, a.ActorID, a.Outcome, a.NextAction, a.NextActionDate}
}

func insertActivities(ctx context.Context, tx pgx.Tx, activities []domain.Activity) error {
	for _, a := range activities {
		if _, err := tx.Exec(ctx, insertActivitySQL, activityArgs(a)...); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
