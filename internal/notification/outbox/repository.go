// Package outbox stores owner notices until they reach the task queue. Rows are
// written in the transaction that commits the transition, so a notice exists
// exactly when its transition does.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_protection_backend/internal/leads/domain"
)

// ClaimLease is how long a claimed record stays invisible to other
// dispatchers. A dispatcher that dies mid-batch loses its claims after it.
const ClaimLease = 5 * time.Minute

const errRepoNotConfigured = "outbox repository not configured"

// Record is a pending notice.
type Record struct {
	ID       uuid.UUID
	Notice   domain.Notice
	Attempts int
}

// Store is the dispatch side of the outbox.
type Store interface {
	// ClaimPending leases up to limit records due at now.
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]Record, error)
	// MarkSent retires a record.
	MarkSent(ctx context.Context, id uuid.UUID) error
	// MarkPending releases a record for another attempt at retryAt.
	MarkPending(ctx context.Context, id uuid.UUID, retryAt time.Time, lastError string) error
}

// Repository is the PostgreSQL outbox.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes notices inside tx. A notice already stored for the same lead,
// kind and stamp is skipped.
func Insert(ctx context.Context, tx pgx.Tx, notices []domain.Notice) error {
	for _, n := range notices {
		var dueAt *time.Time
		if !n.DueAt.IsZero() {
			dueAt = &n.DueAt
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO lead_notice_outbox (id, lead_id, owner_id, kind, stamped_at, due_at, run_at)
			VALUES ($1, $2, $3, $4, $5, $6, $5)
			ON CONFLICT ON CONSTRAINT lead_notice_outbox_once DO NOTHING`,
			uuid.New(), n.LeadID, n.OwnerID, string(n.Kind), n.StampedAt, dueAt)
		if err != nil {
			return fmt.Errorf("insert outbox notice: %w", err)
		}
	}
	return nil
}

func (r *Repository) ClaimPending(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM lead_notice_outbox
		WHERE status = 'pending' AND run_at <= $1
		ORDER BY run_at ASC, id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE lead_notice_outbox o
	SET run_at = $1 + make_interval(secs => $3), attempts = o.attempts + 1, updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING o.id, o.lead_id, o.owner_id, o.kind, o.stamped_at, o.due_at, o.attempts`,
		now, limit, ClaimLease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var kind string
		var dueAt *time.Time
		if err := rows.Scan(&rec.ID, &rec.Notice.LeadID, &rec.Notice.OwnerID, &kind, &rec.Notice.StampedAt, &dueAt, &rec.Attempts); err != nil {
			return nil, err
		}
		rec.Notice.Kind = domain.NoticeKind(kind)
		if dueAt != nil {
			rec.Notice.DueAt = *dueAt
		}
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE lead_notice_outbox
		 SET status = 'sent', last_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	return err
}

func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, retryAt time.Time, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE lead_notice_outbox
		 SET status = 'pending', run_at = $2, last_error = $3, updated_at = now()
		 WHERE id = $1`,
		id, retryAt, lastError,
	)
	return err
}
