package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/ports"
)

const tracerName = "lead_protection_backend/internal/leads/repository"

// TracingStore wraps a LeadStore with a span per call.
type TracingStore struct {
	next   ports.LeadStore
	tracer trace.Tracer
}

var _ ports.LeadStore = (*TracingStore)(nil)

func NewTracingStore(next ports.LeadStore) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	ctx, span := s.tracer.Start(ctx, "LeadStore.Get",
		trace.WithAttributes(attribute.String("lead.id", id.String())),
	)
	defer span.End()

	lead, err := s.next.Get(ctx, id)
	recordErr(span, err)
	return lead, err
}

func (s *TracingStore) Create(ctx context.Context, lead domain.Lead, activities []domain.Activity) (domain.Lead, error) {
	ctx, span := s.tracer.Start(ctx, "LeadStore.Create",
		trace.WithAttributes(
			attribute.String("lead.id", lead.ID.String()),
			attribute.String("lead.territory", lead.TerritoryID),
		),
	)
	defer span.End()

	created, err := s.next.Create(ctx, lead, activities)
	recordErr(span, err)
	return created, err
}

func (s *TracingStore) CompareAndSwap(ctx context.Context, c ports.Commit) (domain.Lead, error) {
	ctx, span := s.tracer.Start(ctx, "LeadStore.CompareAndSwap",
		trace.WithAttributes(
			attribute.String("lead.id", c.Lead.ID.String()),
			attribute.String("lead.status", string(c.Lead.Status)),
			attribute.Int64("lead.expected_version", c.ExpectedVersion),
			attribute.Bool("lead.audited", c.Audit != nil),
			attribute.Int("lead.notices", len(c.Notices)),
		),
	)
	defer span.End()

	lead, err := s.next.CompareAndSwap(ctx, c)
	recordErr(span, err)
	return lead, err
}

func (s *TracingStore) QueryDue(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	ctx, span := s.tracer.Start(ctx, "LeadStore.QueryDue",
		trace.WithAttributes(attribute.Int("query.limit", limit)),
	)
	defer span.End()

	leads, err := s.next.QueryDue(ctx, now, limit)
	if err != nil {
		recordErr(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(leads)))
	}
	return leads, err
}

func (s *TracingStore) AppendActivity(ctx context.Context, leadID uuid.UUID, activity domain.Activity) error {
	ctx, span := s.tracer.Start(ctx, "LeadStore.AppendActivity",
		trace.WithAttributes(
			attribute.String("lead.id", leadID.String()),
			attribute.String("activity.type", string(activity.Type)),
		),
	)
	defer span.End()

	err := s.next.AppendActivity(ctx, leadID, activity)
	recordErr(span, err)
	return err
}

func (s *TracingStore) ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	ctx, span := s.tracer.Start(ctx, "LeadStore.ListActivities",
		trace.WithAttributes(attribute.String("lead.id", leadID.String())),
	)
	defer span.End()

	items, err := s.next.ListActivities(ctx, leadID, limit)
	recordErr(span, err)
	return items, err
}

func (s *TracingStore) ListAudit(ctx context.Context, leadID uuid.UUID) ([]domain.AuditRecord, error) {
	ctx, span := s.tracer.Start(ctx, "LeadStore.ListAudit",
		trace.WithAttributes(attribute.String("lead.id", leadID.String())),
	)
	defer span.End()

	records, err := s.next.ListAudit(ctx, leadID)
	recordErr(span, err)
	return records, err
}

func recordErr(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
