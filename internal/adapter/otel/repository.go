package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/bookiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/bookiq/internal/adapter/otel"

// TracingRepository wraps a domain.RequestRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingRepository struct {
	next   domain.RequestRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.RequestRepository.
var _ domain.RequestRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.RequestRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Insert(ctx context.Context, req domain.Request) error {
	ctx, span := r.tracer.Start(ctx, "RequestRepository.Insert",
		trace.WithAttributes(
			attribute.String("request.id", req.ID),
			attribute.String("request.kind", string(req.Kind)),
			attribute.String("resource.id", req.ResourceID),
		),
	)
	defer span.End()

	err := r.next.Insert(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) GetByID(ctx context.Context, id string) (domain.Request, error) {
	ctx, span := r.tracer.Start(ctx, "RequestRepository.GetByID",
		trace.WithAttributes(attribute.String("request.id", id)),
	)
	defer span.End()

	req, err := r.next.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return req, err
}

func (r *TracingRepository) Update(ctx context.Context, req domain.Request, expectedVersion int64) (domain.Request, error) {
	ctx, span := r.tracer.Start(ctx, "RequestRepository.Update",
		trace.WithAttributes(
			attribute.String("request.id", req.ID),
			attribute.String("request.status", string(req.Status)),
			attribute.Int64("request.version", expectedVersion),
		),
	)
	defer span.End()

	updated, err := r.next.Update(ctx, req, expectedVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return updated, err
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Request, error) {
	ctx, span := r.tracer.Start(ctx, "RequestRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.ResourceID != "" {
		span.SetAttributes(attribute.String("filter.resource_id", filter.ResourceID))
	}
	if filter.Kind != nil {
		span.SetAttributes(attribute.String("filter.kind", string(*filter.Kind)))
	}

	requests, err := r.next.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(requests)))
	}
	return requests, err
}
