package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

func (s *Service) startSpan(ctx context.Context, name string, evidenceID *id.EvidenceID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("tenant.id", requestcontext.TenantID(ctx).String()),
		attribute.String("request.id", requestcontext.RequestID(ctx)),
	}
	if evidenceID != nil {
		attrs = append(attrs, attribute.String("evidence.id", evidenceID.String()))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		code := dErrors.CodeOf(err)
		span.SetAttributes(attribute.String("error.code", string(code)))
		if code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(code))
		}
	}
	span.End()
}
