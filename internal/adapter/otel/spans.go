package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "convoke"

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline.stage",
		trace.WithAttributes(
			attribute.String("stage.name", stage),
		),
	)
}

// StartSourceSpan starts a span for one consensus source call.
func StartSourceSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "consensus.source",
		trace.WithAttributes(
			attribute.String("source.name", source),
		),
	)
}

// StartApprovalSpan starts a span for an approval lifecycle operation.
func StartApprovalSpan(ctx context.Context, op, approvalID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "approval."+op,
		trace.WithAttributes(
			attribute.String("approval.id", approvalID),
		),
	)
}
