package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sofia"

// StartExecutionSpan starts a span for one orchestration execution.
func StartExecutionSpan(ctx context.Context, executionID, orchestrationID, strategy string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "execution",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("orchestration.id", orchestrationID),
			attribute.String("orchestration.strategy", strategy),
		),
	)
}

// StartStepSpan starts a span for a single agent step.
func StartStepSpan(ctx context.Context, agentID, role string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("agent.role", role),
		),
	)
}

// StartDispatchSpan starts a span for one output channel delivery.
func StartDispatchSpan(ctx context.Context, executionID, outputType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("dispatch.type", outputType),
		),
	)
}
