package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codeswarm"

// StartSpawnSpan starts a span for an agent spawn.
func StartSpawnSpan(ctx context.Context, agentName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "spawn",
		trace.WithAttributes(
			attribute.String("agent.name", agentName),
		),
	)
}

// StartWriteAccessSpan starts a span for a write-access request.
func StartWriteAccessSpan(ctx context.Context, agentID, path string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "write_access",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("file.path", path),
		),
	)
}

// StartResolveSpan starts a span for a conflict resolution.
func StartResolveSpan(ctx context.Context, path, strategy string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "resolve_conflict",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.String("conflict.strategy", strategy),
		),
	)
}
