package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "codextasks.service"

	traceAttrTaskID = "codextasks.task_id"
)

func startSpan(ctx context.Context, name, taskID string) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption(nil)
	if taskID != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(traceAttrTaskID, taskID)))
	}
	return otel.Tracer(traceScope).Start(ctx, name, opts...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
