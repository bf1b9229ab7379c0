package authflow

import (
	"context"
	"log/slog"

	"github.com/go-training/gcal-oauth/pkg/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*
addFlowAttributes sets attributes on the flow span. Without a recording span
(no tracer provider installed) the attributes go to the flow logger instead,
together with the trace and span ids when they are valid.
*/
func addFlowAttributes(ctx context.Context, logger *slog.Logger, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
		return
	}

	logAttrs := make([]slog.Attr, 0, len(attrs)+3)
	for _, attr := range attrs {
		logAttrs = append(logAttrs, slog.Any(string(attr.Key), attr.Value.AsInterface()))
	}
	logAttrs = append(logAttrs, slog.Bool("observability.fallback", true))
	sc := span.SpanContext()
	if sc.HasTraceID() {
		logAttrs = append(logAttrs, slog.String("trace_id", sc.TraceID().String()))
	}
	if sc.HasSpanID() {
		logAttrs = append(logAttrs, slog.String("span_id", sc.SpanID().String()))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "Flow attributes", logAttrs...)
}

func endSpan(span trace.Span, err error) {
	kind := core.KindOf(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("flow.outcome", outcomeLabel(kind)))
	span.End()
}

func outcomeLabel(kind core.ErrorKind) string {
	if kind == core.KindNone {
		return "success"
	}
	return string(kind)
}
