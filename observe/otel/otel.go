// Package otel turns observe events into OpenTelemetry spans, one span per
// function invocation.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/PipeOpsHQ/financeira-functions/observe"
)

const instrumentationName = "github.com/PipeOpsHQ/financeira-functions"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

// Emit records event as a finished span. The span keeps the caller's trace
// when ctx carries one.
func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	event.Normalize()
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := event.Timestamp
	_, span := s.tracer.Start(ctx, spanNameFor(event),
		trace.WithTimestamp(startTime),
		trace.WithSpanKind(spanKindFor(event.Kind)),
	)

	attrs := []attribute.KeyValue{
		attribute.String("function.kind", string(event.Kind)),
	}
	if event.Function != "" {
		attrs = append(attrs, attribute.String("function.name", event.Function))
	}
	if event.ID != "" {
		attrs = append(attrs, attribute.String("function.invocation.id", event.ID))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("function.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("function.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("function.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("function.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	switch event.Status {
	case observe.StatusFailed:
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	case observe.StatusCompleted, observe.StatusSkipped:
		span.SetStatus(codes.Ok, "")
	}

	endTime := startTime
	if event.DurationMs > 0 {
		endTime = startTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	prefix := "function"
	switch event.Kind {
	case observe.KindCallable:
		prefix = "callable"
	case observe.KindSchedule:
		prefix = "schedule"
	case observe.KindTrigger:
		prefix = "trigger"
	}
	if event.Function == "" {
		return prefix + ".invoke"
	}
	return prefix + "." + event.Function
}

func spanKindFor(kind observe.Kind) trace.SpanKind {
	if kind == observe.KindCallable {
		return trace.SpanKindServer
	}
	return trace.SpanKindConsumer
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
