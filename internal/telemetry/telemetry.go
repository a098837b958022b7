// Package telemetry configures OpenTelemetry tracing for the process.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type options struct {
	syncExport bool
}

type Option func(*options)

// WithSyncExport exports each span as it ends instead of batching. Use it
// where the process may be frozen between requests and never reach shutdown.
func WithSyncExport() Option {
	return func(o *options) {
		o.syncExport = true
	}
}

// Setup exports spans to the OTLP/HTTP endpoint and registers the provider
// globally. With an empty endpoint tracing stays off and the returned
// provider is a no-op. The shutdown function flushes pending spans.
func Setup(ctx context.Context, serviceName, endpoint string, opts ...Option) (trace.TracerProvider, func(context.Context) error, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	noopShutdown := func(context.Context) error { return nil }
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return noop.NewTracerProvider(), noopShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, noopShutdown, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, noopShutdown, err
	}

	export := sdktrace.WithBatcher(exporter)
	if o.syncExport {
		export = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp, tp.Shutdown, nil
}
