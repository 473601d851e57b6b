// Package tracing wraps OpenTelemetry for the query and crud engines. Until a
// provider is installed every span is a no-op.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/bitechdev/autoquery/pkg/config"
)

var tracer trace.Tracer

const (
	AttrRequestType  = attribute.Key("autoquery.request_type")
	AttrTable        = attribute.Key("autoquery.table")
	AttrOperation    = attribute.Key("autoquery.operation")
	AttrRowsAffected = attribute.Key("autoquery.rows_affected")
	AttrResultCount  = attribute.Key("autoquery.result_count")
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is an OTLP gRPC address such as localhost:4317
	Endpoint string
	Enabled  bool
}

func FromConfig(cfg config.TracingConfig) Config {
	return Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.Endpoint,
		Enabled:        cfg.Enabled,
	}
}

// InitTracer exports spans over OTLP gRPC and installs the provider globally.
// The returned func flushes and stops the exporter.
func InitTracer(cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	ctx := context.Background()

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	tracer = tp.Tracer(cfg.ServiceName)
	return tp.Shutdown, nil
}

// UseTracerProvider traces through tp instead of one built by InitTracer. A
// nil tp disables tracing.
func UseTracerProvider(tp trace.TracerProvider, name string) {
	if tp == nil {
		tracer = nil
		return
	}
	tracer = tp.Tracer(name)
}

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartOperation opens the span of one engine operation on table. finish
// records err when non-nil and ends the span.
func StartOperation(ctx context.Context, operation, requestType, table string) (context.Context, func(err error)) {
	ctx, span := StartSpan(ctx, "autoquery."+operation,
		AttrOperation.String(operation),
		AttrRequestType.String(requestType),
		AttrTable.String(table),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// SetAttributes annotates the span carried by ctx.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
