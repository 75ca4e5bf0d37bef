// Package observability provides OpenTelemetry tracing and metrics for the
// compliance engine: spans around refresh cycles and RED-style counters for
// source fetches and cache behavior. Disabled configs yield a no-op provider
// so library callers pay nothing.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC endpoint, e.g. "localhost:4317"
	Enabled        bool
	Insecure       bool // dev only
}

// DefaultConfig returns defaults suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "building-compliance-engine",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	}
}

// Provider holds the tracer and the engine's instruments. A nil *Provider is
// a safe no-op everywhere.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	fetchCounter  metric.Int64Counter
	fetchErrors   metric.Int64Counter
	fetchDuration metric.Float64Histogram
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
}

// New creates an observability provider. With Enabled false it returns a
// fully functional no-op provider.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{
		tracer: noop.NewTracerProvider().Tracer("buildingcompliance"),
		logger: slog.Default().With("component", "observability"),
	}
	if !cfg.Enabled {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("buildingcompliance")

	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	meter := p.meterProvider.Meter("buildingcompliance")

	if p.fetchCounter, err = meter.Int64Counter("compliance.source.fetches",
		metric.WithDescription("Source adapter fetches")); err != nil {
		return nil, err
	}
	if p.fetchErrors, err = meter.Int64Counter("compliance.source.errors",
		metric.WithDescription("Source adapter failures")); err != nil {
		return nil, err
	}
	if p.fetchDuration, err = meter.Float64Histogram("compliance.source.duration",
		metric.WithDescription("Source fetch duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if p.cacheHits, err = meter.Int64Counter("compliance.cache.hits",
		metric.WithDescription("Refresh cache hits")); err != nil {
		return nil, err
	}
	if p.cacheMisses, err = meter.Int64Counter("compliance.cache.misses",
		metric.WithDescription("Refresh cache misses")); err != nil {
		return nil, err
	}
	return p, nil
}

// Tracer returns the engine tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer("buildingcompliance")
	}
	return p.tracer
}

// RecordFetch records one source fetch with its duration and outcome,
// attributed by the category being refreshed.
func (p *Provider) RecordFetch(ctx context.Context, category string, d time.Duration, err error) {
	if p == nil || p.fetchCounter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("category", category))
	p.fetchCounter.Add(ctx, 1, attrs)
	p.fetchDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		p.fetchErrors.Add(ctx, 1, attrs)
	}
}

// RecordCacheHit records a refresh-cache hit.
func (p *Provider) RecordCacheHit(ctx context.Context, category string) {
	if p == nil || p.cacheHits == nil {
		return
	}
	p.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// RecordCacheMiss records a refresh-cache miss.
func (p *Provider) RecordCacheMiss(ctx context.Context, category string) {
	if p == nil || p.cacheMisses == nil {
		return
	}
	p.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "meter shutdown", "err", err)
		}
	}
	if p.tracerProvider != nil {
		return p.tracerProvider.Shutdown(ctx)
	}
	return nil
}
