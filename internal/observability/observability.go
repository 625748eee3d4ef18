// Package observability wraps the OpenTelemetry trace and metric SDKs for
// the enforcement pipeline, and the structured logger every request runs
// through.
//
// Grounded on core/pkg/observability/observability.go's Provider (resource
// construction, OTLP gRPC trace/metric exporters, TrackOperation's
// start/defer span+counter+histogram pattern), generalized from HELM's RED
// metrics to this pipeline's own decision/conflict/verifier counters.
// log/slog is the teacher's own ambient logging choice (no third-party
// logging library appears anywhere in its core tree).
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
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the Provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns sane defaults; observability is disabled by
// default so tests and local CLI runs never block on a gRPC dial.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "policyguard",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider owns the process-wide tracer, meter, and the pipeline's
// decision/conflict/verifier-score instruments.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	decisionsTotal      metric.Int64Counter
	conflictsDetected   metric.Int64Counter
	verifierScoreHist   metric.Float64Histogram
	enforcementDuration metric.Float64Histogram
}

// New constructs a Provider. When cfg.Enabled is false, every instrument
// method becomes a safe no-op — callers never need to branch on whether
// telemetry is configured.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{config: cfg, logger: slog.Default().With("component", "observability")}

	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"https://opentelemetry.io/schemas/1.26.0",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("policyguard.component", "enforcement"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("observability: init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("observability: init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("policyguard", trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = otel.Meter("policyguard", metric.WithInstrumentationVersion(cfg.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("observability: init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", cfg.ServiceName, "environment", cfg.Environment, "endpoint", cfg.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error
	p.decisionsTotal, err = p.meter.Int64Counter("policyguard.decisions.total",
		metric.WithDescription("Total enforcement decisions by final action"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return err
	}
	p.conflictsDetected, err = p.meter.Int64Counter("policyguard.conflicts_detected.total",
		metric.WithDescription("Total logical conflicts found by the conflict detector"),
		metric.WithUnit("{conflict}"))
	if err != nil {
		return err
	}
	p.verifierScoreHist, err = p.meter.Float64Histogram("policyguard.verifier_score",
		metric.WithDescription("Per-verifier score distribution"),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0))
	if err != nil {
		return err
	}
	p.enforcementDuration, err = p.meter.Float64Histogram("policyguard.enforcement.duration",
		metric.WithDescription("End-to-end enforcement pipeline duration"),
		metric.WithUnit("s"))
	return err
}

// Shutdown flushes and closes the trace/metric providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Logger returns a per-request logger carrying sessionID/requestID
// attributes, falling back to the default logger when either is empty.
func (p *Provider) Logger(sessionID, requestID string) *slog.Logger {
	l := p.logger
	if sessionID != "" {
		l = l.With("session_id", sessionID)
	}
	if requestID != "" {
		l = l.With("request_id", requestID)
	}
	return l
}

// StartSpan starts a span, or returns ctx unchanged with a no-op span when
// telemetry is disabled.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, name)
}

// RecordDecision increments the decisions-by-action counter.
func (p *Provider) RecordDecision(ctx context.Context, action string) {
	if p.decisionsTotal != nil {
		p.decisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	}
}

// RecordConflicts adds n to the detected-conflicts counter.
func (p *Provider) RecordConflicts(ctx context.Context, n int) {
	if p.conflictsDetected != nil && n > 0 {
		p.conflictsDetected.Add(ctx, int64(n))
	}
}

// RecordVerifierScore records one verifier's score into the shared
// histogram, tagged by which verifier produced it.
func (p *Provider) RecordVerifierScore(ctx context.Context, verifier string, scoreValue float64) {
	if p.verifierScoreHist != nil {
		p.verifierScoreHist.Record(ctx, scoreValue, metric.WithAttributes(attribute.String("verifier", verifier)))
	}
}

// RecordEnforcementDuration records one full pipeline run's duration.
func (p *Provider) RecordEnforcementDuration(ctx context.Context, d time.Duration) {
	if p.enforcementDuration != nil {
		p.enforcementDuration.Record(ctx, d.Seconds())
	}
}
