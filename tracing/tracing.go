// Package tracing configures the OpenTelemetry tracer provider. Spans are
// exported to Axiom over OTLP/HTTP when tracing is enabled.
package tracing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"keystone/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Provider is the installed tracer provider. Shutdown flushes pending spans.
type Provider struct {
	trace.TracerProvider

	sdk  *sdktrace.TracerProvider
	once sync.Once
	err  error
}

type options struct {
	exporter sdktrace.SpanExporter
	sync     bool
	logger   *zap.SugaredLogger
}

// Option customizes Setup.
type Option func(*options)

// WithExporter replaces the OTLP exporter, typically with an in-memory one.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithSyncExport exports each span as it ends instead of batching.
func WithSyncExport() Option {
	return func(o *options) { o.sync = true }
}

// WithLogger routes OpenTelemetry internal errors to logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = logger }
}

// Setup builds the tracer provider for settings and installs it globally
// together with the W3C trace-context and baggage propagators.
func Setup(ctx context.Context, settings config.Settings, opts ...Option) (*Provider, error) {
	o := options{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !settings.Tracing.Enabled {
		return &Provider{TracerProvider: noop.NewTracerProvider()}, nil
	}

	exporter := o.exporter
	if exporter == nil {
		var err error
		exporter, err = axiomExporter(ctx, settings)
		if err != nil {
			return nil, err
		}
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", settings.AppName),
		attribute.String("service.version", settings.Version),
		attribute.String("deployment.environment", settings.Environment.String()),
	)

	processor := sdktrace.WithBatcher(exporter)
	if o.sync {
		processor = sdktrace.WithSyncer(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.Tracing.SampleRatio))),
	)

	logger := o.logger
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warnw("OpenTelemetry error", "error", err)
	}))
	otel.SetTracerProvider(tp)

	return &Provider{TracerProvider: tp, sdk: tp}, nil
}

func axiomExporter(ctx context.Context, settings config.Settings) (sdktrace.SpanExporter, error) {
	apiKey := strings.TrimSpace(settings.Axiom.APIKey)
	if apiKey == "" {
		return nil, config.NewError("AXIOM_API_KEY", "is missing")
	}
	dataset := settings.TracesDatasetOrDefault()
	if dataset == "" {
		return nil, config.NewError("AXIOM_TRACES_DATASET", "no Axiom dataset configured")
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(strings.TrimRight(settings.Axiom.BaseURL, "/")+"/v1/traces"),
		otlptracehttp.WithHeaders(map[string]string{
			"Authorization":   "Bearer " + apiKey,
			"X-Axiom-Dataset": dataset,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// Shutdown flushes and stops the provider. Later calls return the first
// result.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	p.once.Do(func() {
		p.err = p.sdk.Shutdown(ctx)
	})
	return p.err
}
