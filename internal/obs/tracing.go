package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Exporters understood by InitTracer.
const (
	ExporterOTLP = "otlp"
	ExporterNone = "none"
)

// urlPathKey is set when a server span starts so the sampler can see it.
const urlPathKey = attribute.Key("url.path")

// TracingConfig controls tracer provider initialisation.
type TracingConfig struct {
	ServiceName   string
	Endpoint      string
	Exporter      string
	SamplingRatio float64
	Environment   string
	// UnsampledPaths are request paths that never produce a root span.
	// Defaults to the health and metrics endpoints scraped every few seconds.
	UnsampledPaths []string
}

func (c TracingConfig) withDefaults() TracingConfig {
	c.Exporter = strings.ToLower(strings.TrimSpace(c.Exporter))
	if c.Exporter == "" {
		c.Exporter = ExporterOTLP
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "payform-api"
	}
	if c.SamplingRatio <= 0 || c.SamplingRatio > 1 {
		c.SamplingRatio = 1
	}
	if c.UnsampledPaths == nil {
		c.UnsampledPaths = []string{"/health/live", "/health/ready", "/metrics"}
	}
	return c
}

// healthFilter drops root spans for health and metrics scrapes and defers everything else.
type healthFilter struct {
	skip map[string]struct{}
	next sdktrace.Sampler
}

func (p healthFilter) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if !trace.SpanContextFromContext(params.ParentContext).IsValid() {
		for _, kv := range params.Attributes {
			if kv.Key != urlPathKey {
				continue
			}
			if _, ok := p.skip[kv.Value.AsString()]; ok {
				return sdktrace.SamplingResult{Decision: sdktrace.Drop}
			}
		}
	}
	return p.next.ShouldSample(params)
}

func (p healthFilter) Description() string {
	return "HealthFilter{" + p.next.Description() + "}"
}

// Sampler is parent based with the configured ratio for new traces, minus UnsampledPaths.
func (c TracingConfig) Sampler() sdktrace.Sampler {
	c = c.withDefaults()
	skip := make(map[string]struct{}, len(c.UnsampledPaths))
	for _, p := range c.UnsampledPaths {
		skip[p] = struct{}{}
	}
	return healthFilter{skip: skip, next: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SamplingRatio))}
}

// NewTracerProvider builds a provider that batches spans into exp.
func NewTracerProvider(ctx context.Context, cfg TracingConfig, exp sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	cfg = cfg.withDefaults()
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.Sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// InitTracer installs the global tracer provider and W3C propagators and
// returns the provider's shutdown. ExporterNone keeps the no-op provider.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	cfg = cfg.withDefaults()
	var exp sdktrace.SpanExporter
	switch cfg.Exporter {
	case ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterOTLP:
		var opts []otlptracehttp.Option
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		}
		otlp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		exp = otlp
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
	tp, err := NewTracerProvider(ctx, cfg, exp)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
