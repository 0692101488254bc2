package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scopePrefix = "github.com/dmitrymomot/oauth2client/"

// Config holds instrumentation configuration.
type Config struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"oauth2client"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION" envDefault:"unknown"`
	Enabled        bool   `env:"OTEL_ENABLED" envDefault:"false"`

	// Optional explicit providers. Nil means the otel globals.
	MeterProvider  metric.MeterProvider  `env:"-"`
	TracerProvider trace.TracerProvider `env:"-"`
}

// Instrumentation holds providers and pre-built metric instruments.
type Instrumentation struct {
	resource       *resource.Resource
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metrics        *Metrics
}

// New creates an Instrumentation from cfg.
func New(cfg Config) (*Instrumentation, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "oauth2client"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "unknown"
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	inst := &Instrumentation{resource: res}

	switch {
	case !cfg.Enabled:
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	default:
		inst.meterProvider = cfg.MeterProvider
		if inst.meterProvider == nil {
			inst.meterProvider = otel.GetMeterProvider()
		}
		inst.tracerProvider = cfg.TracerProvider
		if inst.tracerProvider == nil {
			inst.tracerProvider = otel.GetTracerProvider()
		}
	}

	inst.metrics, err = newMetrics(inst.Meter("oauth2"))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Noop returns instrumentation that records nothing.
func Noop() *Instrumentation {
	inst, _ := New(Config{})
	return inst
}

// Meter returns a meter named after the given scope.
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a tracer named after the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the pre-built instruments.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// Resource describes the instrumented service.
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}

// StartSpan starts a span under the given scope.
func (i *Instrumentation) StartSpan(ctx context.Context, scope, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return i.Tracer(scope).Start(ctx, name, trace.WithAttributes(attrs...))
}
