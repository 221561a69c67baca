// Package observability builds the OpenTelemetry tracer and meter providers that the client
// and the retry coordinator report to.
package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials/insecure"
)

// Provider manages the lifecycle of the tracer and meter providers.
type Provider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider

	// Shutdown flushes pending telemetry and releases exporters.
	Shutdown(ctx context.Context) error

	// ForceFlush exports pending telemetry immediately.
	ForceFlush(ctx context.Context) error
}

type provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	mu             sync.Mutex
}

// Option customizes provider construction.
type Option func(*options)

type options struct {
	setGlobal bool
}

// WithoutGlobal keeps the providers out of the otel globals. Tests use it to stay isolated.
func WithoutGlobal() Option {
	return func(o *options) { o.setGlobal = false }
}

// NewProvider creates a provider from cfg. Defaults are applied to a copy before validation,
// and a disabled configuration yields a no-op provider.
func NewProvider(cfg *Config, opts ...Option) (Provider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	o := options{setGlobal: true}
	for _, opt := range opts {
		opt(&o)
	}

	safeCfg := *cfg
	safeCfg.ApplyDefaults()
	if err := safeCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	if !safeCfg.Enabled {
		return disabled{}, nil
	}

	p := &provider{config: safeCfg}

	if safeCfg.Trace.Enabled != nil && *safeCfg.Trace.Enabled {
		if err := p.initTraceProvider(); err != nil {
			return nil, fmt.Errorf("failed to initialize trace provider: %w", err)
		}
	}

	if safeCfg.Metrics.Enabled != nil && *safeCfg.Metrics.Enabled {
		if err := p.initMeterProvider(); err != nil {
			return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
		}
	}

	if o.setGlobal {
		if p.tracerProvider != nil {
			otel.SetTracerProvider(p.tracerProvider)
		}
		if p.meterProvider != nil {
			otel.SetMeterProvider(p.meterProvider)
		}
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return p, nil
}

// disabled is the Provider of a configuration with Enabled false. It records nothing.
type disabled struct{}

func (disabled) TracerProvider() trace.TracerProvider { return noop.NewTracerProvider() }

func (disabled) MeterProvider() metric.MeterProvider { return metricnoop.NewMeterProvider() }

func (disabled) Shutdown(context.Context) error { return nil }

func (disabled) ForceFlush(context.Context) error { return nil }

// MustNewProvider is NewProvider that panics on error.
func MustNewProvider(cfg *Config, opts ...Option) Provider {
	p, err := NewProvider(cfg, opts...)
	if err != nil {
		panic(fmt.Errorf("failed to create observability provider: %w", err))
	}
	return p
}

func (p *provider) initTraceProvider() error {
	res, err := p.createResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := p.createTraceExporter()
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(p.config.Trace.BatchTimeout),
		sdktrace.WithExportTimeout(p.config.Trace.ExportTimeout),
	)

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(*p.config.Trace.SampleRate))),
	)
	return nil
}

func (p *provider) createResource() (*resource.Resource, error) {
	customRes, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(p.config.Service.Name),
			semconv.ServiceVersion(p.config.Service.Version),
			semconv.DeploymentEnvironmentName(p.config.Environment),
		),
	)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), customRes)
}

func (p *provider) createTraceExporter() (sdktrace.SpanExporter, error) {
	if p.config.Trace.Endpoint == EndpointStdout {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	switch p.config.Trace.Protocol {
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(p.config.Trace.Endpoint)}
		if p.config.Trace.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(p.config.Trace.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(p.config.Trace.Headers))
		}
		return otlptracehttp.New(context.Background(), opts...)
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.Trace.Endpoint)}
		if p.config.Trace.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(p.config.Trace.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(p.config.Trace.Headers))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("trace protocol '%s': %w", p.config.Trace.Protocol, ErrInvalidProtocol)
	}
}

// TracerProvider returns the SDK tracer provider, or a no-op one when tracing is off.
func (p *provider) TracerProvider() trace.TracerProvider {
	if p.tracerProvider == nil {
		return noop.NewTracerProvider()
	}
	return p.tracerProvider
}

// MeterProvider returns the SDK meter provider, or a no-op one when metrics are off.
func (p *provider) MeterProvider() metric.MeterProvider {
	if p.meterProvider == nil {
		return metricnoop.NewMeterProvider()
	}
	return p.meterProvider
}

//nolint:dupl // Shutdown and ForceFlush have similar structure but different semantics
func (p *provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

//nolint:dupl // Shutdown and ForceFlush have similar structure but different semantics
func (p *provider) ForceFlush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush errors: %w", errors.Join(errs...))
	}
	return nil
}
