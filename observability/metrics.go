package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc/credentials/insecure"
)

func (p *provider) initMeterProvider() error {
	res, err := p.createResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := p.createMetricExporter()
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(p.config.Metrics.Interval),
		sdkmetric.WithTimeout(p.config.Metrics.ExportTimeout),
	)

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return nil
}

// createMetricExporter picks the exporter for the metrics endpoint. Metrics reuse the trace
// protocol, TLS and header settings.
func (p *provider) createMetricExporter() (sdkmetric.Exporter, error) {
	endpoint := p.config.Metrics.Endpoint
	if endpoint == EndpointStdout {
		return stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	}

	switch p.config.Trace.Protocol {
	case ProtocolHTTP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(endpoint)}
		if p.config.Trace.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(p.config.Trace.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(p.config.Trace.Headers))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case ProtocolGRPC:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
		if p.config.Trace.Insecure {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(p.config.Trace.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(p.config.Trace.Headers))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("metrics protocol '%s': %w", p.config.Trace.Protocol, ErrInvalidProtocol)
	}
}
