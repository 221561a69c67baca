package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(&Config{Enabled: false})
	require.NoError(t, err)

	assert.IsType(t, noop.NewTracerProvider(), p.TracerProvider())
	assert.IsType(t, metricnoop.NewMeterProvider(), p.MeterProvider())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, Shutdown(p, time.Second))
}

func TestNewProviderStdout(t *testing.T) {
	p, err := NewProvider(&Config{
		Enabled: true,
		Service: ServiceConfig{Name: "retryhttp-test"},
	}, WithoutGlobal())
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, p.TracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, p.MeterProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNewProviderTracesOnly(t *testing.T) {
	p, err := NewProvider(&Config{
		Enabled: true,
		Service: ServiceConfig{Name: "svc"},
		Metrics: MetricsConfig{Enabled: BoolPtr(false)},
	}, WithoutGlobal())
	require.NoError(t, err)
	defer func() { _ = Shutdown(p, time.Second) }()

	assert.IsType(t, &sdktrace.TracerProvider{}, p.TracerProvider())
	assert.IsType(t, metricnoop.NewMeterProvider(), p.MeterProvider())
}

func TestNewProviderDoesNotMutateInput(t *testing.T) {
	cfg := &Config{Enabled: true, Service: ServiceConfig{Name: "svc"}}
	p, err := NewProvider(cfg, WithoutGlobal())
	require.NoError(t, err)
	defer func() { _ = Shutdown(p, time.Second) }()

	assert.Empty(t, cfg.Trace.Endpoint)
	assert.Nil(t, cfg.Trace.Enabled)
}

func TestNewProviderInvalid(t *testing.T) {
	_, err := NewProvider(&Config{Enabled: true})
	assert.ErrorIs(t, err, ErrMissingServiceName)

	_, err = NewProvider(nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	assert.Panics(t, func() { MustNewProvider(&Config{Enabled: true}) })
}

func TestShutdownNilProvider(t *testing.T) {
	assert.NoError(t, Shutdown(nil, 0))
}
