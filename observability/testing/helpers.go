// Package testing provides in-memory OpenTelemetry providers and assertions for tests that
// check client spans and retry metrics without an external collector.
package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTraceProvider is an SDK tracer provider that records spans in memory.
type TestTraceProvider struct {
	*sdktrace.TracerProvider
	Exporter *tracetest.InMemoryExporter
}

// NewTestTraceProvider creates a tracer provider with a synchronous in-memory exporter.
func NewTestTraceProvider() *TestTraceProvider {
	exporter := tracetest.NewInMemoryExporter()
	return &TestTraceProvider{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		Exporter:       exporter,
	}
}

// TestMeterProvider is an SDK meter provider read on demand.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider
	Reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a meter provider backed by a manual reader.
func NewTestMeterProvider() *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	return &TestMeterProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		Reader:        reader,
	}
}

// Collect reads all metrics recorded so far.
func (tmp *TestMeterProvider) Collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tmp.Reader.Collect(context.Background(), &rm), "failed to collect metrics")
	return rm
}

// SpanCollector filters captured spans.
type SpanCollector struct {
	t     *testing.T
	spans tracetest.SpanStubs
}

// NewSpanCollector snapshots the spans currently held by exporter.
func NewSpanCollector(t *testing.T, exporter *tracetest.InMemoryExporter) *SpanCollector {
	t.Helper()
	return &SpanCollector{t: t, spans: exporter.GetSpans()}
}

// Len returns the number of collected spans.
func (sc *SpanCollector) Len() int {
	return len(sc.spans)
}

// WithName keeps spans called name.
func (sc *SpanCollector) WithName(name string) *SpanCollector {
	filtered := make(tracetest.SpanStubs, 0, len(sc.spans))
	for i := range sc.spans {
		if sc.spans[i].Name == name {
			filtered = append(filtered, sc.spans[i])
		}
	}
	return &SpanCollector{t: sc.t, spans: filtered}
}

// First returns the first span, failing the test when there is none.
func (sc *SpanCollector) First() tracetest.SpanStub {
	sc.t.Helper()
	require.NotEmpty(sc.t, sc.spans, "no spans in collection")
	return sc.spans[0]
}

// AssertCount asserts the number of collected spans.
func (sc *SpanCollector) AssertCount(expected int) *SpanCollector {
	sc.t.Helper()
	assert.Len(sc.t, sc.spans, expected, "unexpected number of spans")
	return sc
}

// AssertSpanAttribute asserts that span carries key with the expected value.
func AssertSpanAttribute(t *testing.T, span *tracetest.SpanStub, key string, expected any) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			assert.True(t, matchesValue(attr.Value, expected), "attribute %s: got %v, want %v", key, attr.Value.Emit(), expected)
			return
		}
	}
	t.Errorf("attribute %s not found in span %s", key, span.Name)
}

// AssertSpanError asserts an error status, and the description when desc is non-empty.
func AssertSpanError(t *testing.T, span *tracetest.SpanStub, desc string) {
	t.Helper()
	assert.Equal(t, codes.Error, span.Status.Code, "expected error status")
	if desc != "" {
		assert.Equal(t, desc, span.Status.Description, "span error description mismatch")
	}
}

// CountEvents returns how many events on span are called name.
func CountEvents(span *tracetest.SpanStub, name string) int {
	n := 0
	for _, e := range span.Events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// FindMetric returns the metric called name, or nil.
func FindMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// SumInt64 totals every data point of an int64 counter.
func SumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := FindMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T, not Sum[int64]", name, m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// HistogramCount totals the observation count of a float64 histogram.
func HistogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	m := FindMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "metric %s is %T, not Histogram[float64]", name, m.Data)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	return total
}

func matchesValue(v attribute.Value, expected any) bool {
	switch e := expected.(type) {
	case string:
		return v.AsString() == e
	case int:
		return v.AsInt64() == int64(e)
	case int64:
		return v.AsInt64() == e
	case float64:
		return v.AsFloat64() == e
	case bool:
		return v.AsBool() == e
	default:
		return false
	}
}
