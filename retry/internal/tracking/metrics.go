// Package tracking records OpenTelemetry metrics for retry coordination.
package tracking

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Meter name for retry instrumentation
	meterName = "go-retryhttp/retry"

	metricAttempts = "http.client.request.attempts" // Counter
	metricRetries  = "http.client.request.retries"  // Counter
	metricWait     = "http.client.retry.wait"       // Histogram in seconds

	attrHTTPRequestMethod  = "http.request.method"
	attrHTTPResponseStatus = "http.response.status_code"
	attrErrorType          = "error.type"
	attrRetryPolicy        = "retry.policy"
)

var waitBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// Metrics holds the retry instruments. A nil *Metrics or nil instrument is a no-op.
type Metrics struct {
	attempts metric.Int64Counter
	retries  metric.Int64Counter
	wait     metric.Float64Histogram
}

// logMetricError logs a metric initialization error to stderr.
// Metrics failures never break request execution.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize retry metric %s: %v\n", metricName, err)
	}
}

// New creates the instruments on mp, or on the global meter provider when mp is nil.
func New(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}

	var err error
	m.attempts, err = meter.Int64Counter(
		metricAttempts,
		metric.WithDescription("Number of HTTP dispatch attempts, including the first"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricAttempts, err)

	m.retries, err = meter.Int64Counter(
		metricRetries,
		metric.WithDescription("Number of retries scheduled by a retry policy"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricRetries, err)

	m.wait, err = meter.Float64Histogram(
		metricWait,
		metric.WithDescription("Delay waited before a retry"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(waitBuckets...),
	)
	logMetricError(metricWait, err)

	return m
}

// RecordAttempt counts one completed dispatch attempt.
// status is 0 and errType non-empty when the attempt failed below the HTTP layer.
func (m *Metrics) RecordAttempt(ctx context.Context, method string, status int, errType string) {
	if m == nil || m.attempts == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrHTTPRequestMethod, method)}
	if status > 0 {
		attrs = append(attrs, attribute.Int(attrHTTPResponseStatus, status))
	}
	if errType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errType))
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRetry counts one scheduled retry and the wait that precedes it.
func (m *Metrics) RecordRetry(ctx context.Context, method, policy string, wait time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrHTTPRequestMethod, method),
		attribute.String(attrRetryPolicy, policy),
	)
	if m.retries != nil {
		m.retries.Add(ctx, 1, attrs)
	}
	if m.wait != nil {
		m.wait.Record(ctx, wait.Seconds(), attrs)
	}
}
