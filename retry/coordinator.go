package retry

import (
	"context"
	"io"
	nethttp "net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-retryhttp/logger"
	"github.com/gaborage/go-retryhttp/retry/internal/tracking"
)

const (
	tracerName = "go-retryhttp/retry"

	// maxDrainBytes bounds how much of a discarded response body is read so the
	// connection can be reused.
	maxDrainBytes = 64 << 10
)

// Source produces a fresh outgoing request for every attempt.
// *snapshot.Snapshot satisfies it.
type Source interface {
	Materialize(ctx context.Context) (*nethttp.Request, error)
}

// Doer sends one request. *http.Client satisfies it.
type Doer interface {
	Do(req *nethttp.Request) (*nethttp.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *nethttp.Request) (*nethttp.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *nethttp.Request) (*nethttp.Response, error) {
	return f(req)
}

// WaitFunc suspends for d or until ctx is done, returning ctx.Err() in the latter case.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Result describes a finished coordination.
type Result struct {
	Response *nethttp.Response
	// Attempts is the number of dispatches made.
	Attempts int
	// Waited is the total time spent between attempts.
	Waited time.Duration
}

// Coordinator repeats dispatch attempts under control of an ordered policy chain.
// It holds no per-call state and is safe for concurrent use.
type Coordinator struct {
	policies    []Policy
	logger      logger.Logger
	maxAttempts int
	wait        WaitFunc
	tracer      trace.Tracer
	metrics     *tracking.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxAttempts sets a ceiling on total attempts regardless of what policies vote.
// n <= 0 leaves the loop bounded only by the policies.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) { c.maxAttempts = n }
}

// WithWait replaces the inter-attempt wait, mainly for tests.
func WithWait(fn WaitFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.wait = fn
		}
	}
}

// WithTracerProvider sets the provider used for the coordination span.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithMeterProvider sets the provider used for attempt and retry metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Coordinator) {
		if mp != nil {
			c.metrics = tracking.New(mp)
		}
	}
}

// NewCoordinator creates a coordinator over policies, evaluated in the given order.
// An empty chain behaves like Never. A nil log discards coordination logs.
func NewCoordinator(log logger.Logger, policies []Policy, opts ...Option) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	c := &Coordinator{
		policies: slices.Clone(policies),
		logger:   log,
		wait:     Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.metrics == nil {
		c.metrics = tracking.New(nil)
	}
	return c
}

// WithPolicies returns a coordinator whose chain is c's followed by extra. The result shares
// c's tracer, metric instruments, wait function and attempt ceiling.
func (c *Coordinator) WithPolicies(extra ...Policy) *Coordinator {
	if len(extra) == 0 {
		return c
	}
	derived := *c
	derived.policies = append(slices.Clone(c.policies), extra...)
	return &derived
}

// Policies returns a copy of the configured chain.
func (c *Coordinator) Policies() []Policy {
	return slices.Clone(c.policies)
}

// Execute runs the attempt loop and returns the final response or error.
// An HTTP error status is never turned into an error here; only transport failures,
// materialization failures and cancellation are.
func (c *Coordinator) Execute(ctx context.Context, src Source, doer Doer) (*nethttp.Response, error) {
	res, err := c.ExecuteWithStats(ctx, src, doer)
	return res.Response, err
}

// ExecuteWithStats is Execute that also reports attempt count and total wait.
func (c *Coordinator) ExecuteWithStats(ctx context.Context, src Source, doer Doer) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "retry.execute", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	var res Result
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, c.cancelled(span, res.Attempts, err)
		}

		req, err := src.Materialize(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "materialize failed")
			return res, err
		}

		c.logAttempt(req, attempt, waited)
		resp, err := doer.Do(req)
		res.Attempts = attempt

		if ctxErr := ctx.Err(); ctxErr != nil {
			discard(resp)
			return res, c.cancelled(span, attempt, ctxErr)
		}

		c.metrics.RecordAttempt(ctx, req.Method, statusOf(resp), errorType(err))
		span.AddEvent("attempt", trace.WithAttributes(attemptAttributes(attempt, resp, err)...))

		if err != nil && IsPermanent(err) {
			err = unwrapPermanent(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "permanent failure")
			return res, err
		}

		outcome := Outcome{Attempt: attempt, Response: resp, Err: err, Waited: waited}
		policy, retrying := decide(c.policies, outcome)
		if retrying && c.maxAttempts > 0 && attempt >= c.maxAttempts {
			c.logger.Warn().
				Str("method", req.Method).
				Int("attempt", attempt).
				Int("max_attempts", c.maxAttempts).
				Msg("Retry ceiling reached")
			retrying = false
		}

		if !retrying {
			res.Response = resp
			span.SetAttributes(attribute.Int("http.request.resend_count", attempt-1))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "transport failure")
			}
			return res, err
		}

		delay := policy.Delay(outcome)
		c.logRetry(req, policy, outcome, delay)
		c.metrics.RecordRetry(ctx, req.Method, policy.Name(), delay)
		discard(resp)

		if err := c.wait(ctx, delay); err != nil {
			return res, c.cancelled(span, attempt, err)
		}
		waited = delay
		res.Waited += delay
	}
}

func (c *Coordinator) cancelled(span trace.Span, attempts int, cause error) error {
	err := &CancelledError{Attempts: attempts, Cause: cause}
	span.RecordError(err)
	span.SetStatus(codes.Error, "cancelled")
	c.logger.Debug().
		Int("attempts", attempts).
		Err(cause).
		Msg("Retry coordination cancelled")
	return err
}

func (c *Coordinator) logAttempt(req *nethttp.Request, attempt int, waited time.Duration) {
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("attempt", attempt).
		Dur("waited", waited).
		Msg("Dispatching attempt")
}

func (c *Coordinator) logRetry(req *nethttp.Request, policy Policy, o Outcome, delay time.Duration) {
	event := c.logger.Warn().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("policy", policy.Name()).
		Int("attempt", o.Attempt).
		Dur("delay", delay)
	if o.Response != nil {
		event = event.Int("status", o.Response.StatusCode)
	}
	if o.Err != nil {
		event = event.Err(o.Err)
	}
	event.Msg("Retrying HTTP request")
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// discard drains a bounded amount of the body and closes it.
func discard(resp *nethttp.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

func statusOf(resp *nethttp.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case IsTimeout(err):
		return "timeout"
	default:
		return "transport"
	}
}

func attemptAttributes(attempt int, resp *nethttp.Response, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int("retry.attempt", attempt)}
	if resp != nil {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.type", errorType(err)))
	}
	return attrs
}
