package retry

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/go-retryhttp/logger"
	"github.com/gaborage/go-retryhttp/snapshot"
	"github.com/gaborage/go-retryhttp/testing/mocks"
)

const testEndpoint = "http://service.test/resource"

// scriptedDoer answers each attempt from a fixed script and records what it received.
type scriptedDoer struct {
	mu       sync.Mutex
	script   []func(*nethttp.Request) (*nethttp.Response, error)
	requests []*nethttp.Request
	bodies   []string
}

func (d *scriptedDoer) Do(req *nethttp.Request) (*nethttp.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		d.bodies = append(d.bodies, string(b))
	}
	i := len(d.requests) - 1
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	return d.script[i](req)
}

func (d *scriptedDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func status(code int) func(*nethttp.Request) (*nethttp.Response, error) {
	return func(req *nethttp.Request) (*nethttp.Response, error) {
		return &nethttp.Response{
			StatusCode: code,
			Header:     make(nethttp.Header),
			Body:       io.NopCloser(strings.NewReader(nethttp.StatusText(code))),
			Request:    req,
		}, nil
	}
}

func fail(err error) func(*nethttp.Request) (*nethttp.Response, error) {
	return func(*nethttp.Request) (*nethttp.Response, error) { return nil, err }
}

// recordingWait records requested delays instead of sleeping.
type recordingWait struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *recordingWait) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err()
}

func newSource(t *testing.T, body string) *snapshot.Snapshot {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := nethttp.NewRequestWithContext(context.Background(), nethttp.MethodPost, testEndpoint, r)
	require.NoError(t, err)
	snap, err := snapshot.Capture(req)
	require.NoError(t, err)
	return snap
}

func TestCoordinatorFixedIntervalsScenario(t *testing.T) {
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(500)}}
	w := &recordingWait{}
	c := NewCoordinator(logger.Nop(), []Policy{FixedIntervals(always, time.Second, 2*time.Second)}, WithWait(w.wait))

	res, err := c.ExecuteWithStats(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)

	assert.Equal(t, 3, doer.calls())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, w.delays)
	assert.Equal(t, 3*time.Second, res.Waited)
	assert.Equal(t, 500, res.Response.StatusCode)
}

func TestCoordinatorComputedZeroRetries(t *testing.T) {
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(503)}}
	w := &recordingWait{}
	c := NewCoordinator(logger.Nop(), []Policy{ComputedDelay(0, always, Constant(time.Second))}, WithWait(w.wait))

	resp, err := c.Execute(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, 1, doer.calls())
	assert.Empty(t, w.delays)
}

func TestCoordinatorNoPoliciesNeverRetries(t *testing.T) {
	boom := errors.New("connection refused")
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){fail(boom)}}
	c := NewCoordinator(logger.Nop(), nil)

	resp, err := c.Execute(context.Background(), newSource(t, ""), doer)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, doer.calls())
}

func TestCoordinatorChainUsesFirstRetryVoter(t *testing.T) {
	a := NewPolicy("a", func(Outcome) bool { return false }, func(Outcome) time.Duration { return time.Minute })
	b := ComputedDelay(1, always, Constant(250*time.Millisecond)).Named("b")

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(502), status(200)}}
	w := &recordingWait{}
	c := NewCoordinator(logger.Nop(), []Policy{a, b}, WithWait(w.wait))

	resp, err := c.Execute(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, w.delays)
}

func TestCoordinatorTiesResolvedByOrder(t *testing.T) {
	first := FixedIntervals(always, 10*time.Millisecond)
	second := FixedIntervals(always, 20*time.Millisecond)

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(500), status(200)}}
	w := &recordingWait{}
	c := NewCoordinator(logger.Nop(), []Policy{first, second}, WithWait(w.wait))

	_, err := c.Execute(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, w.delays)
}

func TestCoordinatorReplaysBodyOnEveryAttempt(t *testing.T) {
	const payload = `{"order":7}`
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(503), status(503), status(201)}}
	c := NewCoordinator(logger.Nop(), []Policy{FixedIntervals(OnServerError(), 0, 0)}, WithWait((&recordingWait{}).wait))

	resp, err := c.Execute(context.Background(), newSource(t, payload), doer)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, []string{payload, payload, payload}, doer.bodies)

	// every attempt gets its own request object
	assert.NotSame(t, doer.requests[0], doer.requests[1])
	assert.NotSame(t, doer.requests[1], doer.requests[2])
}

func TestCoordinatorTransportErrorOfferedToPolicies(t *testing.T) {
	refused := errors.New("connection refused")
	var seen []Outcome
	p := NewPolicy("observe", func(o Outcome) bool {
		seen = append(seen, o)
		return o.Response == nil && o.Attempt < 2
	}, nil)

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){fail(refused)}}
	c := NewCoordinator(logger.Nop(), []Policy{p}, WithWait((&recordingWait{}).wait))

	resp, err := c.Execute(context.Background(), newSource(t, ""), doer)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, refused)
	require.Len(t, seen, 2)
	assert.Nil(t, seen[0].Response)
	assert.Equal(t, refused, seen[0].Err)
	assert.Equal(t, 2, seen[1].Attempt)
}

func TestCoordinatorPermanentErrorSkipsPolicies(t *testing.T) {
	inner := errors.New("interceptor rejected request")
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){fail(Permanent(inner))}}
	c := NewCoordinator(logger.Nop(), []Policy{ComputedDelay(5, always, nil)}, WithWait((&recordingWait{}).wait))

	_, err := c.Execute(context.Background(), newSource(t, ""), doer)
	assert.Equal(t, inner, err)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, doer.calls())
}

func TestCoordinatorMaxAttemptsCeiling(t *testing.T) {
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(500)}}
	c := NewCoordinator(logger.Nop(), []Policy{ComputedDelay(100, always, nil)},
		WithWait((&recordingWait{}).wait), WithMaxAttempts(4))

	resp, err := c.Execute(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, 4, doer.calls())
}

func TestCoordinatorCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(503)}}
	wait := func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	c := NewCoordinator(logger.Nop(), []Policy{FixedIntervals(always, time.Hour, time.Hour)}, WithWait(wait))

	res, err := c.ExecuteWithStats(ctx, newSource(t, ""), doer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res.Response)
	assert.Equal(t, 1, doer.calls())
	assert.Equal(t, 1, res.Attempts)

	var ce *CancelledError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Attempts)
}

func TestCoordinatorCancelledWithRealSleep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(503)}}
	c := NewCoordinator(logger.Nop(), []Policy{FixedIntervals(always, time.Hour)})

	start := time.Now()
	_, err := c.Execute(ctx, newSource(t, ""), doer)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, doer.calls())
}

func TestCoordinatorCancelledDuringDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closed atomic.Bool
	doer := DoerFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
		cancel()
		return &nethttp.Response{
			StatusCode: 200,
			Body:       &closeTracker{Reader: strings.NewReader("partial"), closed: &closed},
			Request:    req,
		}, nil
	})
	c := NewCoordinator(logger.Nop(), []Policy{ComputedDelay(3, always, nil)})

	resp, err := c.Execute(ctx, newSource(t, ""), doer)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, closed.Load(), "partially read response must be released")
}

func TestCoordinatorAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(200)}}
	c := NewCoordinator(logger.Nop(), nil)

	res, err := c.ExecuteWithStats(ctx, newSource(t, ""), doer)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, doer.calls())
	assert.Equal(t, 0, res.Attempts)
}

type closeTracker struct {
	io.Reader
	closed *atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

func TestCoordinatorDiscardsRetriedResponses(t *testing.T) {
	var closed atomic.Int32
	doer := DoerFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
		b := &closeTracker{Reader: strings.NewReader("retry me"), closed: new(atomic.Bool)}
		return &nethttp.Response{StatusCode: 503, Body: countingCloser{b, &closed}, Request: req}, nil
	})
	c := NewCoordinator(logger.Nop(), []Policy{FixedIntervals(always, 0, 0)})

	resp, err := c.Execute(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), closed.Load())
	require.NotNil(t, resp.Body)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "retry me", string(body))
}

type countingCloser struct {
	io.ReadCloser
	n *atomic.Int32
}

func (c countingCloser) Close() error {
	c.n.Add(1)
	return c.ReadCloser.Close()
}

func TestCoordinatorMaterializeFailure(t *testing.T) {
	boom := errors.New("materialize failed")
	src := sourceFunc(func(context.Context) (*nethttp.Request, error) { return nil, boom })
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(200)}}

	_, err := NewCoordinator(logger.Nop(), nil).Execute(context.Background(), src, doer)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, doer.calls())
}

type sourceFunc func(context.Context) (*nethttp.Request, error)

func (f sourceFunc) Materialize(ctx context.Context) (*nethttp.Request, error) { return f(ctx) }

func TestCoordinatorAgainstServer(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	req, err := nethttp.NewRequestWithContext(context.Background(), nethttp.MethodGet, server.URL, nethttp.NoBody)
	require.NoError(t, err)
	snap, err := snapshot.Capture(req)
	require.NoError(t, err)

	c := NewCoordinator(logger.New("debug", false), []Policy{
		FixedIntervals(OnStatus(nethttp.StatusServiceUnavailable), 100*time.Millisecond, 200*time.Millisecond),
	})

	start := time.Now()
	res, err := c.ExecuteWithStats(context.Background(), snap, server.Client())
	elapsed := time.Since(start)
	require.NoError(t, err)
	defer res.Response.Body.Close()

	assert.Equal(t, nethttp.StatusOK, res.Response.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 300*time.Millisecond, res.Waited)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
}

func TestCoordinatorSharedAcrossGoroutines(t *testing.T) {
	policy := FixedIntervals(OnServerError(), 0, 0, 0)
	c := NewCoordinator(logger.Nop(), []Policy{policy})

	var g errgroup.Group
	for i := range 16 {
		g.Go(func() error {
			failures := i % 4
			var n atomic.Int32
			doer := DoerFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
				if int(n.Add(1)) <= failures {
					return status(500)(req)
				}
				return status(200)(req)
			})
			res, err := c.ExecuteWithStats(context.Background(), newSource(t, "x"), doer)
			if err != nil {
				return err
			}
			if res.Attempts != failures+1 {
				return errors.New("unexpected attempt count")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCoordinatorInstrumentation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(503), status(200)}}
	c := NewCoordinator(logger.Nop(), []Policy{FixedIntervals(always, 5*time.Millisecond)},
		WithMeterProvider(mp), WithTracerProvider(tp), WithWait((&recordingWait{}).wait))

	_, err := c.Execute(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["http.client.request.attempts"])
	assert.Equal(t, int64(1), sums["http.client.request.retries"])

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "retry.execute", spans[0].Name())
	assert.Len(t, spans[0].Events(), 2)
}

func TestCoordinatorWithMockDoer(t *testing.T) {
	doer := &mocks.MockDoer{}
	doer.ExpectError(errors.New("connection reset")).Once()
	doer.ExpectStatus(nethttp.StatusTooManyRequests).Once()
	doer.ExpectStatus(nethttp.StatusOK)

	w := &recordingWait{}
	c := NewCoordinator(logger.Nop(), []Policy{ComputedDelay(3, Transient(), Constant(10*time.Millisecond))}, WithWait(w.wait))

	res, err := c.ExecuteWithStats(context.Background(), newSource(t, "body"), doer)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, res.Response.StatusCode)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, w.delays)
	doer.AssertExpectations(t)
}

func TestCoordinatorNilLogger(t *testing.T) {
	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){status(503), status(200)}}
	c := NewCoordinator(nil, []Policy{FixedIntervals(always, time.Millisecond)}, WithWait((&recordingWait{}).wait))

	var resp *nethttp.Response
	require.NotPanics(t, func() {
		var err error
		resp, err = c.Execute(context.Background(), newSource(t, ""), doer)
		require.NoError(t, err)
	})
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, doer.calls())
}

func TestCoordinatorWithPolicies(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	w := &recordingWait{}

	first := FixedIntervals(OnStatus(nethttp.StatusServiceUnavailable), time.Second).Named("first")
	second := FixedIntervals(OnStatus(nethttp.StatusTooManyRequests), 2*time.Second, 2*time.Second).Named("second")
	base := NewCoordinator(logger.Nop(), []Policy{first}, WithMeterProvider(mp), WithWait(w.wait))

	derived := base.WithPolicies(second)
	assert.Same(t, base, base.WithPolicies())
	assert.Same(t, base.metrics, derived.metrics)
	assert.Equal(t, []string{"first"}, policyNames(base.Policies()))
	assert.Equal(t, []string{"first", "second"}, policyNames(derived.Policies()))

	doer := &scriptedDoer{script: []func(*nethttp.Request) (*nethttp.Response, error){
		status(nethttp.StatusServiceUnavailable), status(nethttp.StatusTooManyRequests), status(nethttp.StatusOK),
	}}
	res, err := derived.ExecuteWithStats(context.Background(), newSource(t, ""), doer)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, w.delays)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var attempts int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "http.client.request.attempts" {
				for _, dp := range data.DataPoints {
					attempts += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), attempts)
}

func policyNames(policies []Policy) []string {
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, p.Name())
	}
	return names
}
