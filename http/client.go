package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaborage/go-retryhttp/logger"
	"github.com/gaborage/go-retryhttp/retry"
	"github.com/gaborage/go-retryhttp/snapshot"
	retrytrace "github.com/gaborage/go-retryhttp/trace"
	"github.com/gaborage/go-retryhttp/urls"
)

const contentTypeJSON = "application/json"

// client implements the Client interface
type client struct {
	httpClient           *nethttp.Client
	logger               logger.Logger
	config               *Config
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	propagator           retrytrace.Propagator
	limiter              *rate.Limiter

	// coordinator runs the client's policy chain; single never retries. Both share
	// one set of instruments.
	coordinator *retry.Coordinator
	single      *retry.Coordinator

	callCount int64
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Head performs a HEAD request
func (c *client) Head(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodHead, req)
}

// Do performs an HTTP request with the specified method. The request is captured once and
// replayed for every attempt the retry policies ask for. A non-2xx final response is returned
// together with an HTTP error unless IgnoreHTTPErrors applies.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	callCount := atomic.AddInt64(&c.callCount, 1)
	opts := c.config.Options.Merge(req)

	target, err := c.resolveURL(req, opts)
	if err != nil {
		return nil, err
	}

	snap, err := c.capture(ctx, method, target, req)
	if err != nil {
		return nil, err
	}
	traceID := snap.Header().Get(c.propagator.HeaderName())
	body, _ := snap.Body()

	result, err := c.coordinatorFor(req).ExecuteWithStats(ctx, snap, c.dispatcher(opts, body, traceID))
	if err != nil {
		return nil, c.classify(err)
	}

	return c.complete(start, callCount, result, opts, traceID)
}

// validateRequest validates the request before sending
func (c *client) validateRequest(req *Request) error {
	if req == nil {
		return NewValidationError("request cannot be nil", "request")
	}
	if req.URL == "" && c.config.BaseURL == "" {
		return NewValidationError("URL cannot be empty", "url")
	}
	if req.Body != nil && req.BodyReader != nil {
		return NewValidationError("body and body reader are mutually exclusive", "body")
	}
	if !validCompletion(req.Completion) {
		return NewValidationError(fmt.Sprintf("unknown completion mode %q", req.Completion), "completion")
	}
	return nil
}

func (c *client) resolveURL(req *Request, opts Options) (*url.URL, error) {
	u, err := urls.ResolveString(c.config.BaseURL, req.URL)
	if err != nil {
		return nil, NewFormatError("cannot compose request URL", err)
	}
	return urls.AppendQuery(u, req.Query, opts.IgnoreNullArguments), nil
}

// capture builds the replayable request. Headers, auth and trace IDs are fixed here so every
// attempt carries the same values.
func (c *client) capture(ctx context.Context, method string, target *url.URL, req *Request) (*snapshot.Snapshot, error) {
	header := c.buildHeaders(ctx, req)
	props := snapshot.WithProperties(req.Properties)

	if req.BodyReader == nil {
		snap, err := snapshot.FromParts(method, target, header, req.Body, props)
		if err != nil {
			return nil, NewSnapshotError("failed to capture request", err)
		}
		return snap, nil
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, target.String(), req.BodyReader)
	if err != nil {
		return nil, NewValidationError(err.Error(), "method")
	}
	httpReq.Header = header
	snap, err := snapshot.Capture(httpReq, props)
	if err != nil {
		return nil, NewSnapshotError("failed to buffer request body", err)
	}
	return snap, nil
}

// buildHeaders merges default and request headers, then auth and trace headers
func (c *client) buildHeaders(ctx context.Context, req *Request) nethttp.Header {
	h := make(nethttp.Header)

	// Apply default headers first
	for key, value := range c.config.DefaultHeaders {
		h.Set(key, value)
	}

	// Apply request-specific headers (these override defaults)
	for key, value := range req.Headers {
		h.Set(key, value)
	}

	// Set Content-Type if not already set and body is present
	if h.Get("Content-Type") == "" && (req.Body != nil || req.BodyReader != nil) {
		h.Set("Content-Type", contentTypeJSON)
	}

	c.applyAuth(h, req)
	c.propagator.Inject(ctx, h)
	return h
}

// applyAuth sets the Authorization header. Request credentials always apply; client
// credentials only fill an absent header.
func (c *client) applyAuth(h nethttp.Header, req *Request) {
	switch {
	case req.Auth != nil:
		h.Set(HeaderAuthorization, BasicAuthHeader(req.Auth.Username, req.Auth.Password))
	case req.BearerToken != "":
		h.Set(HeaderAuthorization, BearerTokenHeader(req.BearerToken))
	case h.Get(HeaderAuthorization) != "":
	case c.config.BasicAuth != nil:
		h.Set(HeaderAuthorization, BasicAuthHeader(c.config.BasicAuth.Username, c.config.BasicAuth.Password))
	case c.config.BearerToken != "":
		h.Set(HeaderAuthorization, BearerTokenHeader(c.config.BearerToken))
	}
}

// coordinatorFor picks the policy chain for one call
func (c *client) coordinatorFor(req *Request) *retry.Coordinator {
	switch {
	case req.NoRetry:
		return c.single
	case len(req.Retry) > 0:
		return c.coordinator.WithPolicies(req.Retry...)
	default:
		return c.coordinator
	}
}

// dispatcher is the per-attempt pipeline: rate limit, request interceptors, transport,
// response interceptors, body completion. Failures of the client's own stages are
// permanent; transport and body read failures are left to the retry policies.
func (c *client) dispatcher(opts Options, body []byte, traceID string) retry.Doer {
	return retry.DoerFunc(func(httpReq *nethttp.Request) (*nethttp.Response, error) {
		ctx := httpReq.Context()

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, retry.Permanent(NewNetworkError("rate limit wait failed", err))
			}
		}

		if err := c.runRequestInterceptors(ctx, httpReq); err != nil {
			return nil, retry.Permanent(NewInterceptorError("request interceptor failed", "request", err))
		}

		c.logRequest(httpReq, body, traceID)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}

		if err := c.runResponseInterceptors(ctx, httpReq, httpResp); err != nil {
			_ = httpResp.Body.Close()
			return nil, retry.Permanent(NewInterceptorError("response interceptor failed", "response", err))
		}

		if opts.Completion == CompletionHeadersOnly {
			return httpResp, nil
		}

		data, err := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		httpResp.Body = io.NopCloser(bytes.NewReader(data))
		return httpResp, nil
	})
}

// classify maps a coordination failure onto the client error taxonomy
func (c *client) classify(err error) error {
	var cancelled *retry.CancelledError
	if errors.As(err, &cancelled) {
		return NewCancellationError("request cancelled", cancelled.Attempts, err)
	}

	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr
	}

	switch {
	case snapshot.IsSnapshotError(err):
		return NewSnapshotError("failed to materialize request", err)
	case retry.IsTimeout(err):
		return newTimeoutErrorWithCause("request timeout", c.config.Timeout, err)
	default:
		return NewNetworkError("request execution failed", err)
	}
}

// complete turns the final exchange into a Response
func (c *client) complete(start time.Time, callCount int64, result retry.Result, opts Options, traceID string) (*Response, error) {
	httpResp := result.Response
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Stats: Stats{
			CallCount: callCount,
			Attempts:  result.Attempts,
			Waited:    result.Waited,
		},
	}

	if opts.Completion == CompletionHeadersOnly {
		resp.Stream = httpResp.Body
	} else {
		data, err := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		if err != nil {
			return nil, NewNetworkError("failed to read response body", err)
		}
		resp.Body = data
	}
	resp.Stats.ElapsedTime = time.Since(start)

	c.logResponse(resp, traceID)

	if !IsSuccessStatus(resp.StatusCode) && !opts.IgnoreHTTPErrors {
		return resp, NewHTTPError(
			fmt.Sprintf("HTTP request failed with status %d", resp.StatusCode),
			resp.StatusCode,
			resp.Body,
		)
	}
	return resp, nil
}

// runRequestInterceptors executes all request interceptors
func (c *client) runRequestInterceptors(ctx context.Context, req *nethttp.Request) error {
	for _, interceptor := range c.requestInterceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// runResponseInterceptors executes all response interceptors
func (c *client) runResponseInterceptors(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error {
	for _, interceptor := range c.responseInterceptors {
		if err := interceptor(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}
