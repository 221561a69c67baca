package fixtures

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/gaborage/go-retryhttp/testing/mocks"
)

// Content type constants
const (
	ApplicationJSONContentType = "application/json"
	TextPlainContentType       = "text/plain; charset=utf-8"
)

// NewWorkingTransport creates a mock transport that answers every request with 200 OK.
func NewWorkingTransport() *mocks.MockRoundTripper {
	rt := &mocks.MockRoundTripper{}
	rt.ExpectStatus(nethttp.StatusOK)
	return rt
}

// NewFlakyTransport creates a mock transport that answers the first failures requests with
// failStatus and every later one with 200 OK. This is useful for testing retry policies.
func NewFlakyTransport(failures int, failStatus int) *mocks.MockRoundTripper {
	rt := &mocks.MockRoundTripper{}
	if failures > 0 {
		rt.ExpectStatus(failStatus).Times(failures)
	}
	rt.ExpectStatus(nethttp.StatusOK)
	return rt
}

// NewThrottlingTransport answers the first request with 429 and a Retry-After header of
// retryAfterSeconds, then 200 OK.
func NewThrottlingTransport(retryAfterSeconds int) *mocks.MockRoundTripper {
	rt := &mocks.MockRoundTripper{}
	rt.ExpectResponse(WithHeader(mocks.Text(nethttp.StatusTooManyRequests, "slow down"),
		"Retry-After", strconv.Itoa(retryAfterSeconds))).Once()
	rt.ExpectStatus(nethttp.StatusOK)
	return rt
}

// NewFailingTransport creates a mock transport whose every request fails with err.
func NewFailingTransport(err error) *mocks.MockRoundTripper {
	rt := &mocks.MockRoundTripper{}
	rt.ExpectError(err)
	return rt
}

// JSON returns a ResponseFunc that encodes v as the response body.
// It panics when v cannot be encoded, which only happens with broken test data.
func JSON(status int, v any) mocks.ResponseFunc {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return func(req *nethttp.Request) *nethttp.Response {
		return &nethttp.Response{
			StatusCode:    status,
			Status:        nethttp.StatusText(status),
			Header:        nethttp.Header{"Content-Type": []string{ApplicationJSONContentType}},
			Body:          io.NopCloser(strings.NewReader(string(data))),
			ContentLength: int64(len(data)),
			Request:       req,
		}
	}
}

// WithHeader decorates fn so its responses carry an extra header.
func WithHeader(fn mocks.ResponseFunc, key, value string) mocks.ResponseFunc {
	return func(req *nethttp.Request) *nethttp.Response {
		resp := fn(req)
		resp.Header.Set(key, value)
		return resp
	}
}
