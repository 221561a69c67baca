package mocks

import (
	"io"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
)

// ResponseFunc builds a fresh response for a request. Expectations may return one instead of a
// *http.Response so every matching call gets an unread body.
type ResponseFunc func(req *nethttp.Request) *nethttp.Response

// MockRoundTripper provides a testify-based mock implementation of http.RoundTripper.
// Request bodies are drained and recorded before the expectation is matched.
//
// Example usage:
//
//	rt := &mocks.MockRoundTripper{}
//	rt.ExpectStatus(http.StatusServiceUnavailable).Twice()
//	rt.ExpectStatus(http.StatusOK)
type MockRoundTripper struct {
	mock.Mock

	mu     sync.Mutex
	bodies []string
}

// RoundTrip implements http.RoundTripper
func (m *MockRoundTripper) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.bodies = append(m.bodies, string(data))
		m.mu.Unlock()
	}

	arguments := m.Called(req)
	return responseFrom(arguments, req), arguments.Error(1)
}

// Bodies returns the request bodies seen so far, in call order.
func (m *MockRoundTripper) Bodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bodies...)
}

// ExpectStatus answers any request with status and its status text as body.
func (m *MockRoundTripper) ExpectStatus(status int) *mock.Call {
	return m.ExpectResponse(Text(status, nethttp.StatusText(status)))
}

// ExpectResponse answers any request with the response built by fn.
func (m *MockRoundTripper) ExpectResponse(fn ResponseFunc) *mock.Call {
	return m.On("RoundTrip", mock.Anything).Return(fn, nil)
}

// ExpectError fails any request with err.
func (m *MockRoundTripper) ExpectError(err error) *mock.Call {
	return m.On("RoundTrip", mock.Anything).Return(nil, err)
}

// ExpectMethod answers requests with the given method using fn.
func (m *MockRoundTripper) ExpectMethod(method string, fn ResponseFunc) *mock.Call {
	return m.On("RoundTrip", mock.MatchedBy(func(req *nethttp.Request) bool {
		return req.Method == method
	})).Return(fn, nil)
}

// MockDoer provides a testify-based mock implementation of retry.Doer.
type MockDoer struct {
	mock.Mock
}

// Do implements retry.Doer
func (m *MockDoer) Do(req *nethttp.Request) (*nethttp.Response, error) {
	arguments := m.Called(req)
	return responseFrom(arguments, req), arguments.Error(1)
}

// ExpectStatus answers any request with status.
func (m *MockDoer) ExpectStatus(status int) *mock.Call {
	return m.On("Do", mock.Anything).Return(Text(status, nethttp.StatusText(status)), nil)
}

// ExpectError fails any request with err.
func (m *MockDoer) ExpectError(err error) *mock.Call {
	return m.On("Do", mock.Anything).Return(nil, err)
}

// Text returns a ResponseFunc producing a text/plain response.
func Text(status int, body string) ResponseFunc {
	return func(req *nethttp.Request) *nethttp.Response {
		resp := &nethttp.Response{
			StatusCode:    status,
			Status:        nethttp.StatusText(status),
			Header:        make(nethttp.Header),
			Body:          io.NopCloser(strings.NewReader(body)),
			ContentLength: int64(len(body)),
			Request:       req,
		}
		resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		return resp
	}
}

func responseFrom(arguments mock.Arguments, req *nethttp.Request) *nethttp.Response {
	switch v := arguments.Get(0).(type) {
	case ResponseFunc:
		return v(req)
	case func(*nethttp.Request) *nethttp.Response:
		return v(req)
	case *nethttp.Response:
		return v
	default:
		return nil
	}
}
