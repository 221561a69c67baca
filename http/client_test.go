package http

import (
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-retryhttp/logger"
)

const (
	testContentTypeHdr = "Content-Type"
	testJSONType       = "application/json"
)

func newIPv4TestServer(t *testing.T, handler nethttp.Handler) *httptest.Server {
	t.Helper()
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: unable to bind IPv4 listener: %v", err)
		return &httptest.Server{}
	}

	server := &httptest.Server{
		Listener: listener,
		Config:   &nethttp.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}

type roundTripperFunc func(*nethttp.Request) (*nethttp.Response, error)

func (f roundTripperFunc) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	return f(req)
}

// echoHandler answers with the request method and body.
func echoHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("X-Method", r.Method)
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write(body)
}

func TestClientMethods(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(echoHandler))
	client := NewClient(logger.Nop())

	type call func(context.Context, *Request) (*Response, error)
	tests := []struct {
		method string
		do     call
	}{
		{nethttp.MethodGet, client.Get},
		{nethttp.MethodPost, client.Post},
		{nethttp.MethodPut, client.Put},
		{nethttp.MethodPatch, client.Patch},
		{nethttp.MethodDelete, client.Delete},
		{nethttp.MethodHead, client.Head},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := &Request{URL: server.URL}
			if tt.method != nethttp.MethodHead {
				req.Body = []byte(`{"m":"` + tt.method + `"}`)
			}
			resp, err := tt.do(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.method, resp.Headers.Get("X-Method"))
			assert.Equal(t, 1, resp.Stats.Attempts)
			assert.Positive(t, resp.Stats.ElapsedTime)
			if tt.method == nethttp.MethodHead {
				assert.Empty(t, resp.Body)
				return
			}
			assert.Equal(t, `{"m":"`+tt.method+`"}`, string(resp.Body))
		})
	}
}

func TestClientRequestValidation(t *testing.T) {
	client := NewClient(logger.Nop())

	_, err := client.Get(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ValidationError))

	_, err = client.Get(context.Background(), &Request{})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ValidationError))
}

func TestClientHeaderMerging(t *testing.T) {
	var got nethttp.Header
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		got = r.Header.Clone()
		w.WriteHeader(nethttp.StatusNoContent)
	}))

	client := NewBuilder(logger.Nop()).
		WithDefaultHeader("X-API-Key", "default-key").
		WithDefaultHeader("User-Agent", "retryhttp-test").
		Build()

	t.Run("defaults with request override", func(t *testing.T) {
		_, err := client.Get(context.Background(), &Request{
			URL:     server.URL,
			Headers: map[string]string{"X-API-Key": "request-key"},
		})
		require.NoError(t, err)
		assert.Equal(t, "request-key", got.Get("X-API-Key"))
		assert.Equal(t, "retryhttp-test", got.Get("User-Agent"))
		assert.Empty(t, got.Get(testContentTypeHdr))
	})

	t.Run("body defaults content type", func(t *testing.T) {
		_, err := client.Post(context.Background(), &Request{URL: server.URL, Body: []byte(`{"a":1}`)})
		require.NoError(t, err)
		assert.Equal(t, testJSONType, got.Get(testContentTypeHdr))
	})

	t.Run("explicit content type kept", func(t *testing.T) {
		_, err := client.Post(context.Background(), &Request{
			URL:     server.URL,
			Body:    []byte("a=1"),
			Headers: map[string]string{testContentTypeHdr: "application/x-www-form-urlencoded"},
		})
		require.NoError(t, err)
		assert.Equal(t, "application/x-www-form-urlencoded", got.Get(testContentTypeHdr))
	})
}

func TestClientInterceptors(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("X-Seen", r.Header.Get("X-Intercepted"))
		w.WriteHeader(nethttp.StatusOK)
	}))

	var seen string
	client := NewBuilder(logger.Nop()).
		WithRequestInterceptor(func(_ context.Context, req *nethttp.Request) error {
			req.Header.Set("X-Intercepted", "yes")
			return nil
		}).
		WithResponseInterceptor(func(_ context.Context, _ *nethttp.Request, resp *nethttp.Response) error {
			seen = resp.Header.Get("X-Seen")
			return nil
		}).
		Build()

	_, err := client.Get(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "yes", seen)

	failing := NewBuilder(logger.Nop()).
		WithRequestInterceptor(func(context.Context, *nethttp.Request) error { return errors.New("boom") }).
		Build()
	_, err = failing.Get(context.Background(), &Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, InterceptorError))
}

func TestClientErrorHandling(t *testing.T) {
	t.Run("HTTP error status keeps the response", func(t *testing.T) {
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			w.WriteHeader(nethttp.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}))

		resp, err := NewClient(logger.Nop()).Get(context.Background(), &Request{URL: server.URL})
		require.Error(t, err)
		assert.True(t, IsHTTPStatusError(err, nethttp.StatusNotFound))

		var httpErr *httpError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, `{"error":"not found"}`, string(httpErr.Body()))

		require.NotNil(t, resp)
		assert.Equal(t, `{"error":"not found"}`, string(resp.Body))
	})

	t.Run("connection refused", func(t *testing.T) {
		server := newIPv4TestServer(t, nethttp.HandlerFunc(echoHandler))
		target := server.URL
		server.Close()

		_, err := NewClient(logger.Nop()).Get(context.Background(), &Request{URL: target})
		require.Error(t, err)
		assert.True(t, IsErrorType(err, NetworkError))
	})

	t.Run("client timeout is retried then reported", func(t *testing.T) {
		var calls atomic.Int32
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			calls.Add(1)
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(nethttp.StatusOK)
		}))

		client := NewBuilder(logger.Nop()).
			WithTimeout(10*time.Millisecond).
			WithRetries(1, time.Millisecond).
			Build()

		_, err := client.Get(context.Background(), &Request{URL: server.URL})
		require.Error(t, err)
		assert.True(t, IsErrorType(err, TimeoutError))
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestClientRetriesAgainstServer(t *testing.T) {
	var calls atomic.Int32
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)
		if calls.Add(1) == 1 {
			w.WriteHeader(nethttp.StatusBadGateway)
			return
		}
		w.WriteHeader(nethttp.StatusCreated)
		_, _ = w.Write(body)
	}))

	client := NewBuilder(logger.Nop()).WithRetries(3, time.Millisecond).Build()

	resp, err := client.Post(context.Background(), &Request{URL: server.URL, Body: []byte("payload")})
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.Equal(t, "payload", string(resp.Body))
	assert.Equal(t, 2, resp.Stats.Attempts)
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	notFound := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusNotFound)
	}))
	_, err = client.Get(context.Background(), &Request{URL: notFound.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not transient")
}

func TestClientStats(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(nethttp.StatusOK)
	}))
	client := NewClient(logger.Nop())

	for i := int64(1); i <= 2; i++ {
		resp, err := client.Get(context.Background(), &Request{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, i, resp.Stats.CallCount)
		assert.GreaterOrEqual(t, resp.Stats.ElapsedTime, 5*time.Millisecond)
		assert.Zero(t, resp.Stats.Waited)
	}
}

func TestBuilderHTTPClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewClient(logger.Nop()).(*client)
		assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
		assert.Equal(t, HeaderXRequestID, c.propagator.HeaderName())
		assert.True(t, c.propagator.W3C)
		assert.Nil(t, c.limiter)
	})

	t.Run("custom client keeps its timeout", func(t *testing.T) {
		custom := &nethttp.Client{Timeout: 3 * time.Second}
		c := NewBuilder(logger.Nop()).WithHTTPClient(custom).WithTimeout(time.Second).Build().(*client)
		assert.NotSame(t, custom, c.httpClient)
		assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	})

	t.Run("custom client without timeout takes the builder's", func(t *testing.T) {
		custom := &nethttp.Client{}
		c := NewBuilder(logger.Nop()).WithHTTPClient(custom).WithTimeout(time.Second).Build().(*client)
		assert.Equal(t, time.Second, c.httpClient.Timeout)
		assert.Zero(t, custom.Timeout)
	})

	t.Run("custom client is never modified", func(t *testing.T) {
		original := roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
			return textResponse(req, nethttp.StatusOK, "original"), nil
		})
		replacement := roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
			return textResponse(req, nethttp.StatusOK, "replacement"), nil
		})
		custom := &nethttp.Client{Transport: original}

		c := NewBuilder(logger.Nop()).WithHTTPClient(custom).WithTransport(replacement).Build()
		resp, err := c.Get(context.Background(), &Request{URL: testServiceURL})
		require.NoError(t, err)
		assert.Equal(t, "replacement", string(resp.Body))

		assert.Zero(t, custom.Timeout)
		direct, err := custom.Get(testServiceURL)
		require.NoError(t, err)
		defer direct.Body.Close()
		body, err := io.ReadAll(direct.Body)
		require.NoError(t, err)
		assert.Equal(t, "original", string(body))
	})

	t.Run("custom transport", func(t *testing.T) {
		rt := roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
			return textResponse(req, nethttp.StatusAccepted, "stubbed"), nil
		})
		resp, err := NewBuilder(logger.Nop()).WithTransport(rt).Build().
			Get(context.Background(), &Request{URL: testServiceURL})
		require.NoError(t, err)
		assert.Equal(t, "stubbed", string(resp.Body))
	})
}
