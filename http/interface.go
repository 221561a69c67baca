package http

import (
	"context"
	"io"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gaborage/go-retryhttp/retry"
)

// Client defines the REST client interface for making HTTP requests
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Head(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request represents an HTTP request with all necessary data
type Request struct {
	// URL is resolved against the client's base URL, if any.
	URL string
	// Query parameters are appended to the resolved URL in key order.
	Query   map[string]any
	Headers map[string]string
	Body    []byte
	// BodyReader is buffered once and replayed on every attempt. It cannot be combined with Body.
	BodyReader io.Reader

	Auth        *BasicAuth
	BearerToken string

	// Retry policies are evaluated after the client's.
	Retry []retry.Policy
	// NoRetry sends the request exactly once.
	NoRetry bool

	// Per-request option overrides. Nil keeps the client's setting.
	IgnoreHTTPErrors    *bool
	IgnoreNullArguments *bool
	Completion          Completion

	// Properties travel with every attempt; see snapshot.PropertiesFrom.
	Properties map[string]any
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	// Body holds the payload when the completion mode is CompletionFullBody.
	Body []byte
	// Stream is the open payload for CompletionHeadersOnly. The caller must close it.
	Stream  io.ReadCloser
	Headers nethttp.Header
	Stats   Stats
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	CallCount   int64
	// Attempts counts dispatches, including the first.
	Attempts int
	// Waited is the total delay spent between attempts.
	Waited time.Duration
}

// BasicAuth contains basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// Config holds the REST client configuration
type Config struct {
	Timeout time.Duration
	// BaseURL is resolved against every request URL. Empty means request URLs must be absolute.
	BaseURL              string
	RetryPolicies        []retry.Policy
	MaxAttempts          int
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	BasicAuth            *BasicAuth
	BearerToken          string
	DefaultHeaders       map[string]string
	Options              Options
	// RateLimit bounds attempts per second across all calls. Zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
	// TraceIDHeader configures the header name used for trace ID propagation (default: X-Request-ID)
	TraceIDHeader string
	// NewTraceID generates a new trace ID when none is present (default: uuid)
	NewTraceID func() string
	// TraceIDExtractor allows advanced extraction of a trace ID from context; return ok=false to fallback to generator
	TraceIDExtractor func(_ context.Context) (traceID string, ok bool)
	// EnableW3CTrace enables W3C Trace Context (traceparent/tracestate) propagation and generation
	EnableW3CTrace bool
	// TracerProvider and MeterProvider instrument the transport and retry coordination.
	// Nil falls back to the global providers for coordination and leaves the transport bare.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}
