package http

import (
	"context"
	nethttp "net/http"

	retrytrace "github.com/gaborage/go-retryhttp/trace"
)

const (
	// HeaderXRequestID is the standard header name for request tracing
	HeaderXRequestID = retrytrace.HeaderXRequestID
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = retrytrace.HeaderTraceParent
	// HeaderTraceState is the W3C trace context "tracestate" header name
	HeaderTraceState = retrytrace.HeaderTraceState
)

// WithTraceID adds a trace ID to the context for HTTP client propagation
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return retrytrace.WithTraceID(ctx, traceID)
}

// TraceIDFromContext returns a trace ID from context if present
func TraceIDFromContext(ctx context.Context) (string, bool) { return retrytrace.IDFromContext(ctx) }

// GetTraceIDFromContext returns the context's trace ID, generating one when absent
func GetTraceIDFromContext(ctx context.Context) string { return retrytrace.EnsureTraceID(ctx) }

// WithTraceParent adds a W3C traceparent value to the context
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return retrytrace.WithTraceParent(ctx, traceParent)
}

// WithTraceState adds a W3C tracestate value to the context
func WithTraceState(ctx context.Context, traceState string) context.Context {
	return retrytrace.WithTraceState(ctx, traceState)
}

// NewTraceIDInterceptor creates a request interceptor that adds the X-Request-ID header
// when it is missing. The client already does this; the interceptor suits raw transports.
func NewTraceIDInterceptor() RequestInterceptor {
	return NewTraceIDInterceptorFor(HeaderXRequestID)
}

// NewTraceIDInterceptorFor creates an interceptor that uses a custom header name
func NewTraceIDInterceptorFor(header string) RequestInterceptor {
	if header == "" {
		header = HeaderXRequestID
	}
	return func(ctx context.Context, req *nethttp.Request) error {
		if req.Header.Get(header) == "" {
			req.Header.Set(header, GetTraceIDFromContext(ctx))
		}
		return nil
	}
}
