package trace

import (
	"context"
	"net/http"
)

// Propagator writes correlation headers onto outgoing requests. The zero value sets
// X-Request-ID from the context or a fresh UUID.
type Propagator struct {
	// Header overrides the trace ID header name.
	Header string
	// NewID generates a trace ID when none is found.
	NewID func() string
	// Extract looks up a trace ID before the context value is consulted.
	Extract func(ctx context.Context) (string, bool)
	// W3C enables traceparent/tracestate propagation, generating a traceparent when the
	// context carries none.
	W3C bool
}

// HeaderName returns the configured trace ID header.
func (p Propagator) HeaderName() string {
	if p.Header == "" {
		return HeaderXRequestID
	}
	return p.Header
}

// TraceID resolves the trace ID for ctx. The extractor is consulted first, then the context
// value, then the trace-id field of a traceparent in ctx, then the generator.
func (p Propagator) TraceID(ctx context.Context) string {
	if p.Extract != nil {
		if id, ok := p.Extract(ctx); ok && id != "" {
			return id
		}
	}
	if id, ok := IDFromContext(ctx); ok {
		return id
	}
	if tp, ok := ParentFromContext(ctx); ok && ValidTraceParent(tp) {
		return tp[3:35]
	}
	if p.NewID != nil {
		if id := p.NewID(); id != "" {
			return id
		}
	}
	return EnsureTraceID(ctx)
}

// Inject sets trace headers on h. Headers already present are left alone so a caller-supplied
// value survives.
func (p Propagator) Inject(ctx context.Context, h http.Header) {
	name := p.HeaderName()
	if h.Get(name) == "" {
		h.Set(name, p.TraceID(ctx))
	}
	if !p.W3C {
		return
	}
	if h.Get(HeaderTraceParent) == "" {
		tp, ok := ParentFromContext(ctx)
		if !ok || !ValidTraceParent(tp) {
			tp = GenerateTraceParent()
		}
		h.Set(HeaderTraceParent, tp)
	}
	if h.Get(HeaderTraceState) == "" {
		if ts, ok := StateFromContext(ctx); ok {
			h.Set(HeaderTraceState, ts)
		}
	}
}
