// Package trace carries request correlation identifiers through a context and onto outgoing
// HTTP headers: a plain trace ID (X-Request-ID by default) and W3C Trace Context.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	traceIDKey     contextKey = "trace_id"
	traceParentKey contextKey = "traceparent"
	traceStateKey  contextKey = "tracestate"

	// HeaderXRequestID is the default trace ID header.
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name.
	HeaderTraceParent = "traceparent"
	// HeaderTraceState is the W3C "tracestate" header name.
	HeaderTraceState = "tracestate"
)

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// IDFromContext returns the trace ID stored in ctx, if any.
func IDFromContext(ctx context.Context) (string, bool) {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		return traceID, true
	}
	return "", false
}

// EnsureTraceID returns the trace ID stored in ctx or a new UUID.
func EnsureTraceID(ctx context.Context) string {
	if traceID, ok := IDFromContext(ctx); ok {
		return traceID
	}
	return uuid.New().String()
}

// WithTraceParent adds a W3C traceparent value to the context.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, traceParentKey, traceParent)
}

// ParentFromContext returns a traceparent from ctx. An explicit value wins over an active
// OpenTelemetry span.
func ParentFromContext(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", false
	}
	return FormatTraceParent(sc), true
}

// WithTraceState adds a W3C tracestate value to the context.
func WithTraceState(ctx context.Context, traceState string) context.Context {
	return context.WithValue(ctx, traceStateKey, traceState)
}

// StateFromContext returns a tracestate from ctx, falling back to the active span's state.
func StateFromContext(ctx context.Context) (string, bool) {
	if ts, ok := ctx.Value(traceStateKey).(string); ok && ts != "" {
		return ts, true
	}
	if ts := oteltrace.SpanContextFromContext(ctx).TraceState().String(); ts != "" {
		return ts, true
	}
	return "", false
}

// FormatTraceParent renders sc as a version 00 traceparent header value.
func FormatTraceParent(sc oteltrace.SpanContext) string {
	tid := sc.TraceID()
	sid := sc.SpanID()
	flags := "00"
	if sc.IsSampled() {
		flags = "01"
	}
	return "00-" + hex.EncodeToString(tid[:]) + "-" + hex.EncodeToString(sid[:]) + "-" + flags
}

// ValidTraceParent reports whether v is a well-formed version 00 traceparent with non-zero IDs.
func ValidTraceParent(v string) bool {
	parts := strings.Split(v, "-")
	if len(parts) != 4 || parts[0] != "00" {
		return false
	}
	tid, err := hex.DecodeString(parts[1])
	if err != nil || len(tid) != 16 || allZero(tid) {
		return false
	}
	sid, err := hex.DecodeString(parts[2])
	if err != nil || len(sid) != 8 || allZero(sid) {
		return false
	}
	flags, err := hex.DecodeString(parts[3])
	return err == nil && len(flags) == 1 && strings.ToLower(v) == v
}

// GenerateTraceParent creates a sampled traceparent with random IDs.
// Format: version(2)-trace-id(32)-span-id(16)-flags(2).
func GenerateTraceParent() string {
	traceID := make([]byte, 16)
	spanID := make([]byte, 8)
	if _, err := crand.Read(traceID); err != nil {
		traceID = make([]byte, 16)
	}
	if _, err := crand.Read(spanID); err != nil {
		spanID = make([]byte, 8)
	}
	if allZero(traceID) {
		traceID[len(traceID)-1] = 0x01
	}
	if allZero(spanID) {
		spanID[len(spanID)-1] = 0x01
	}
	return "00-" + hex.EncodeToString(traceID) + "-" + hex.EncodeToString(spanID) + "-01"
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
