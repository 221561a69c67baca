// Package snapshot captures an outgoing HTTP request into an immutable, re-sendable form.
//
// A request body is a stream that can be consumed once. Capture buffers it into memory a
// single time, and every call to Materialize derives a brand new *http.Request whose body
// reader starts at offset zero over that buffer.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	nethttp "net/http"
	"net/url"
)

// Error reports that a request could not be captured, typically because reading the
// original body failed. No partial snapshot is ever returned alongside it.
type Error struct {
	Method string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsSnapshotError reports whether err is or wraps a snapshot *Error.
func IsSnapshotError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// Snapshot is an immutable capture of a request. It is safe for concurrent use.
type Snapshot struct {
	method     string
	url        *url.URL
	header     nethttp.Header
	trailer    nethttp.Header
	body       []byte
	hasBody    bool
	host       string
	proto      string
	protoMajor int
	protoMinor int
	properties map[string]any
}

// Option customises a snapshot at capture time.
type Option func(*Snapshot)

// WithProperties attaches a property bag that travels with every materialized request.
func WithProperties(props map[string]any) Option {
	return func(s *Snapshot) {
		if len(props) == 0 {
			return
		}
		if s.properties == nil {
			s.properties = make(map[string]any, len(props))
		}
		maps.Copy(s.properties, props)
	}
}

// Capture buffers req into a Snapshot. The body of req is consumed and replaced with a
// fresh reader over the buffered bytes, so req remains fully readable afterwards.
func Capture(req *nethttp.Request, opts ...Option) (*Snapshot, error) {
	if req == nil {
		return nil, &Error{Err: errors.New("request is nil")}
	}
	if req.URL == nil {
		return nil, &Error{Method: req.Method, Err: errors.New("request URL is nil")}
	}

	s := &Snapshot{
		method:     req.Method,
		url:        cloneURL(req.URL),
		header:     req.Header.Clone(),
		trailer:    req.Trailer.Clone(),
		host:       req.Host,
		proto:      req.Proto,
		protoMajor: req.ProtoMajor,
		protoMinor: req.ProtoMinor,
	}
	if s.header == nil {
		s.header = make(nethttp.Header)
	}

	if req.Body != nil && req.Body != nethttp.NoBody {
		data, err := io.ReadAll(req.Body)
		closeErr := req.Body.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, &Error{Method: req.Method, URL: req.URL.Redacted(), Err: fmt.Errorf("buffer request body: %w", err)}
		}
		s.body = data
		s.hasBody = true

		req.Body = io.NopCloser(bytes.NewReader(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
		req.ContentLength = int64(len(data))
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FromParts builds a Snapshot without an intermediate *http.Request.
// body may be nil for requests without a payload; it is copied.
func FromParts(method string, u *url.URL, header nethttp.Header, body []byte, opts ...Option) (*Snapshot, error) {
	if u == nil {
		return nil, &Error{Method: method, Err: errors.New("request URL is nil")}
	}
	if method == "" {
		method = nethttp.MethodGet
	}
	s := &Snapshot{
		method:     method,
		url:        cloneURL(u),
		header:     header.Clone(),
		proto:      "HTTP/1.1",
		protoMajor: 1,
		protoMinor: 1,
	}
	if s.header == nil {
		s.header = make(nethttp.Header)
	}
	if body != nil {
		s.body = bytes.Clone(body)
		s.hasBody = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Materialize derives a new outgoing request bound to ctx. Each call returns an
// independently owned request whose body reader starts at the beginning of the buffer.
func (s *Snapshot) Materialize(ctx context.Context) (*nethttp.Request, error) {
	if len(s.properties) > 0 {
		ctx = context.WithValue(ctx, propertiesKey{}, s.properties)
	}

	var body io.Reader
	if s.hasBody {
		body = bytes.NewReader(s.body)
	}

	req, err := nethttp.NewRequestWithContext(ctx, s.method, s.url.String(), body)
	if err != nil {
		return nil, &Error{Method: s.method, URL: s.url.Redacted(), Err: fmt.Errorf("materialize request: %w", err)}
	}

	req.URL = cloneURL(s.url)
	req.Header = s.header.Clone()
	req.Trailer = s.trailer.Clone()
	if s.host != "" {
		req.Host = s.host
	}
	if s.proto != "" {
		req.Proto = s.proto
		req.ProtoMajor = s.protoMajor
		req.ProtoMinor = s.protoMinor
	}
	return req, nil
}

// WithHeader returns a copy of the snapshot with key set to value. The body buffer is shared
// since neither snapshot ever writes to it.
func (s *Snapshot) WithHeader(key, value string) *Snapshot {
	c := *s
	c.header = s.header.Clone()
	c.header.Set(key, value)
	return &c
}

// Method returns the captured request method.
func (s *Snapshot) Method() string { return s.method }

// URL returns a copy of the captured request URL.
func (s *Snapshot) URL() *url.URL { return cloneURL(s.url) }

// Header returns a copy of the captured headers.
func (s *Snapshot) Header() nethttp.Header { return s.header.Clone() }

// Body returns a copy of the buffered body and whether the request carried one.
func (s *Snapshot) Body() ([]byte, bool) {
	if !s.hasBody {
		return nil, false
	}
	return bytes.Clone(s.body), true
}

// Proto returns the captured protocol version string.
func (s *Snapshot) Proto() string { return s.proto }

type propertiesKey struct{}

// PropertiesFrom returns the property bag attached to a materialized request, if any.
// The returned map must not be modified.
func PropertiesFrom(req *nethttp.Request) map[string]any {
	if req == nil {
		return nil
	}
	props, _ := req.Context().Value(propertiesKey{}).(map[string]any)
	return props
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
