package http

// Completion selects how much of a response is read before a call returns.
type Completion string

const (
	// CompletionFullBody reads the whole payload inside the attempt. A failed read is a
	// transport failure that retry policies may act on.
	CompletionFullBody Completion = "full_body"
	// CompletionHeadersOnly returns once headers arrive and hands back the open stream.
	CompletionHeadersOnly Completion = "headers_only"
)

// Options are client-level defaults that a Request may override field by field.
type Options struct {
	// IgnoreHTTPErrors returns non-2xx responses without an HTTP error.
	IgnoreHTTPErrors bool
	// IgnoreNullArguments drops nil query values instead of sending them empty.
	IgnoreNullArguments bool
	Completion          Completion
}

// DefaultOptions reads full bodies and reports non-2xx statuses as errors.
func DefaultOptions() Options {
	return Options{Completion: CompletionFullBody}
}

// Merge applies the overrides carried by req. Values set on the request win.
func (o Options) Merge(req *Request) Options {
	out := o
	if out.Completion == "" {
		out.Completion = CompletionFullBody
	}
	if req == nil {
		return out
	}
	if req.IgnoreHTTPErrors != nil {
		out.IgnoreHTTPErrors = *req.IgnoreHTTPErrors
	}
	if req.IgnoreNullArguments != nil {
		out.IgnoreNullArguments = *req.IgnoreNullArguments
	}
	if req.Completion != "" {
		out.Completion = req.Completion
	}
	return out
}

func validCompletion(c Completion) bool {
	return c == "" || c == CompletionFullBody || c == CompletionHeadersOnly
}

// Bool returns a pointer to v, for the per-request override fields.
func Bool(v bool) *bool {
	return &v
}
