package retry

import (
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"slices"
)

// OnStatus retries responses whose status code is one of codes.
func OnStatus(codes ...int) Condition {
	set := slices.Clone(codes)
	return func(resp *nethttp.Response, _ error) bool {
		return resp != nil && slices.Contains(set, resp.StatusCode)
	}
}

// OnServerError retries 5xx responses.
func OnServerError() Condition {
	return func(resp *nethttp.Response, _ error) bool {
		return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
	}
}

// OnTransportError retries failures below the HTTP layer. Cancellation is never retried.
func OnTransportError() Condition {
	return func(resp *nethttp.Response, err error) bool {
		return resp == nil && err != nil && !errors.Is(err, context.Canceled)
	}
}

// OnTimeout retries transport failures that report a timeout.
func OnTimeout() Condition {
	return func(_ *nethttp.Response, err error) bool {
		return IsTimeout(err)
	}
}

// Transient retries 5xx responses, 408, 429 and transport failures. It is the condition
// behind the client's WithRetries shortcut.
func Transient() Condition {
	return Any(
		OnServerError(),
		OnStatus(nethttp.StatusRequestTimeout, nethttp.StatusTooManyRequests),
		OnTransportError(),
	)
}

// Any holds when at least one of conds holds.
func Any(conds ...Condition) Condition {
	return func(resp *nethttp.Response, err error) bool {
		for _, c := range conds {
			if c != nil && c(resp, err) {
				return true
			}
		}
		return false
	}
}

// IsTimeout reports whether err is a deadline or a net.Error timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
