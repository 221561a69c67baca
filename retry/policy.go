// Package retry decides whether an HTTP exchange should be attempted again and drives the
// attempt loop.
//
// A Policy pairs a retry condition with a delay calculator. Policies are plain values with
// no internal state, so a single Policy can be shared by any number of concurrent
// coordinations. A Coordinator evaluates its policies in order after every attempt: the
// first policy that votes to retry supplies the wait, and when no policy votes the current
// response or error is returned to the caller as the final outcome.
package retry

import (
	nethttp "net/http"
	"slices"
	"time"
)

// Outcome is the record of one dispatch attempt as seen by a Policy.
// Exactly one of Response and Err is usually set; a transport failure has no Response.
type Outcome struct {
	// Attempt is the 1-based index of the attempt that produced this outcome.
	Attempt int
	// Response is the received response, nil on transport failure.
	Response *nethttp.Response
	// Err is the transport-level error, nil when a response was received.
	Err error
	// Waited is the delay that preceded this attempt (zero for the first one).
	Waited time.Duration
}

// Condition reports whether a response or transport error is worth retrying.
// resp is nil when the attempt failed below the HTTP layer.
type Condition func(resp *nethttp.Response, err error) bool

// DelayFunc computes the wait before the next attempt. attempt is the 1-based index of the
// attempt that just completed; resp may be nil.
type DelayFunc func(attempt int, resp *nethttp.Response) time.Duration

// Policy is a stateless retry rule.
type Policy struct {
	name  string
	retry func(Outcome) bool
	delay func(Outcome) time.Duration
}

// Never is the policy that never retries. It is the default when nothing is configured.
var Never = Policy{name: "never"}

// NewPolicy builds a custom policy from a decision function and a delay function.
// A nil decision never retries and a nil delay retries immediately.
func NewPolicy(name string, shouldRetry func(Outcome) bool, delay func(Outcome) time.Duration) Policy {
	return Policy{name: name, retry: shouldRetry, delay: delay}
}

// FixedIntervals retries attempt i (1-based) when i <= len(intervals) and cond holds, waiting
// intervals[i-1] before the next attempt.
func FixedIntervals(cond Condition, intervals ...time.Duration) Policy {
	iv := slices.Clone(intervals)
	return Policy{
		name: "fixed-intervals",
		retry: func(o Outcome) bool {
			return o.Attempt >= 1 && o.Attempt <= len(iv) && cond != nil && cond(o.Response, o.Err)
		},
		delay: func(o Outcome) time.Duration {
			if o.Attempt < 1 || o.Attempt > len(iv) {
				return 0
			}
			return iv[o.Attempt-1]
		},
	}
}

// ComputedDelay retries attempt i (1-based) when i <= maxRetries and cond holds, waiting
// whatever delay returns. maxRetries <= 0 never retries.
func ComputedDelay(maxRetries int, cond Condition, delay DelayFunc) Policy {
	return Policy{
		name: "computed-delay",
		retry: func(o Outcome) bool {
			return o.Attempt >= 1 && o.Attempt <= maxRetries && cond != nil && cond(o.Response, o.Err)
		},
		delay: func(o Outcome) time.Duration {
			if delay == nil {
				return 0
			}
			return delay(o.Attempt, o.Response)
		},
	}
}

// Named returns a copy of p reported under name in logs and metrics.
func (p Policy) Named(name string) Policy {
	p.name = name
	return p
}

// Name identifies the policy in logs, spans and metrics.
func (p Policy) Name() string {
	if p.name == "" {
		return "custom"
	}
	return p.name
}

// ShouldRetry reports whether the policy votes to retry after o.
func (p Policy) ShouldRetry(o Outcome) bool {
	if p.retry == nil {
		return false
	}
	return p.retry(o)
}

// Delay returns the wait the policy asks for after o. Negative values are clamped to zero.
func (p Policy) Delay(o Outcome) time.Duration {
	if p.delay == nil {
		return 0
	}
	if d := p.delay(o); d > 0 {
		return d
	}
	return 0
}

// decide returns the first policy in order that votes to retry.
func decide(policies []Policy, o Outcome) (Policy, bool) {
	for _, p := range policies {
		if p.ShouldRetry(o) {
			return p, true
		}
	}
	return Policy{}, false
}
