package retry

import (
	crand "crypto/rand"
	"math/big"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"
)

// maxBackoff caps exponential delays when the caller passes no explicit ceiling.
const maxBackoff = 30 * time.Second

// Constant always waits d.
func Constant(d time.Duration) DelayFunc {
	return func(int, *nethttp.Response) time.Duration { return d }
}

// Exponential waits a random duration in [0, base*2^(attempt-1)), capped at ceiling
// (30s when ceiling <= 0). A non-positive base falls back to 50ms.
func Exponential(base, ceiling time.Duration) DelayFunc {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if ceiling <= 0 {
		ceiling = maxBackoff
	}
	return func(attempt int, _ *nethttp.Response) time.Duration {
		exp := attempt - 1
		if exp < 0 {
			exp = 0
		}
		// 2^20 is already far beyond any sane ceiling
		if exp > 20 {
			exp = 20
		}
		d := base * time.Duration(1<<exp)
		if d > ceiling || d <= 0 {
			d = ceiling
		}
		return fullJitter(d)
	}
}

// RetryAfter honours a Retry-After response header, either delta-seconds or an HTTP-date,
// capped at ceiling when ceiling > 0. Without a usable header it defers to fallback.
func RetryAfter(fallback DelayFunc, ceiling time.Duration) DelayFunc {
	return func(attempt int, resp *nethttp.Response) time.Duration {
		if d, ok := ParseRetryAfter(resp, time.Now()); ok {
			if ceiling > 0 && d > ceiling {
				return ceiling
			}
			return d
		}
		if fallback == nil {
			return 0
		}
		return fallback(attempt, resp)
	}
}

// ParseRetryAfter extracts the Retry-After delay from resp relative to now.
// A date in the past yields zero.
func ParseRetryAfter(resp *nethttp.Response, now time.Time) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := nethttp.ParseTime(raw)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

// fullJitter returns a random duration in [0, d). On RNG failure it returns d.
func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	n, err := crand.Int(crand.Reader, big.NewInt(int64(d)))
	if err != nil {
		return d
	}
	return time.Duration(n.Int64())
}
