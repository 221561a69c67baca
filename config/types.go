package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/gaborage/go-retryhttp/observability"
)

// Config is the complete configuration of a retrying HTTP client process.
// The koanf instance it was loaded from stays attached for access to custom keys.
type Config struct {
	Client        ClientConfig         `koanf:"client" yaml:"client"`
	Retry         RetryConfig          `koanf:"retry" yaml:"retry"`
	Log           LogConfig            `koanf:"log" yaml:"log"`
	Observability observability.Config `koanf:"observability" yaml:"observability"`

	k *koanf.Koanf `yaml:"-"`
}

// ClientConfig holds transport-independent client settings.
type ClientConfig struct {
	// BaseURL is resolved against every request URL. Empty means request URLs must be absolute.
	BaseURL string        `koanf:"baseurl" yaml:"baseurl" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout" validate:"gte=0"`
	// Headers are sent with every request unless the request overrides them.
	Headers map[string]string `koanf:"headers" yaml:"headers"`

	IgnoreHTTPErrors    bool `koanf:"ignorehttperrors" yaml:"ignorehttperrors"`
	IgnoreNullArguments bool `koanf:"ignorenullarguments" yaml:"ignorenullarguments"`
	// Completion is "full_body" or "headers_only".
	Completion string `koanf:"completion" yaml:"completion" validate:"omitempty,oneof=full_body headers_only"`

	Rate    RateConfig    `koanf:"rate" yaml:"rate"`
	Trace   TraceConfig   `koanf:"trace" yaml:"trace"`
	Payload PayloadConfig `koanf:"payload" yaml:"payload"`
}

// RateConfig bounds outgoing attempts per second. A zero limit disables limiting.
type RateConfig struct {
	Limit float64 `koanf:"limit" yaml:"limit" validate:"gte=0"`
	Burst int     `koanf:"burst" yaml:"burst" validate:"gte=0"`
}

// TraceConfig controls correlation header propagation.
type TraceConfig struct {
	Header string `koanf:"header" yaml:"header"`
	W3C    bool   `koanf:"w3c" yaml:"w3c"`
}

// PayloadConfig controls debug logging of request and response bodies.
type PayloadConfig struct {
	Log      bool `koanf:"log" yaml:"log"`
	MaxBytes int  `koanf:"maxbytes" yaml:"maxbytes" validate:"gte=0"`
}

// RetryConfig describes the client-level retry policy chain.
type RetryConfig struct {
	// MaxAttempts caps attempts across all policies. Zero leaves the policies in charge.
	MaxAttempts int            `koanf:"maxattempts" yaml:"maxattempts" validate:"gte=0"`
	Policies    []PolicyConfig `koanf:"policies" yaml:"policies" validate:"dive"`
}

// Policy types.
const (
	PolicyFixed    = "fixed"
	PolicyComputed = "computed"
	PolicyNever    = "never"
)

// PolicyConfig describes one retry policy.
type PolicyConfig struct {
	Name string `koanf:"name" yaml:"name"`
	Type string `koanf:"type" yaml:"type" validate:"required,oneof=fixed computed never"`

	// Intervals are the waits of a fixed policy; their count is its retry budget.
	Intervals []time.Duration `koanf:"intervals" yaml:"intervals" validate:"required_if=Type fixed,dive,gte=0"`

	// MaxRetries, BaseDelay and MaxDelay drive a computed policy with exponential backoff.
	MaxRetries int           `koanf:"maxretries" yaml:"maxretries" validate:"gte=0"`
	BaseDelay  time.Duration `koanf:"basedelay" yaml:"basedelay" validate:"gte=0"`
	MaxDelay   time.Duration `koanf:"maxdelay" yaml:"maxdelay" validate:"gte=0"`

	// Statuses, ServerErrors, TransportErrors and Timeouts select the outcomes retried.
	// With none set the policy retries transient failures.
	Statuses        []int `koanf:"statuses" yaml:"statuses" validate:"dive,gte=100,lte=599"`
	ServerErrors    bool  `koanf:"servererrors" yaml:"servererrors"`
	TransportErrors bool  `koanf:"transporterrors" yaml:"transporterrors"`
	Timeouts        bool  `koanf:"timeouts" yaml:"timeouts"`

	// RetryAfter lets a computed policy honour the server's Retry-After header.
	RetryAfter bool `koanf:"retryafter" yaml:"retryafter"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `koanf:"pretty" yaml:"pretty"`
	// Sensitive lists extra field names to mask on top of the built-in ones.
	Sensitive []string `koanf:"sensitive" yaml:"sensitive"`
}
