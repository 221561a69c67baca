package http

import (
	"context"
	"maps"
	nethttp "net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gaborage/go-retryhttp/config"
	"github.com/gaborage/go-retryhttp/logger"
	"github.com/gaborage/go-retryhttp/retry"
	retrytrace "github.com/gaborage/go-retryhttp/trace"
)

const (
	// DefaultTimeout is the default request timeout duration
	DefaultTimeout = 30 * time.Second

	// DefaultMaxPayloadLogBytes caps logged payload previews when none is configured
	DefaultMaxPayloadLogBytes = 1024

	// defaultRetryAfterCeiling bounds how long a server may ask WithRetries clients to wait
	defaultRetryAfterCeiling = 30 * time.Second
)

// Builder provides a fluent interface for configuring the REST client
type Builder struct {
	config     *Config
	logger     logger.Logger
	httpClient *nethttp.Client
	transport  nethttp.RoundTripper
	wait       retry.WaitFunc
}

func defaultConfig() *Config {
	return &Config{
		Timeout:              DefaultTimeout,
		RequestInterceptors:  []RequestInterceptor{},
		ResponseInterceptors: []ResponseInterceptor{},
		DefaultHeaders:       make(map[string]string),
		Options:              DefaultOptions(),
		MaxPayloadLogBytes:   DefaultMaxPayloadLogBytes,
		TraceIDHeader:        HeaderXRequestID,
		NewTraceID:           uuid.NewString,
		TraceIDExtractor:     retrytrace.IDFromContext,
		EnableW3CTrace:       true,
	}
}

// NewClient creates a new REST client with default configuration: no retries,
// X-Request-ID and W3C trace propagation, full body reads.
func NewClient(log logger.Logger) Client {
	return NewBuilder(log).Build()
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: log,
	}
}

// NewBuilderFromConfig seeds a builder with loaded configuration. Further With* calls
// refine it as usual.
func NewBuilderFromConfig(log logger.Logger, cfg *config.Config) (*Builder, error) {
	if cfg == nil {
		return nil, NewValidationError("config cannot be nil", "config")
	}
	policies, err := cfg.Retry.Build()
	if err != nil {
		return nil, err
	}

	cc := cfg.Client
	b := NewBuilder(log).
		WithTimeout(cc.Timeout).
		WithBaseURL(cc.BaseURL).
		WithRetryPolicy(policies...).
		WithMaxAttempts(cfg.Retry.MaxAttempts).
		WithOptions(Options{
			IgnoreHTTPErrors:    cc.IgnoreHTTPErrors,
			IgnoreNullArguments: cc.IgnoreNullArguments,
			Completion:          Completion(cc.Completion),
		}).
		WithTraceIDHeader(cc.Trace.Header).
		WithW3CTrace(cc.Trace.W3C).
		WithPayloadLogging(cc.Payload.Log, cc.Payload.MaxBytes)

	for key, value := range cc.Headers {
		b.WithDefaultHeader(key, value)
	}
	if cc.Rate.Limit > 0 {
		b.WithRateLimit(rate.Limit(cc.Rate.Limit), cc.Rate.Burst)
	}
	return b, nil
}

// WithTimeout sets the request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithBaseURL sets the URL every request URL is resolved against
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithRetryPolicy appends policies to the client's retry chain, evaluated in order
func (b *Builder) WithRetryPolicy(policies ...retry.Policy) *Builder {
	b.config.RetryPolicies = append(b.config.RetryPolicies, policies...)
	return b
}

// WithRetries retries transient failures up to maxRetries times with exponential backoff
// based on retryDelay, honouring Retry-After when the server sends it.
func (b *Builder) WithRetries(maxRetries int, retryDelay time.Duration) *Builder {
	delay := retry.RetryAfter(retry.Exponential(retryDelay, 0), defaultRetryAfterCeiling)
	b.config.RetryPolicies = append(b.config.RetryPolicies,
		retry.ComputedDelay(maxRetries, retry.Transient(), delay).Named("retries"))
	return b
}

// WithMaxAttempts caps total attempts per call regardless of the policies
func (b *Builder) WithMaxAttempts(n int) *Builder {
	b.config.MaxAttempts = n
	return b
}

// WithBasicAuth sets basic authentication credentials
func (b *Builder) WithBasicAuth(username, password string) *Builder {
	b.config.BasicAuth = &BasicAuth{
		Username: username,
		Password: password,
	}
	return b
}

// WithBearerToken sends token as a bearer credential when no basic auth applies
func (b *Builder) WithBearerToken(token string) *Builder {
	b.config.BearerToken = token
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor. Interceptors run on every attempt.
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor. Interceptors run on every attempt.
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithHTTPClient uses client for dispatch. Its own timeout wins unless it is zero.
func (b *Builder) WithHTTPClient(client *nethttp.Client) *Builder {
	b.httpClient = client
	return b
}

// WithTransport sets the round tripper of the underlying http.Client
func (b *Builder) WithTransport(transport nethttp.RoundTripper) *Builder {
	b.transport = transport
	return b
}

// WithRateLimit allows limit attempts per second with the given burst. Retries count.
func (b *Builder) WithRateLimit(limit rate.Limit, burst int) *Builder {
	b.config.RateLimit = limit
	b.config.RateBurst = burst
	return b
}

// WithOptions replaces the client-level defaults requests may override
func (b *Builder) WithOptions(opts Options) *Builder {
	b.config.Options = opts
	return b
}

// WithTraceIDHeader sets the header name used for trace ID propagation
func (b *Builder) WithTraceIDHeader(header string) *Builder {
	if header != "" {
		b.config.TraceIDHeader = header
	}
	return b
}

// WithTraceIDGenerator sets the generator used when no trace ID is found
func (b *Builder) WithTraceIDGenerator(gen func() string) *Builder {
	if gen != nil {
		b.config.NewTraceID = gen
	}
	return b
}

// WithTraceIDExtractor sets the lookup consulted before the context trace ID
func (b *Builder) WithTraceIDExtractor(extractor func(context.Context) (string, bool)) *Builder {
	if extractor != nil {
		b.config.TraceIDExtractor = extractor
	}
	return b
}

// WithW3CTrace toggles traceparent/tracestate propagation
func (b *Builder) WithW3CTrace(enabled bool) *Builder {
	b.config.EnableW3CTrace = enabled
	return b
}

// WithPayloadLogging toggles debug logging of headers and bodies, truncated to maxBytes
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithTracerProvider instruments the transport and retry coordination with tp
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.config.TracerProvider = tp
	return b
}

// WithMeterProvider records transport and retry metrics on mp
func (b *Builder) WithMeterProvider(mp metric.MeterProvider) *Builder {
	b.config.MeterProvider = mp
	return b
}

// withWait replaces the inter-attempt wait so tests observe delays instead of sleeping
func (b *Builder) withWait(fn retry.WaitFunc) *Builder {
	b.wait = fn
	return b
}

// Build creates the REST client with the configured options
func (b *Builder) Build() Client {
	cfg := *b.config
	cfg.RetryPolicies = slices.Clone(b.config.RetryPolicies)
	cfg.RequestInterceptors = slices.Clone(b.config.RequestInterceptors)
	cfg.ResponseInterceptors = slices.Clone(b.config.ResponseInterceptors)
	cfg.DefaultHeaders = maps.Clone(b.config.DefaultHeaders)
	if cfg.MaxPayloadLogBytes <= 0 {
		cfg.MaxPayloadLogBytes = DefaultMaxPayloadLogBytes
	}

	log := b.logger
	if log == nil {
		log = logger.Nop()
	}

	c := &client{
		httpClient:           b.buildHTTPClient(&cfg),
		logger:               log,
		config:               &cfg,
		requestInterceptors:  cfg.RequestInterceptors,
		responseInterceptors: cfg.ResponseInterceptors,
		propagator: retrytrace.Propagator{
			Header:  cfg.TraceIDHeader,
			NewID:   cfg.NewTraceID,
			Extract: cfg.TraceIDExtractor,
			W3C:     cfg.EnableW3CTrace,
		},
	}

	retryOptions := []retry.Option{retry.WithMaxAttempts(cfg.MaxAttempts)}
	if cfg.TracerProvider != nil {
		retryOptions = append(retryOptions, retry.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		retryOptions = append(retryOptions, retry.WithMeterProvider(cfg.MeterProvider))
	}
	if b.wait != nil {
		retryOptions = append(retryOptions, retry.WithWait(b.wait))
	}
	c.single = retry.NewCoordinator(log, nil, retryOptions...)
	c.coordinator = c.single.WithPolicies(cfg.RetryPolicies...)

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	return c
}

func (b *Builder) buildHTTPClient(cfg *Config) *nethttp.Client {
	// A caller-supplied client is copied, never modified.
	hc := &nethttp.Client{Timeout: cfg.Timeout}
	if b.httpClient != nil {
		supplied := *b.httpClient
		hc = &supplied
		if hc.Timeout == 0 {
			hc.Timeout = cfg.Timeout
		}
	}
	if b.transport != nil {
		hc.Transport = b.transport
	}

	if cfg.TracerProvider == nil && cfg.MeterProvider == nil {
		return hc
	}
	base := hc.Transport
	if base == nil {
		base = nethttp.DefaultTransport
	}
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts,
			otelhttp.WithTracerProvider(cfg.TracerProvider),
			otelhttp.WithPropagators(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{}, propagation.Baggage{})),
		)
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	hc.Transport = otelhttp.NewTransport(base, opts...)
	return hc
}
