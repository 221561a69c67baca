package observability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// EndpointStdout prints telemetry to stdout instead of exporting it.
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// EnvironmentDevelopment is the default deployment environment.
	EnvironmentDevelopment = "development"
)

// Config defines the telemetry pipeline behind the client's spans and retry metrics.
type Config struct {
	// Enabled controls whether observability is active. When false the provider is a no-op.
	Enabled bool `koanf:"enabled" yaml:"enabled"`

	Service ServiceConfig `koanf:"service" yaml:"service"`

	// Environment is reported as deployment.environment.name.
	Environment string `koanf:"environment" yaml:"environment"`

	Trace   TraceConfig   `koanf:"trace" yaml:"trace"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
}

// ServiceConfig identifies the service in traces and metrics.
type ServiceConfig struct {
	Name    string `koanf:"name" yaml:"name"`
	Version string `koanf:"version" yaml:"version"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	Enabled *bool `koanf:"enabled" yaml:"enabled"`
	// Endpoint is "stdout" or an OTLP endpoint. HTTP endpoints carry a scheme, gRPC
	// endpoints are host:port.
	Endpoint string            `koanf:"endpoint" yaml:"endpoint"`
	Protocol string            `koanf:"protocol" yaml:"protocol"`
	Insecure bool              `koanf:"insecure" yaml:"insecure"`
	Headers  map[string]string `koanf:"headers" yaml:"headers"`
	// SampleRate is the TraceIDRatioBased sampling ratio in [0, 1].
	SampleRate *float64 `koanf:"samplerate" yaml:"samplerate"`
	// BatchTimeout is the batch span processor's flush interval.
	BatchTimeout time.Duration `koanf:"batchtimeout" yaml:"batchtimeout"`
	// ExportTimeout bounds a single export.
	ExportTimeout time.Duration `koanf:"exporttimeout" yaml:"exporttimeout"`
}

// MetricsConfig configures metric export. Protocol, Insecure and Headers are shared with
// TraceConfig.
type MetricsConfig struct {
	Enabled       *bool         `koanf:"enabled" yaml:"enabled"`
	Endpoint      string        `koanf:"endpoint" yaml:"endpoint"`
	Interval      time.Duration `koanf:"interval" yaml:"interval"`
	ExportTimeout time.Duration `koanf:"exporttimeout" yaml:"exporttimeout"`
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// ApplyDefaults fills unset fields. Traces and metrics default to on when observability is
// enabled and an explicit false is preserved.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}

	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Trace.Enabled == nil {
		c.Trace.Enabled = BoolPtr(true)
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.SampleRate == nil {
		c.Trace.SampleRate = Float64Ptr(1.0)
	}
	if c.Trace.BatchTimeout == 0 {
		if c.Environment == EnvironmentDevelopment || c.Trace.Endpoint == EndpointStdout {
			c.Trace.BatchTimeout = 500 * time.Millisecond
		} else {
			c.Trace.BatchTimeout = 5 * time.Second
		}
	}
	if c.Trace.ExportTimeout == 0 {
		c.Trace.ExportTimeout = 30 * time.Second
	}

	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = c.Trace.Endpoint
	}
	if c.Enabled && c.Metrics.Enabled == nil {
		c.Metrics.Enabled = BoolPtr(true)
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 10 * time.Second
	}
	if c.Metrics.ExportTimeout == 0 {
		c.Metrics.ExportTimeout = 30 * time.Second
	}
}

// Validation errors. Callers match them with errors.Is.
var (
	ErrNilConfig             = errors.New("observability: config is nil")
	ErrMissingServiceName    = errors.New("observability: service name is required when enabled")
	ErrInvalidSampleRate     = errors.New("observability: trace sample rate must be within [0, 1]")
	ErrInvalidProtocol       = errors.New("observability: protocol must be http or grpc")
	ErrInvalidEndpointFormat = errors.New("observability: endpoint does not match protocol")
)

// Validate checks the configuration. A disabled configuration is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if c.Trace.SampleRate != nil && (*c.Trace.SampleRate < 0 || *c.Trace.SampleRate > 1) {
		return ErrInvalidSampleRate
	}
	if c.Trace.Protocol != ProtocolHTTP && c.Trace.Protocol != ProtocolGRPC {
		return fmt.Errorf("trace protocol '%s': %w", c.Trace.Protocol, ErrInvalidProtocol)
	}
	if err := validateEndpoint("trace", c.Trace.Endpoint, c.Trace.Protocol); err != nil {
		return err
	}
	return validateEndpoint("metrics", c.Metrics.Endpoint, c.Trace.Protocol)
}

func validateEndpoint(signal, endpoint, protocol string) error {
	if endpoint == "" || endpoint == EndpointStdout {
		return nil
	}
	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
	switch {
	case protocol == ProtocolGRPC && hasScheme:
		return fmt.Errorf("%s endpoint %q must be host:port for grpc: %w", signal, endpoint, ErrInvalidEndpointFormat)
	case protocol == ProtocolHTTP && !hasScheme:
		return fmt.Errorf("%s endpoint %q must include http:// or https://: %w", signal, endpoint, ErrInvalidEndpointFormat)
	}
	return nil
}
