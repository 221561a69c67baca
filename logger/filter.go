package logger

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaskValue replaces sensitive values in log output.
const DefaultMaskValue = "***"

// FilterConfig defines which keys are treated as sensitive.
type FilterConfig struct {
	// SensitiveFields are matched case-insensitively against field names, header names
	// and query parameter names. A field matches when it contains any entry.
	SensitiveFields []string
	// MaskValue replaces sensitive data (default: "***").
	MaskValue string
}

// DefaultFilterConfig returns the header and parameter names that commonly carry credentials.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "pwd",
			"secret", "api_key", "apikey", "api-key",
			"token", "access_token", "refresh_token",
			"authorization", "proxy-authorization",
			"cookie", "set-cookie",
			"credential", "credentials",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks credentials in log fields, HTTP headers and URLs.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter; a nil config selects DefaultFilterConfig.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	cfg := &FilterConfig{
		SensitiveFields: make([]string, 0, len(config.SensitiveFields)),
		MaskValue:       config.MaskValue,
	}
	for _, f := range config.SensitiveFields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			cfg.SensitiveFields = append(cfg.SensitiveFields, f)
		}
	}
	if cfg.MaskValue == "" {
		cfg.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: cfg}
}

// FilterString masks value when key is sensitive. Otherwise URLs have their password and
// sensitive query parameters masked.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if f.isSensitiveField(key) {
		return f.maskString(value)
	}
	if f.isURL(value) {
		return f.maskURL(value)
	}
	return value
}

// FilterValue masks value, descending into header and field maps.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	if f.isSensitiveField(key) {
		return f.config.MaskValue
	}

	switch v := value.(type) {
	case string:
		return f.FilterString(key, v)
	case http.Header:
		return f.FilterHeader(v)
	case map[string][]string:
		return f.FilterHeader(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = f.FilterString(k, s)
		}
		return out
	case map[string]any:
		return f.FilterFields(v)
	case *url.URL:
		if v == nil {
			return v
		}
		return f.maskURL(v.String())
	default:
		return value
	}
}

// FilterFields returns a copy of fields with sensitive entries masked.
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = f.FilterValue(k, v)
	}
	return out
}

// FilterHeader returns a copy of h with sensitive header values masked.
func (f *SensitiveDataFilter) FilterHeader(h map[string][]string) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if f.isSensitiveField(k) {
			out[k] = []string{f.config.MaskValue}
			continue
		}
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func (f *SensitiveDataFilter) isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	if lower == "" {
		return false
	}
	for _, s := range f.config.SensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func (f *SensitiveDataFilter) maskString(value string) string {
	if value == "" {
		return value
	}
	if f.isURL(value) {
		return f.maskURL(value)
	}
	return f.config.MaskValue
}

func (f *SensitiveDataFilter) isURL(value string) bool {
	return strings.Contains(value, "://")
}

func (f *SensitiveDataFilter) maskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), f.config.MaskValue)
		}
	}

	if parsed.RawQuery != "" {
		q := parsed.Query()
		masked := false
		for k := range q {
			if f.isSensitiveField(k) {
				q[k] = []string{f.config.MaskValue}
				masked = true
			}
		}
		if masked {
			parsed.RawQuery = q.Encode()
		}
	}

	// Keep the mask readable rather than percent-encoded.
	return strings.ReplaceAll(parsed.String(), url.QueryEscape(f.config.MaskValue), f.config.MaskValue)
}
