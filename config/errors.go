package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured indicates a feature is intentionally not configured.
var ErrNotConfigured = errors.New("not configured")

// Error categories.
const (
	CategoryMissing       = "missing"
	CategoryInvalid       = "invalid"
	CategoryNotConfigured = "not_configured"
)

// ConfigError describes a configuration problem and how to fix it.
//
//nolint:revive // stutters on purpose; callers read it as config.ConfigError in logs
type ConfigError struct {
	Category string   // one of the Category* constants
	Field    string   // config path, e.g. "retry.policies[0].intervals"
	Message  string   // lowercase message
	Action   string   // lowercase instruction
	Details  []string // examples or extra context
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, 5)
	if e.Category != "" {
		parts = append(parts, "config_"+e.Category+":")
	}
	for _, s := range []string{e.Field, e.Message, e.Action} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(e.Details) > 0 {
		parts = append(parts, strings.Join(e.Details, "; "))
	}
	return strings.Join(parts, " ")
}

// atPolicy returns a copy of e scoped to the i-th retry policy.
func (e *ConfigError) atPolicy(i int) *ConfigError {
	scoped := *e
	path := fmt.Sprintf("retry.policies[%d]", i)
	if e.Field != "" {
		path += "." + e.Field
	}
	scoped.Field = path
	if e.Category == CategoryMissing {
		scoped.Action = fmt.Sprintf("set %s env var or add %s to config.yaml", envVarFor(path), path)
	}
	return &scoped
}

// envVarFor maps a config path such as retry.policies[0].intervals to its environment
// override, RETRYHTTP_RETRY_POLICIES_0_INTERVALS.
func envVarFor(path string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "[", "_", "]", "").Replace(path))
}

// NewMissingFieldError creates an error for a required missing configuration field.
func NewMissingFieldError(field, envVar, yamlPath string) *ConfigError {
	return &ConfigError{
		Category: CategoryMissing,
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s env var or add %s to config.yaml", envVar, yamlPath),
	}
}

// NewInvalidFieldError creates an error for an invalid configuration value.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{Category: CategoryInvalid, Field: field, Message: message}
	if len(validOptions) > 0 {
		err.Action = "must be one of: " + strings.Join(validOptions, ", ")
	}
	return err
}

// NewNotConfiguredError marks an optional feature that was left off.
func NewNotConfiguredError(feature, envVar, yamlPath string) *ConfigError {
	return &ConfigError{
		Category: CategoryNotConfigured,
		Field:    feature,
		Message:  "(optional)",
		Action:   fmt.Sprintf("to enable: set %s env var or add %s to config.yaml", envVar, yamlPath),
	}
}

// IsNotConfigured reports whether err marks an intentionally absent feature.
func IsNotConfigured(err error) bool {
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	var configErr *ConfigError
	return errors.As(err, &configErr) && configErr.Category == CategoryNotConfigured
}
