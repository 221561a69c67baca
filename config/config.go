// Package config loads client, retry, logging and observability settings with koanf:
// built-in defaults, then an optional YAML file, then RETRYHTTP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override, e.g. RETRYHTTP_CLIENT_TIMEOUT.
	EnvPrefix = "RETRYHTTP_"

	// DefaultFile is read by Load when present.
	DefaultFile = "config.yaml"
)

// Load reads DefaultFile (optional) and environment overrides on top of defaults.
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile is Load with an explicit YAML path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	})
}

// LoadFromBytes parses YAML content instead of a file. Environment overrides still apply.
func LoadFromBytes(data []byte) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to parse yaml: %w", err)
		}
		return nil
	})
}

func load(source func(k *koanf.Koanf) error) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := source(k); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// transformEnv maps RETRYHTTP_CLIENT_RATE_LIMIT to client.rate.limit. Space separated values
// of list keys become slices.
func transformEnv(k, v string) (string, any) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, EnvPrefix)), "_", ".")
	if key == "log.sensitive" || strings.HasSuffix(key, ".statuses") {
		return key, strings.Fields(v)
	}
	return key, v
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"client.timeout":          "30s",
		"client.completion":       "full_body",
		"client.trace.header":     "X-Request-ID",
		"client.trace.w3c":        true,
		"client.payload.log":      false,
		"client.payload.maxbytes": 1024,
		"client.rate.limit":       0,
		"client.rate.burst":       0,

		"retry.maxattempts": 0,

		"log.level":  "info",
		"log.pretty": false,

		"observability.enabled": false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
