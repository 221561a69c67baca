package config

import "time"

// Exists reports whether key was set by any source.
func (c *Config) Exists(key string) bool {
	return c.k != nil && c.k.Exists(key)
}

// String returns a raw string value, for keys outside the typed sections.
func (c *Config) String(key string) string {
	if c.k == nil {
		return ""
	}
	return c.k.String(key)
}

// Duration returns a raw duration value.
func (c *Config) Duration(key string) time.Duration {
	if c.k == nil {
		return 0
	}
	return c.k.Duration(key)
}

// Unmarshal decodes the subtree at path into out, for application-specific sections.
func (c *Config) Unmarshal(path string, out any) error {
	if c.k == nil {
		return ErrNotConfigured
	}
	return c.k.Unmarshal(path, out)
}
