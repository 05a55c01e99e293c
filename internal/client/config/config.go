// Package config holds runtime settings for the Inkwell CLI client and
// the layered loading that populates them: defaults, then a JSON file,
// then command-line flags, with later sources taking precedence.
package config

import "time"

// Config holds runtime settings for the Inkwell client.
type Config struct {
	// ServerEndpointURL is the base URL of the Inkwell API,
	// e.g. "http://127.0.0.1:8080".
	ServerEndpointURL string

	// DatabasePath is the sqlite file holding the credential slot.
	DatabasePath string

	// RequestTimeout bounds every API call.
	RequestTimeout time.Duration

	// SessionCheckInterval is how often the session watcher re-validates
	// the credential against the server.
	SessionCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointURL = "http://127.0.0.1:8080"
	c.DatabasePath = "inkwell.db"
	c.RequestTimeout = 10 * time.Second
	c.SessionCheckInterval = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if a config file was given) and command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
