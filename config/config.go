// Package config loads broker configuration from a TOML file.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mini-kafka/protocol"
	"mini-kafka/registry"
)

// Config is the broker process configuration.
type Config struct {
	ListenAddr    string   `toml:"listen_addr"`
	AdvertiseAddr string   `toml:"advertise_addr"`
	Cluster       string   `toml:"cluster"`
	NodeID        int32    `toml:"node_id"`
	EtcdEndpoints []string `toml:"etcd_endpoints"`

	// Requests per second admitted per broker; 0 disables rate limiting.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`

	// Go duration string, e.g. "2s"; empty disables the handler timeout.
	HandlerTimeout string `toml:"handler_timeout"`

	LogLevel string `toml:"log_level"`
}

// Default returns the configuration used when no file is given: a
// standalone broker on the conventional loopback address.
func Default() Config {
	return Config{
		ListenAddr: protocol.DefaultAddr,
		Cluster:    registry.DefaultCluster,
		LogLevel:   "info",
	}
}

// Load reads and validates a TOML config file, filling defaults for fields
// left unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = cfg.ListenAddr
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the broker cannot start with.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", c.ListenAddr, err)
	}
	if c.Cluster == "" {
		return fmt.Errorf("cluster must not be empty")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

// Timeout parses HandlerTimeout; zero means disabled.
func (c Config) Timeout() (time.Duration, error) {
	if c.HandlerTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.HandlerTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid handler_timeout %q: %w", c.HandlerTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("handler_timeout must not be negative")
	}
	return d, nil
}
