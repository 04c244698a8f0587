// Package config handles TOML-based configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"nomark/internal/provider"
)

// Duration wraps time.Duration so it can be written as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Timeouts bounds every outbound interaction.
type Timeouts struct {
	Provider Duration `toml:"provider"` // one adapter call, landing page to media body
	Redirect Duration `toml:"redirect"` // short-link resolution
	Shutdown Duration `toml:"shutdown"`
}

// Limits caps resource usage of the service.
type Limits struct {
	MaxVideoBytes     int64   `toml:"max_video_bytes"`
	RatePerMinute     int     `toml:"rate_per_minute"`     // inbound, per client IP; 0 disables
	OutboundPerSecond float64 `toml:"outbound_per_second"` // per backend; 0 disables
}

// Config holds all application configuration.
type Config struct {
	Listen         string   `toml:"listen"`
	APIKey         string   `toml:"api_key"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
	Debug          bool     `toml:"debug"`
	Providers      []string `toml:"providers"`
	DownloadDir    string   `toml:"download_dir"`
	History        bool     `toml:"history"`
	ImpersonateTLS bool     `toml:"impersonate_tls"`
	TrustedProxies []string `toml:"trusted_proxies"` // peers allowed to set X-Forwarded-For
	Timeouts       Timeouts `toml:"timeouts"`
	Limits         Limits   `toml:"limits"`

	// AllowPrivateNetworks lets outbound requests reach loopback and
	// private addresses. Needed only when egress goes through a local proxy.
	AllowPrivateNetworks bool `toml:"allow_private_networks"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:      ":8000",
		LogLevel:    "info",
		LogFormat:   "json",
		Providers:   provider.Names(),
		DownloadDir: ".",
		History:     true,
		Timeouts: Timeouts{
			Provider: Duration{60 * time.Second},
			Redirect: Duration{10 * time.Second},
			Shutdown: Duration{10 * time.Second},
		},
		Limits: Limits{
			MaxVideoBytes: 200 << 20,
			RatePerMinute: 30,
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nomark"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "nomark"), nil
}

// ConfigPath returns the default path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (or the default location when path is
// empty) and merges it with defaults. A missing default file is not an error.
// NOMARK_API_KEY overrides the key from the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if key := os.Getenv("NOMARK_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		name := strings.ToLower(strings.TrimSpace(p))
		if _, ok := provider.Lookup(name); !ok {
			return fmt.Errorf("unsupported provider %q (valid: %s)", p, strings.Join(provider.Names(), ", "))
		}
		if seen[name] {
			return fmt.Errorf("provider %q listed twice", p)
		}
		seen[name] = true
		c.Providers[i] = name
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("unsupported log format %q (valid: json, console)", c.LogFormat)
	}

	if c.Timeouts.Provider.Duration <= 0 || c.Timeouts.Redirect.Duration <= 0 || c.Timeouts.Shutdown.Duration <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if c.Limits.MaxVideoBytes <= 0 {
		return fmt.Errorf("max_video_bytes must be positive")
	}
	if c.Limits.RatePerMinute < 0 || c.Limits.OutboundPerSecond < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}

	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if err := validateCIDRList("trusted_proxies", c.TrustedProxies); err != nil {
		return err
	}

	return nil
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// HistoryPath returns the path to the fetch history database.
func HistoryPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "nomark", "history.db"), nil
}
