package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/partscout/internal/fingerprint"
	"github.com/FranksOps/partscout/internal/site"
)

// Backend names accepted in output.backends.
const (
	BackendJSON     = "json"
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for a search session.
type Config struct {
	Fetch     FetchConfig       `mapstructure:"fetch"`
	Output    OutputConfig      `mapstructure:"output"`
	Log       LogConfig         `mapstructure:"log"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Suppliers []site.Descriptor `mapstructure:"suppliers"`
}

// FetchConfig holds transport and courtesy settings.
type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Delay         time.Duration `mapstructure:"delay"`
	Jitter        float64       `mapstructure:"jitter"`
	MaxRedirects  int           `mapstructure:"max_redirects"`
	Fingerprint   string        `mapstructure:"fingerprint"`
	UserAgents    []string      `mapstructure:"user_agents"`
	Referer       string        `mapstructure:"referer"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	Proxies       []string      `mapstructure:"proxies"`
	ProxyFile     string        `mapstructure:"proxy_file"`
	// ProxyMaxFailures consecutive failures bench a proxy for ProxyCooldown.
	ProxyMaxFailures int           `mapstructure:"proxy_max_failures"`
	ProxyCooldown    time.Duration `mapstructure:"proxy_cooldown"`
}

// OutputConfig selects where ranked results are written.
type OutputConfig struct {
	Dir         string   `mapstructure:"dir"`
	Backends    []string `mapstructure:"backends"`
	SQLiteDSN   string   `mapstructure:"sqlite_dsn"`
	PostgresDSN string   `mapstructure:"postgres_dsn"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// MetricsConfig holds the Prometheus endpoint port; 0 disables it.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"output-dir":   "output.dir",
	"backend":      "output.backends",
	"delay":        "fetch.delay",
	"log-level":    "log.level",
	"metrics-port": "metrics.port",
}

// Load reads configuration from defaults, an optional YAML file, PARTSCOUT_*
// environment variables and flags, in increasing precedence. An explicit
// path must exist; otherwise partscout.yaml is looked up in the working
// directory and $HOME/.config/partscout.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("partscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "partscout"))
		}
	}

	v.SetEnvPrefix("PARTSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.delay", "1s")
	v.SetDefault("fetch.jitter", 0.0)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.referer", "https://www.google.com/")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.proxies", []string{})
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("fetch.proxy_max_failures", 3)
	v.SetDefault("fetch.proxy_cooldown", "5m")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.backends", []string{BackendJSON})
	v.SetDefault("output.sqlite_dsn", "partscout.db")
	v.SetDefault("output.postgres_dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.port", 0)
}

func validate(cfg *Config) error {
	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.Delay < 0 {
		return fmt.Errorf("fetch.delay must not be negative, got %s", cfg.Fetch.Delay)
	}
	if cfg.Fetch.Jitter < 0 || cfg.Fetch.Jitter > 1 {
		return fmt.Errorf("fetch.jitter must be between 0 and 1, got %v", cfg.Fetch.Jitter)
	}
	if _, err := fingerprint.ParseProfile(cfg.Fetch.Fingerprint); err != nil {
		return fmt.Errorf("fetch.fingerprint: %w", err)
	}
	if cfg.Fetch.ProxyMaxFailures < 1 {
		return fmt.Errorf("fetch.proxy_max_failures must be at least 1, got %d", cfg.Fetch.ProxyMaxFailures)
	}
	if cfg.Fetch.ProxyCooldown < 0 {
		return fmt.Errorf("fetch.proxy_cooldown must not be negative, got %s", cfg.Fetch.ProxyCooldown)
	}

	if len(cfg.Output.Backends) == 0 {
		return errors.New("output.backends must name at least one backend")
	}
	for _, b := range cfg.Output.Backends {
		if !slices.Contains([]string{BackendJSON, BackendCSV, BackendSQLite, BackendPostgres}, b) {
			return fmt.Errorf("unknown output backend %q", b)
		}
	}
	if slices.Contains(cfg.Output.Backends, BackendPostgres) && cfg.Output.PostgresDSN == "" {
		return errors.New("output.postgres_dsn is required when the postgres backend is enabled (set PARTSCOUT_OUTPUT_POSTGRES_DSN)")
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json', got: %s", cfg.Log.Format)
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", cfg.Metrics.Port)
	}

	for _, d := range cfg.Suppliers {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Descriptors returns the configured supplier table, or the built-in one
// when none is configured.
func (c *Config) Descriptors() []site.Descriptor {
	if len(c.Suppliers) == 0 {
		return site.Defaults()
	}
	return c.Suppliers
}
