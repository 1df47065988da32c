// Package config loads stopwatch settings from defaults, an optional YAML
// file and STOPWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// EnvPrefix is prepended to every environment variable, so timer.mode is
// read from STOPWATCH_TIMER_MODE.
const EnvPrefix = "STOPWATCH"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// OutputFormats lists the accepted values of Config.Output.
var OutputFormats = []string{"table", "json", "yaml", "text"}

type Config struct {
	Timer   Timer   `mapstructure:"timer" json:"timer" yaml:"timer"`
	Log     Log     `mapstructure:"log" json:"log" yaml:"log"`
	Output  string  `mapstructure:"output" json:"output" yaml:"output"`
	Metrics Metrics `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Tracing Tracing `mapstructure:"tracing" json:"tracing" yaml:"tracing"`
	TLS     TLS     `mapstructure:"tls" json:"tls" yaml:"tls"`
	Auth    Auth    `mapstructure:"auth" json:"auth" yaml:"auth"`
}

type Timer struct {
	Mode    string        `mapstructure:"mode" json:"mode" yaml:"mode"`
	Format  string        `mapstructure:"format" json:"format" yaml:"format"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

type Log struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" json:"json" yaml:"json"`
	// File enables writing to /var/log/stopwatch (or ./logs) besides stdout.
	File    bool  `mapstructure:"file" json:"file" yaml:"file"`
	MaxSize int64 `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
}

type Metrics struct {
	Addr     string        `mapstructure:"addr" json:"addr" yaml:"addr"`
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
}

type Tracing struct {
	Enabled     bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	ServiceName string  `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
}

type TLS struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Cert       string `mapstructure:"cert" json:"cert" yaml:"cert"`
	Key        string `mapstructure:"key" json:"key" yaml:"key"`
	CA         string `mapstructure:"ca" json:"ca" yaml:"ca"`
	ClientAuth bool   `mapstructure:"client_auth" json:"client_auth" yaml:"client_auth"`
	// Generate creates a self-signed pair at Cert/Key when they are missing.
	Generate bool `mapstructure:"generate" json:"generate" yaml:"generate"`
}

// Auth guards the serve endpoint. No keys leaves it open; a zero RateLimit
// disables throttling.
type Auth struct {
	APIKeys   []string `mapstructure:"api_keys" json:"api_keys,omitempty" yaml:"api_keys,omitempty"`
	RateLimit float64  `mapstructure:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	Burst     int      `mapstructure:"burst" json:"burst" yaml:"burst"`

	// TrustedProxies lists peers whose X-Forwarded-For header is believed.
	TrustedProxies []string `mapstructure:"trusted_proxies" json:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`
}

// Redacted returns a copy with API keys masked, for display.
func (c Config) Redacted() Config {
	if len(c.Auth.APIKeys) > 0 {
		masked := make([]string, len(c.Auth.APIKeys))
		for i := range masked {
			masked[i] = "********"
		}
		c.Auth.APIKeys = masked
	}
	return c
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("timer.mode", stopwatch.Human.String())
	v.SetDefault("timer.format", "")
	v.SetDefault("timer.timeout", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", false)
	v.SetDefault("log.max_size", int64(10<<20))

	v.SetDefault("output", "table")

	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.interval", 30*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "stopwatch")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("tls.ca", "")
	v.SetDefault("tls.client_auth", false)
	v.SetDefault("tls.generate", false)

	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.rate_limit", 0.0)
	v.SetDefault("auth.burst", 10)
	v.SetDefault("auth.trusted_proxies", []string{})
}

// ReadInConfig points v at cfgFile, or at $HOME/.stopwatch/config.yaml
// when cfgFile is empty, and reads it. A missing default file is not an
// error. The path of the file actually read is returned.
func ReadInConfig(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("finding home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".stopwatch"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load binds the environment, decodes v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.Output = strings.ToLower(strings.TrimSpace(cfg.Output))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting, wrapping ErrInvalid.
func (c *Config) Validate() error {
	if _, err := stopwatch.ParsePrintMode(c.Timer.Mode); err != nil {
		return fmt.Errorf("%w: timer.mode: %v", ErrInvalid, err)
	}
	if c.Timer.Timeout < 0 {
		return fmt.Errorf("%w: timer.timeout must not be negative, got %s", ErrInvalid, c.Timer.Timeout)
	}
	if !lo.Contains(levels, strings.ToLower(strings.TrimSpace(c.Log.Level))) {
		return fmt.Errorf("%w: log.level %q is not one of %s", ErrInvalid, c.Log.Level, strings.Join(levels, ", "))
	}
	if c.Log.MaxSize <= 0 {
		return fmt.Errorf("%w: log.max_size must be positive", ErrInvalid)
	}
	if !lo.Contains(OutputFormats, c.Output) {
		return fmt.Errorf("%w: output %q is not one of %s", ErrInvalid, c.Output, strings.Join(OutputFormats, ", "))
	}
	if c.Metrics.Interval <= 0 {
		return fmt.Errorf("%w: metrics.interval must be positive", ErrInvalid)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("%w: tracing.sample_rate must be within [0, 1]", ErrInvalid)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("%w: tracing.endpoint is required when tracing is enabled", ErrInvalid)
	}
	if c.TLS.Enabled && (c.TLS.Cert == "" || c.TLS.Key == "") {
		return fmt.Errorf("%w: tls.cert and tls.key are required when tls is enabled", ErrInvalid)
	}
	if c.Auth.RateLimit < 0 {
		return fmt.Errorf("%w: auth.rate_limit must not be negative", ErrInvalid)
	}
	if c.Auth.RateLimit > 0 && c.Auth.Burst < 1 {
		return fmt.Errorf("%w: auth.burst must be at least 1 when rate limiting", ErrInvalid)
	}
	return nil
}

var levels = []string{"debug", "info", "warn", "warning", "error", "fatal"}

// Policy returns the rendering policy of the timer section.
func (c *Config) Policy() (stopwatch.Policy, error) {
	return stopwatch.NewPolicy(c.Timer.Mode, c.Timer.Format)
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Log.Level)
}
