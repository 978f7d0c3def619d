package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/c360/secplugin/dispatch"
	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/message"
	"github.com/c360/secplugin/pkg/retry"
	"github.com/c360/secplugin/pkg/tlsutil"
	"github.com/c360/secplugin/session"
)

// EnvPrefix prefixes environment overrides: relay.url is read from
// SECPLUGIN_RELAY_URL.
const EnvPrefix = "SECPLUGIN"

// Config is the complete runtime configuration.
type Config struct {
	Relay    RelayConfig    `mapstructure:"relay"`
	Session  SessionConfig  `mapstructure:"session"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// RelayConfig identifies the relay and the plugin.
type RelayConfig struct {
	URL   string `mapstructure:"url"`
	PID   string `mapstructure:"pid"`
	Name  string `mapstructure:"name"`
	Token string `mapstructure:"token"`
	Codec string `mapstructure:"codec"` // json or cbor

	TLS tlsutil.ClientConfig `mapstructure:"tls"`
}

// SessionConfig tunes timeouts, liveness and reconnect backoff.
type SessionConfig struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	DeadAfter         time.Duration `mapstructure:"dead_after"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DispatchBuffer    int           `mapstructure:"dispatch_buffer"`
	MaxRetries        int           `mapstructure:"max_retries"` // 0 = unlimited
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	BackoffJitter     bool          `mapstructure:"backoff_jitter"`
}

// DispatchConfig bounds handler execution.
type DispatchConfig struct {
	MaxConcurrent int      `mapstructure:"max_concurrent"`
	PoolWorkers   int      `mapstructure:"pool_workers"`
	TextTags      []string `mapstructure:"text_tags"` // empty = all content tags
}

// MetricsConfig controls the metrics and health endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LogConfig selects log verbosity and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sd := session.DefaultConfig()
	return &Config{
		Relay: RelayConfig{
			URL:   sd.URL,
			PID:   sd.PID,
			Name:  sd.Name,
			Token: sd.Token,
			Codec: "json",
		},
		Session: SessionConfig{
			ConnectTimeout:    sd.ConnectTimeout,
			AuthTimeout:       sd.AuthTimeout,
			WriteTimeout:      sd.WriteTimeout,
			PingInterval:      sd.PingInterval,
			DeadAfter:         sd.DeadAfter,
			RequestTimeout:    sd.RequestTimeout,
			DispatchBuffer:    sd.DispatchBuffer,
			MaxRetries:        sd.Backoff.MaxAttempts,
			BackoffInitial:    sd.Backoff.InitialDelay,
			BackoffMax:        sd.Backoff.MaxDelay,
			BackoffMultiplier: sd.Backoff.Multiplier,
			BackoffJitter:     sd.Backoff.AddJitter,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: dispatch.DefaultMaxConcurrent,
			PoolWorkers:   dispatch.DefaultMaxConcurrent,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// setDefaults registers every key with viper so that environment overrides
// apply to keys absent from the files.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("relay.url", d.Relay.URL)
	v.SetDefault("relay.pid", d.Relay.PID)
	v.SetDefault("relay.name", d.Relay.Name)
	v.SetDefault("relay.token", d.Relay.Token)
	v.SetDefault("relay.codec", d.Relay.Codec)
	v.SetDefault("relay.tls.ca_files", []string{})
	v.SetDefault("relay.tls.insecure_skip_verify", false)
	v.SetDefault("relay.tls.min_version", "")
	v.SetDefault("relay.tls.server_name", "")
	v.SetDefault("relay.tls.cert_file", "")
	v.SetDefault("relay.tls.key_file", "")

	v.SetDefault("session.connect_timeout", d.Session.ConnectTimeout)
	v.SetDefault("session.auth_timeout", d.Session.AuthTimeout)
	v.SetDefault("session.write_timeout", d.Session.WriteTimeout)
	v.SetDefault("session.ping_interval", d.Session.PingInterval)
	v.SetDefault("session.dead_after", d.Session.DeadAfter)
	v.SetDefault("session.request_timeout", d.Session.RequestTimeout)
	v.SetDefault("session.dispatch_buffer", d.Session.DispatchBuffer)
	v.SetDefault("session.max_retries", d.Session.MaxRetries)
	v.SetDefault("session.backoff_initial", d.Session.BackoffInitial)
	v.SetDefault("session.backoff_max", d.Session.BackoffMax)
	v.SetDefault("session.backoff_multiplier", d.Session.BackoffMultiplier)
	v.SetDefault("session.backoff_jitter", d.Session.BackoffJitter)

	v.SetDefault("dispatch.max_concurrent", d.Dispatch.MaxConcurrent)
	v.SetDefault("dispatch.pool_workers", d.Dispatch.PoolWorkers)
	v.SetDefault("dispatch.text_tags", []string{})

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones key by key. The format follows the extension (yaml, json, toml).
func (l *Loader) AddLayer(path string) {
	if path != "" {
		l.layers = append(l.layers, path)
	}
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = nil
	l.AddLayer(path)
	return l.Load()
}

// Load merges defaults, every layer and the environment, in that order.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range l.layers {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, path, err),
				"Loader", "Load", "read config layer")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode config")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "text"}
	validCodecs  = []string{"json", "cbor"}
)

// Validate checks the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(
			fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
			"Config", "Validate", "validate config")
	}

	if c.Relay.URL == "" {
		return invalid("relay.url is required")
	}
	u, err := url.Parse(c.Relay.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return invalid("relay.url %q must be a ws:// or wss:// address", c.Relay.URL)
	}
	if c.Relay.PID == "" {
		return invalid("relay.pid is required")
	}
	if c.Relay.Codec != "" && !slices.Contains(validCodecs, c.Relay.Codec) {
		return invalid("relay.codec %q must be one of %v", c.Relay.Codec, validCodecs)
	}
	if err := c.Relay.TLS.Validate(); err != nil {
		return invalid("relay.tls: %v", err)
	}

	if c.Session.MaxRetries < 0 {
		return invalid("session.max_retries cannot be negative")
	}
	if err := c.SessionConfig().Validate(); err != nil {
		return invalid("session: %v", err)
	}

	if c.Dispatch.MaxConcurrent < 0 || c.Dispatch.PoolWorkers < 0 {
		return invalid("dispatch limits cannot be negative")
	}
	for _, tag := range c.Dispatch.TextTags {
		if !message.IsContent(message.Tag(tag)) {
			return invalid("dispatch.text_tags: %q is not a content tag", tag)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid("metrics.port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		return invalid("log.level %q must be one of %v", c.Log.Level, validLevels)
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Log.Format)) {
		return invalid("log.format %q must be one of %v", c.Log.Format, validFormats)
	}
	return nil
}

// SessionConfig converts the relay and session sections.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		URL:            c.Relay.URL,
		PID:            c.Relay.PID,
		Name:           c.Relay.Name,
		Token:          c.Relay.Token,
		ConnectTimeout: c.Session.ConnectTimeout,
		AuthTimeout:    c.Session.AuthTimeout,
		WriteTimeout:   c.Session.WriteTimeout,
		PingInterval:   c.Session.PingInterval,
		DeadAfter:      c.Session.DeadAfter,
		RequestTimeout: c.Session.RequestTimeout,
		DispatchBuffer: c.Session.DispatchBuffer,
		Backoff: retry.Config{
			MaxAttempts:  c.Session.MaxRetries,
			InitialDelay: c.Session.BackoffInitial,
			MaxDelay:     c.Session.BackoffMax,
			Multiplier:   c.Session.BackoffMultiplier,
			AddJitter:    c.Session.BackoffJitter,
		},
	}
}

// DispatchConfig converts the dispatch section.
func (c *Config) DispatchConfig() dispatch.Config {
	tags := make([]message.Tag, 0, len(c.Dispatch.TextTags))
	for _, t := range c.Dispatch.TextTags {
		tags = append(tags, message.Tag(t))
	}
	return dispatch.Config{
		MaxConcurrent: c.Dispatch.MaxConcurrent,
		PoolWorkers:   c.Dispatch.PoolWorkers,
		TextTags:      tags,
	}
}

// Redacted replaces the token shown by Marshal.
const Redacted = "[REDACTED]"

// Marshal renders the effective configuration as YAML with durations in
// their string form and the token redacted.
func Marshal(c *Config) ([]byte, error) {
	token := ""
	if c.Relay.Token != "" {
		token = Redacted
	}
	tags := c.Dispatch.TextTags
	if tags == nil {
		tags = []string{}
	}
	caFiles := c.Relay.TLS.CAFiles
	if caFiles == nil {
		caFiles = []string{}
	}

	doc := map[string]any{
		"relay": map[string]any{
			"url":   c.Relay.URL,
			"pid":   c.Relay.PID,
			"name":  c.Relay.Name,
			"token": token,
			"codec": c.Relay.Codec,
			"tls": map[string]any{
				"ca_files":             caFiles,
				"insecure_skip_verify": c.Relay.TLS.InsecureSkipVerify,
				"min_version":          c.Relay.TLS.MinVersion,
				"server_name":          c.Relay.TLS.ServerName,
				"cert_file":            c.Relay.TLS.CertFile,
				"key_file":             c.Relay.TLS.KeyFile,
			},
		},
		"session": map[string]any{
			"connect_timeout":    c.Session.ConnectTimeout.String(),
			"auth_timeout":       c.Session.AuthTimeout.String(),
			"write_timeout":      c.Session.WriteTimeout.String(),
			"ping_interval":      c.Session.PingInterval.String(),
			"dead_after":         c.Session.DeadAfter.String(),
			"request_timeout":    c.Session.RequestTimeout.String(),
			"dispatch_buffer":    c.Session.DispatchBuffer,
			"max_retries":        c.Session.MaxRetries,
			"backoff_initial":    c.Session.BackoffInitial.String(),
			"backoff_max":        c.Session.BackoffMax.String(),
			"backoff_multiplier": c.Session.BackoffMultiplier,
			"backoff_jitter":     c.Session.BackoffJitter,
		},
		"dispatch": map[string]any{
			"max_concurrent": c.Dispatch.MaxConcurrent,
			"pool_workers":   c.Dispatch.PoolWorkers,
			"text_tags":      tags,
		},
		"metrics": map[string]any{
			"enabled": c.Metrics.Enabled,
			"port":    c.Metrics.Port,
			"path":    c.Metrics.Path,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Marshal", "render yaml")
	}
	return out, nil
}
