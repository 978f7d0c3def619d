package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/message"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.Relay.URL, cfg.Relay.URL)
	assert.Equal(t, d.Relay.Token, cfg.Relay.Token)
	assert.True(t, cfg.Relay.TLS.IsZero())
	assert.Equal(t, d.Session, cfg.Session)
	assert.Equal(t, d.Metrics, cfg.Metrics)
	assert.Empty(t, cfg.Dispatch.TextTags)
	assert.Equal(t, "ws://127.0.0.1:24804", cfg.Relay.URL)
	assert.Equal(t, "com.sumaroder.plugin", cfg.Relay.PID)
	assert.Equal(t, 15*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.Session.BackoffMax)
	assert.Equal(t, 4, cfg.Dispatch.MaxConcurrent)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_LayersAndEnv(t *testing.T) {
	base := writeFile(t, "base.yaml", `
relay:
  url: wss://relay.example:24804
  pid: com.example.plugin
  token: from-file
  tls:
    ca_files: [/etc/relay/ca.pem]
    min_version: "1.3"
session:
  request_timeout: 3s
  max_retries: 5
dispatch:
  max_concurrent: 8
  text_tags: [Text]
`)
	override := writeFile(t, "override.json", `{"relay": {"name": "Override"}, "log": {"level": "debug"}}`)

	t.Setenv("SECPLUGIN_RELAY_TOKEN", "from-env")
	t.Setenv("SECPLUGIN_SESSION_BACKOFF_MAX", "30s")

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://relay.example:24804", cfg.Relay.URL)
	assert.Equal(t, "com.example.plugin", cfg.Relay.PID)
	assert.Equal(t, "Override", cfg.Relay.Name)
	assert.Equal(t, "from-env", cfg.Relay.Token)
	assert.Equal(t, []string{"/etc/relay/ca.pem"}, cfg.Relay.TLS.CAFiles)
	assert.Equal(t, "1.3", cfg.Relay.TLS.MinVersion)
	assert.Equal(t, 3*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, 5, cfg.Session.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Session.BackoffMax)
	assert.Equal(t, 8, cfg.Dispatch.MaxConcurrent)
	assert.Equal(t, []string{"Text"}, cfg.Dispatch.TextTags)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "untouched keys keep defaults")
}

func TestLoad_Errors(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	bad := writeFile(t, "bad.yaml", "relay:\n  url: http://nope\n")
	loader := NewLoader()
	loader.AddLayer(bad)
	loader.EnableValidation(true)
	_, err = loader.Load()
	assert.True(t, errors.IsInvalid(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Relay.URL = "" }},
		{"http url", func(c *Config) { c.Relay.URL = "http://127.0.0.1" }},
		{"missing pid", func(c *Config) { c.Relay.PID = "" }},
		{"unknown codec", func(c *Config) { c.Relay.Codec = "xml" }},
		{"tls key without cert", func(c *Config) { c.Relay.TLS.KeyFile = "k.pem" }},
		{"negative retries", func(c *Config) { c.Session.MaxRetries = -1 }},
		{"ping after dead", func(c *Config) { c.Session.PingInterval = time.Hour }},
		{"backoff ceiling below initial", func(c *Config) { c.Session.BackoffMax = time.Millisecond }},
		{"negative workers", func(c *Config) { c.Dispatch.PoolWorkers = -1 }},
		{"metadata text tag", func(c *Config) { c.Dispatch.TextTags = []string{"Account"} }},
		{"metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }},
		{"metrics path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Relay.Token = "t"
	cfg.Session.MaxRetries = 3
	cfg.Dispatch.TextTags = []string{"Text", "Img"}

	sc := cfg.SessionConfig()
	assert.Equal(t, cfg.Relay.URL, sc.URL)
	assert.Equal(t, "t", sc.Token)
	assert.Equal(t, 3, sc.Backoff.MaxAttempts)
	assert.Equal(t, cfg.Session.BackoffMax, sc.Backoff.MaxDelay)
	assert.NoError(t, sc.Validate())

	dc := cfg.DispatchConfig()
	assert.Equal(t, []message.Tag{message.Text, message.Img}, dc.TextTags)
	assert.Equal(t, 4, dc.MaxConcurrent)
}

func TestMarshal_RedactsToken(t *testing.T) {
	cfg := Default()
	out, err := Marshal(cfg)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "SecretToken")
	assert.Contains(t, string(out), Redacted)

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "15s", doc["session"]["request_timeout"])
	assert.Equal(t, "1m0s", doc["session"]["backoff_max"])
	assert.Equal(t, cfg.Relay.URL, doc["relay"]["url"])

	// The rendered file loads back to the same settings, token aside
	path := writeFile(t, "printed.yaml", string(out))
	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	loaded.Relay.Token = cfg.Relay.Token
	assert.Equal(t, cfg.Session, loaded.Session)
	assert.Equal(t, cfg.Relay.URL, loaded.Relay.URL)
	assert.Equal(t, cfg.Relay.Codec, loaded.Relay.Codec)
	assert.True(t, loaded.Relay.TLS.IsZero())
}
