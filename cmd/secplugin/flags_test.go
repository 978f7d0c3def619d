package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	cfg, _, err := parseFlags([]string{"-c", "a.yaml", "--config", "b.yaml", "--debug", "--print-config"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.ConfigPaths)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.PrintConfig)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestParseFlags_EnvFallback(t *testing.T) {
	t.Setenv("SECPLUGIN_LOG_FORMAT", "text")
	t.Setenv("SECPLUGIN_SHUTDOWN_TIMEOUT", "3s")

	cfg, _, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestParseFlags_Help(t *testing.T) {
	cfg, _, err := parseFlags([]string{"--help"})
	require.NoError(t, err)
	assert.True(t, cfg.ShowHelp)
}

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, validateFlags(&CLIConfig{ShutdownTimeout: time.Second}))
	assert.Error(t, validateFlags(&CLIConfig{ShutdownTimeout: time.Second, LogLevel: "loud"}))
	assert.Error(t, validateFlags(&CLIConfig{ShutdownTimeout: time.Second, LogFormat: "xml"}))
	assert.Error(t, validateFlags(&CLIConfig{ShutdownTimeout: time.Second, ConfigPaths: []string{"/nonexistent/x.yaml"}}))
	assert.Error(t, validateFlags(&CLIConfig{}))
	assert.NoError(t, validateFlags(&CLIConfig{ShowHelp: true}))
}
