package session

import (
	"fmt"
	"net/url"
	"time"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/pkg/retry"
)

// Config holds the connection settings.
type Config struct {
	URL   string
	PID   string
	Name  string
	Token string

	ConnectTimeout time.Duration // websocket dial and upgrade
	AuthTimeout    time.Duration // wait for the SyncOicq reply
	WriteTimeout   time.Duration
	PingInterval   time.Duration // client pings; zero disables
	DeadAfter      time.Duration // read deadline refreshed by any frame, ping or pong
	RequestTimeout time.Duration // default for Send

	// DispatchBuffer is the number of inbound messages that may wait for the
	// dispatcher before new ones are dropped.
	DispatchBuffer int

	Backoff retry.Config
}

// DefaultConfig returns the settings of a local relay with its stock plugin
// identity.
func DefaultConfig() Config {
	return Config{
		URL:            "ws://127.0.0.1:24804",
		PID:            "com.sumaroder.plugin",
		Name:           "SecPlugin",
		Token:          "SecretToken",
		ConnectTimeout: 10 * time.Second,
		AuthTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		DeadAfter:      90 * time.Second,
		RequestTimeout: 15 * time.Second,
		DispatchBuffer: 256,
		Backoff:        retry.DefaultConfig(),
	}
}

// withDefaults fills zero durations from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.DeadAfter == 0 {
		c.DeadAfter = d.DeadAfter
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = d.DispatchBuffer
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check relay url")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return errors.WrapFatal(
			fmt.Errorf("%w: relay url must be ws:// or wss://", errors.ErrInvalidConfig),
			"Config", "Validate", "check relay url")
	}
	if c.PID == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check plugin pid")
	}
	if c.PingInterval < 0 || c.DeadAfter < 0 || c.WriteTimeout < 0 ||
		c.ConnectTimeout < 0 || c.AuthTimeout < 0 || c.RequestTimeout < 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: durations cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check timeouts")
	}
	if c.PingInterval > 0 && c.DeadAfter > 0 && c.PingInterval >= c.DeadAfter {
		return errors.WrapFatal(
			fmt.Errorf("%w: ping interval %v must be shorter than dead-after %v",
				errors.ErrInvalidConfig, c.PingInterval, c.DeadAfter),
			"Config", "Validate", "check liveness")
	}
	if err := c.Backoff.Validate(); err != nil {
		return errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Config", "Validate", "check backoff")
	}
	return nil
}
