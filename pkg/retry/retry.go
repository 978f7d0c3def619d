// Package retry computes exponential reconnect delays with jitter.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides backoff configuration
type Config struct {
	MaxAttempts  int           // Consecutive failed attempts before giving up (0 = unlimited)
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Ceiling for any single delay
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	AddJitter    bool          // Randomize delays to prevent thundering herd
}

// DefaultConfig returns the reconnect defaults used by the session
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  0,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Validate checks the configuration for values that cannot produce a delay.
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return errors.New("retry: InitialDelay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return errors.New("retry: MaxDelay cannot be negative")
	}
	if c.Multiplier < 0 {
		return errors.New("retry: Multiplier cannot be negative")
	}
	if c.MaxAttempts < 0 {
		return errors.New("retry: MaxAttempts cannot be negative")
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.InitialDelay == 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	// Prevent overflow with extremely large multipliers
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// Delay returns the wait before retry number attempt (1-based).
// Without jitter the result is min(InitialDelay*Multiplier^(attempt-1), MaxDelay).
// With jitter it lies in [3/4, 1) of that value, so it never reaches MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
		if delay >= float64(c.MaxDelay) {
			delay = float64(c.MaxDelay)
			break
		}
	}
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	d := time.Duration(delay)
	if !c.AddJitter || d < 4 {
		return d
	}

	quarter := int64(d / 4)
	randMu.Lock()
	jitter := randSource.Int63n(quarter)
	randMu.Unlock()
	return d - time.Duration(quarter) + time.Duration(jitter)
}

// Backoff tracks consecutive failures against a Config.
// It is not safe for concurrent use.
type Backoff struct {
	cfg     Config
	attempt int
}

// NewBackoff creates a Backoff with no recorded failures.
func NewBackoff(cfg Config) *Backoff {
	return &Backoff{cfg: cfg}
}

// Next records a failure and returns the delay before the next attempt.
// ok is false once MaxAttempts consecutive failures have been recorded.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.attempt++
	if b.cfg.MaxAttempts > 0 && b.attempt > b.cfg.MaxAttempts {
		return 0, false
	}
	return b.cfg.Delay(b.attempt), true
}

// Reset clears the failure count after a successful attempt.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of consecutive failures recorded.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
