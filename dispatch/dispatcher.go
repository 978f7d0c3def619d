package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/message"
	"github.com/c360/secplugin/metric"
	"github.com/c360/secplugin/pkg/worker"
)

// Dispatcher errors
var (
	// ErrRegistrySealed is returned when registering after the dispatcher started.
	ErrRegistrySealed = stderrors.New("registry sealed after dispatcher start")
	// ErrNotStarted is returned by Dispatch before Start.
	ErrNotStarted = stderrors.New("dispatcher not started")
)

// Default limits
const (
	DefaultMaxConcurrent = 4
)

// Config bounds handler execution.
type Config struct {
	// MaxConcurrent is the number of permits shared by all handler executions.
	MaxConcurrent int
	// PoolWorkers is the number of workers running pooled handlers.
	// Defaults to MaxConcurrent.
	PoolWorkers int
	// TextTags selects which tags make up the matched text. Defaults to the
	// content tags.
	TextTags []message.Tag
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.PoolWorkers <= 0 {
		c.PoolWorkers = c.MaxConcurrent
	}
	if len(c.TextTags) == 0 {
		c.TextTags = message.ContentTags
	}
	return c
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records handler metrics.
func WithMetrics(m *metric.ClientMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithPoolMetrics registers the worker pool metrics under prefix.
func WithPoolMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(d *Dispatcher) {
		d.poolRegistry = registry
		d.poolPrefix = prefix
	}
}

// job is one pooled handler execution.
type job struct {
	run  func(ctx context.Context) error
	done chan struct{}
}

// Dispatcher matches messages against a sealed Registry and runs handlers.
type Dispatcher struct {
	cfg      Config
	registry *Registry
	logger   *slog.Logger
	metrics  *metric.ClientMetrics

	poolRegistry *metric.MetricsRegistry
	poolPrefix   string

	// set by Start, read-only afterwards
	handlers []*registration
	sem      *semaphore.Weighted
	pool     *worker.Pool[job]
	runCtx   context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool

	inflight sync.WaitGroup
}

// New creates a Dispatcher over registry.
func New(registry *Registry, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg.withDefaults(),
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Start seals the registry and starts the worker pool.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.ErrClosed
	}
	if d.started {
		return nil
	}

	d.handlers = d.registry.seal()
	d.sem = semaphore.NewWeighted(int64(d.cfg.MaxConcurrent))
	d.runCtx, d.cancel = context.WithCancel(ctx)

	var poolOpts []worker.Option[job]
	if d.poolRegistry != nil && d.poolPrefix != "" {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[job](d.poolRegistry, d.poolPrefix))
	}
	// Dispatch waits for each pooled job, so the queue only needs room for
	// one job per worker.
	d.pool = worker.NewPool(d.cfg.PoolWorkers, d.cfg.PoolWorkers, func(ctx context.Context, j job) error {
		defer close(j.done)
		return j.run(ctx)
	}, poolOpts...)
	if err := d.pool.Start(d.runCtx); err != nil {
		d.cancel()
		return errors.WrapFatal(err, "Dispatcher", "Start", "start worker pool")
	}

	d.started = true
	d.logger.Info("dispatcher started",
		"patterns", len(d.handlers),
		"max_concurrent", d.cfg.MaxConcurrent,
		"pool_workers", d.cfg.PoolWorkers)
	return nil
}

// Dispatch runs every handler whose pattern matches the text of msg and
// returns the number of invocations started. It blocks while no permit is
// free and while a pooled handler runs. Handler failures are logged, not
// returned; the error reports only that dispatch itself stopped early, either
// because ctx ended or because the dispatcher was stopped.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *message.Message) (int, error) {
	d.mu.Lock()
	started, closed := d.started, d.closed
	d.mu.Unlock()
	if closed {
		return 0, errors.ErrClosed
	}
	if !started {
		return 0, ErrNotStarted
	}

	text := msg.Text(d.cfg.TextTags...)

	// Acquisitions abort when either the caller or Stop cancels.
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.runCtx, cancel)
	defer stop()

	invoked := 0
	for _, reg := range d.handlers {
		match, ok := reg.match(text)
		if !ok {
			continue
		}

		if d.isClosed() {
			return invoked, errors.ErrClosed
		}
		if err := d.sem.Acquire(actx, 1); err != nil {
			if d.isClosed() {
				return invoked, errors.ErrClosed
			}
			return invoked, err
		}
		d.metrics.PermitAcquired()
		invoked++

		switch reg.mode {
		case ModePooled:
			if err := d.runPooled(actx, reg, msg, match); err != nil {
				return invoked, err
			}
		default:
			d.inflight.Add(1)
			go func(reg *registration, match Match) {
				defer d.inflight.Done()
				defer d.release()
				_ = d.invoke(d.runCtx, reg, msg, match)
			}(reg, match)
		}
	}

	return invoked, nil
}

// runPooled submits a pooled invocation and waits for it. The job releases
// its own permit so an abandoned wait cannot leak one.
func (d *Dispatcher) runPooled(ctx context.Context, reg *registration, msg *message.Message, match Match) error {
	j := job{
		run: func(ctx context.Context) error {
			defer d.release()
			return d.invoke(ctx, reg, msg, match)
		},
		done: make(chan struct{}),
	}

	d.inflight.Add(1)
	if err := d.pool.Submit(j); err != nil {
		d.inflight.Done()
		d.release()
		if d.isClosed() {
			return errors.ErrClosed
		}
		d.logger.Error("pooled handler rejected", "pattern", reg.pattern, "error", err)
		return nil
	}

	select {
	case <-j.done:
		d.inflight.Done()
		return nil
	case <-ctx.Done():
		// The job may still be queued or running; account for it when it ends.
		go func() {
			select {
			case <-j.done:
			case <-d.runCtx.Done():
			}
			d.inflight.Done()
		}()
		if d.isClosed() {
			return errors.ErrClosed
		}
		return ctx.Err()
	}
}

// invoke calls the handler, converting panics into a HandlerError, and logs
// any failure with its pattern.
func (d *Dispatcher) invoke(ctx context.Context, reg *registration, msg *message.Message, match Match) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &errors.HandlerError{Pattern: reg.pattern, Err: fmt.Errorf("panic: %v", r)}
		}

		elapsed := time.Since(start)
		d.metrics.RecordHandler(reg.mode.String(), elapsed, err != nil)
		if err != nil {
			var he *errors.HandlerError
			if !errors.As(err, &he) {
				err = &errors.HandlerError{Pattern: reg.pattern, Err: err}
			}
			d.logger.Error("handler failed",
				"pattern", reg.pattern,
				"mode", reg.mode.String(),
				"text", msg.Preview(),
				"error", err)
			return
		}
		d.logger.Debug("handler finished",
			"pattern", reg.pattern,
			"mode", reg.mode.String(),
			"duration", elapsed)
	}()

	return reg.call(ctx, msg, match)
}

func (d *Dispatcher) release() {
	d.sem.Release(1)
	d.metrics.PermitReleased()
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Stop rejects further dispatches and pending permit acquisitions. Handlers
// already running are not interrupted and not waited for; their context is
// cancelled.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	d.mu.Unlock()

	if !started {
		return
	}
	d.cancel()
	if err := d.pool.Stop(0); err != nil && !stderrors.Is(err, worker.ErrStopTimeout) {
		d.logger.Warn("worker pool stop", "error", err)
	}
	d.logger.Info("dispatcher stopped")
}

// Wait blocks until every started handler has returned or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports dispatcher activity.
type Stats struct {
	Patterns int              `json:"patterns"`
	Pool     worker.PoolStats `json:"pool"`
}

// Stats returns the current dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{Patterns: len(d.handlers)}
	if d.pool != nil {
		s.Pool = d.pool.Stats()
	}
	return s
}
