// Package correlator matches replies from the relay to the requests that
// asked for them.
package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/metric"
)

// DefaultTimeout applies when Send is called with a zero timeout.
const DefaultTimeout = 15 * time.Second

// FrameWriter puts one frame on the transport. Implementations serialize
// concurrent writes.
type FrameWriter interface {
	WriteFrame(ctx context.Context, f *frame.Frame) error
}

type result struct {
	frame *frame.Frame
	err   error
}

// slot is the pending-response placeholder for one request.
type slot struct {
	seq  uint64
	cmd  frame.Command
	sent time.Time
	done chan result // buffered, receives exactly one result
}

// Correlator assigns sequence numbers, writes requests and resolves replies.
type Correlator struct {
	writer         FrameWriter
	defaultTimeout time.Duration
	logger         *slog.Logger
	metrics        *metric.ClientMetrics

	// sendMu keeps wire order equal to sequence order
	sendMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]*slot
	closed  bool
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout sets the timeout used when Send receives zero.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *metric.ClientMetrics) Option {
	return func(c *Correlator) {
		c.metrics = m
	}
}

// New creates a Correlator writing through w.
func New(w FrameWriter, opts ...Option) *Correlator {
	c := &Correlator{
		writer:         w,
		defaultTimeout: DefaultTimeout,
		logger:         slog.Default(),
		pending:        make(map[uint64]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "correlator")
	return c
}

// Send writes {seq, cmd, rsp, data} and, when rsp is true, waits for the
// matching reply. It returns a TimeoutError after timeout (DefaultTimeout
// when zero), ErrCancelled if the correlator is closed or aborted while
// waiting, and ctx's error if ctx ends first. Without rsp it returns
// (nil, nil) once the frame is written.
func (c *Correlator) Send(ctx context.Context, cmd frame.Command, data frame.Payload, rsp bool, timeout time.Duration) (*frame.Frame, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	c.sendMu.Lock()
	f, s, err := c.register(cmd, data, rsp)
	if err != nil {
		c.sendMu.Unlock()
		return nil, err
	}
	err = c.writer.WriteFrame(ctx, f)
	c.sendMu.Unlock()

	if err != nil {
		if s != nil {
			c.remove(s.seq)
		}
		return nil, errors.WrapTransient(err, "Correlator", "Send", fmt.Sprintf("write %s seq=%d", cmd, f.Seq))
	}

	if s == nil {
		return nil, nil
	}

	return c.await(ctx, s, timeout)
}

// register assigns the next sequence number and, for requests expecting a
// reply, installs the pending slot before anything is written so a fast
// reply cannot be missed.
func (c *Correlator) register(cmd frame.Command, data frame.Payload, rsp bool) (*frame.Frame, *slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, nil, errors.ErrClosed
	}

	c.seq++
	f := &frame.Frame{Seq: c.seq, Cmd: cmd, Rsp: rsp, Data: data}
	if !rsp {
		return f, nil, nil
	}

	s := &slot{seq: f.Seq, cmd: cmd, sent: time.Now(), done: make(chan result, 1)}
	c.pending[s.seq] = s
	c.metrics.RecordRequest(string(cmd))
	c.metrics.SetPendingRequests(len(c.pending))
	return f, s, nil
}

func (c *Correlator) await(ctx context.Context, s *slot, timeout time.Duration) (*frame.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-s.done:
		if r.err != nil {
			return nil, r.err
		}
		c.metrics.ObserveRequestDuration(time.Since(s.sent))
		return r.frame, nil
	case <-timer.C:
		if c.remove(s.seq) {
			c.metrics.RecordRequestTimeout()
			c.logger.Warn("request timed out", "seq", s.seq, "cmd", s.cmd, "timeout", timeout)
			return nil, &errors.TimeoutError{Seq: s.seq, After: timeout}
		}
		// Resolved concurrently with the timer
		return c.drain(s)
	case <-ctx.Done():
		if c.remove(s.seq) {
			return nil, fmt.Errorf("request seq=%d: %w", s.seq, ctx.Err())
		}
		return c.drain(s)
	}
}

// drain reads the result of a slot that was resolved by someone else.
func (c *Correlator) drain(s *slot) (*frame.Frame, error) {
	r := <-s.done
	return r.frame, r.err
}

// remove deletes seq from the pending table and reports whether it was there.
func (c *Correlator) remove(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[seq]; !ok {
		return false
	}
	delete(c.pending, seq)
	c.metrics.SetPendingRequests(len(c.pending))
	return true
}

// Resolve delivers a reply frame to the request with the same seq. It returns
// false, after logging, when no request is waiting for that seq: the request
// already received a reply, timed out or was never sent.
func (c *Correlator) Resolve(f *frame.Frame) bool {
	c.mu.Lock()
	s, ok := c.pending[f.Seq]
	if ok {
		delete(c.pending, f.Seq)
		c.metrics.SetPendingRequests(len(c.pending))
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("discarding reply without pending request", "seq", f.Seq)
		return false
	}

	s.done <- result{frame: f}
	return true
}

// Abort fails every pending request with err but keeps the correlator open.
// The session uses it when a connection drops, since replies cannot arrive
// on a new connection.
func (c *Correlator) Abort(err error) int {
	c.mu.Lock()
	slots := c.takeAll()
	c.mu.Unlock()

	for _, s := range slots {
		s.done <- result{err: err}
	}
	return len(slots)
}

// Close cancels every pending request with ErrCancelled and rejects further
// sends with ErrClosed. It is idempotent.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	slots := c.takeAll()
	c.mu.Unlock()

	for _, s := range slots {
		s.done <- result{err: fmt.Errorf("request seq=%d: %w", s.seq, errors.ErrCancelled)}
	}
	if len(slots) > 0 {
		c.logger.Info("cancelled pending requests", "count", len(slots))
	}
}

// takeAll empties the pending table. c.mu must be held.
func (c *Correlator) takeAll() []*slot {
	slots := make([]*slot, 0, len(c.pending))
	for seq, s := range c.pending {
		slots = append(slots, s)
		delete(c.pending, seq)
	}
	c.metrics.SetPendingRequests(0)
	return slots
}

// Pending returns the number of requests awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// LastSeq returns the most recently assigned sequence number.
func (c *Correlator) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Closed reports whether Close has been called.
func (c *Correlator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
