package worker

import "errors"

// Pool lifecycle and submission errors
var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrNilProcessor       = errors.New("processor function cannot be nil")

	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrStopTimeout is returned by Stop when jobs outlive the timeout. The
	// pool is stopped regardless.
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")

	// ErrTaskPanicked wraps a recovered processor panic.
	ErrTaskPanicked = errors.New("worker task panicked")
)
