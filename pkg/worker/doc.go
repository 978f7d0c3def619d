// Package worker provides a generic, thread-safe worker pool for blocking tasks.
//
// # Overview
//
// A Pool runs a fixed number of goroutines that take work items from a
// bounded queue. The dispatcher uses it for handlers that are registered as
// pool-executed: these may block on I/O or CPU without stalling the session's
// read loop, and the number running at once never exceeds the worker count.
//
//	pool := worker.NewPool[job](4, 16, func(ctx context.Context, j job) error {
//	    return j.run(ctx)
//	})
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(0)
//
// # Submission
//
// Submit never blocks. When the queue is at capacity it returns ErrQueueFull
// and counts the item as dropped. Callers that need to wait for the result
// carry a completion channel inside the work item.
//
// # Shutdown
//
// Stop rejects new submissions, cancels the context handed to running tasks
// and waits up to the given timeout. A zero timeout does not wait at all;
// tasks already running finish on their own.
//
// # Panics
//
// A panicking processor is recovered, counted in PoolStats.Panicked and
// reported as a failed item wrapping ErrTaskPanicked.
//
// # Metrics
//
// WithMetricsRegistry registers queue depth, busy workers, submitted,
// processed, failed and dropped counters and a processing-time histogram
// under the given prefix.
package worker
