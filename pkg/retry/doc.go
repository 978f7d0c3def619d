// Package retry provides exponential backoff with jitter for reconnect loops.
//
// # Overview
//
// Config describes the curve: the first delay, the ceiling, the multiplier
// and whether to randomize. Backoff counts consecutive failures against it
// and reports when MaxAttempts is exhausted.
//
// # Usage
//
//	b := retry.NewBackoff(retry.DefaultConfig())
//	for {
//	    if err := connect(ctx); err == nil {
//	        b.Reset()
//	        continue
//	    }
//	    delay, ok := b.Next()
//	    if !ok {
//	        return errors.ErrMaxRetriesExceeded
//	    }
//	    if err := retry.Sleep(ctx, delay); err != nil {
//	        return err
//	    }
//	}
//
// # Jitter
//
// With AddJitter the delay is drawn from [3/4 d, d) where d is the capped
// exponential value, so a jittered delay is always strictly below MaxDelay.
// The random source is shared and guarded by a mutex.
package retry
