// Package dispatch routes inbound messages to pattern handlers.
//
// Handlers are registered against regular expressions that must match the
// whole message text. A handler is registered either with Handle, receiving
// only the message, or with HandleMatch, also receiving the capture groups:
//
//	reg := dispatch.NewRegistry()
//	_ = reg.HandleMatch(`echo (.*)`, func(ctx context.Context, msg *message.Message, m dispatch.Match) error {
//		_, err := snd.Reply(ctx, msg, m.Group(1))
//		return err
//	})
//
// The Dispatcher bounds concurrent handler executions with a fixed number of
// permits. Async handlers (the default) run on their own goroutine and the
// dispatcher moves on immediately. Handlers registered with Pooled run on a
// bounded worker pool and the dispatcher waits for each one before trying the
// next pattern. Handler errors and panics are logged and never reach the
// caller of Dispatch.
package dispatch
