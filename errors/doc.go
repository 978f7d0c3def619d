// Package errors provides the error taxonomy for the plugin runtime.
//
// # Overview
//
// Errors fall into three classes that drive how the session reacts:
//
//   - Transient: transport failures, rejected handshakes, request timeouts.
//     The session moves to Reconnecting and retries with backoff.
//   - Invalid: malformed frames, unknown commands, unknown conversation kinds,
//     duplicate or unparsable handler patterns. Logged and dropped, or
//     returned to the caller that supplied the bad input.
//   - Fatal: bad configuration and exhausted reconnect attempts. The session
//     stops and Run returns.
//
// # Typed errors
//
// TimeoutError, DecodeError and HandlerError carry context for a single
// failure and match their sentinels through errors.Is:
//
//	_, err := sess.Send(ctx, frame.CmdSendMessage, msg, true, 0)
//	if errors.Is(err, errors.ErrRequestTimeout) {
//	    // only this caller is affected
//	}
//
// # Wrapping
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// WrapTransient, WrapInvalid and WrapFatal additionally pin the class so the
// session does not have to inspect the message text.
package errors
