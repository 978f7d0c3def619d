// Package session maintains the connection to the relay host.
//
// A Session moves through the states
//
//	Disconnected -> Connecting -> Authenticating -> Ready
//	                   ^                              |
//	                   +------- Reconnecting <--------+
//
// and ends in Closed. Run dials the relay, sends the SyncOicq handshake with
// the plugin identity and token, and once the reply reports status true
// serves frames until the connection fails. Failures of any kind other than
// a fatal configuration error move the session to Reconnecting, which waits
// an exponential, jittered delay before dialing again. Sequence numbers are
// never reset, so a stale reply from an old connection cannot match a new
// request.
//
// A single read loop per connection decodes frames. Replies resolve the
// matching request in the correlator, relay heartbeats are echoed with the
// plugin identity, and pushed messages are queued for a dispatch goroutine
// so a slow handler cannot stall replies. Malformed frames are logged and
// dropped. The read deadline is refreshed by every frame, ping and pong;
// when it passes the connection is treated as dead.
//
// Close cancels every pending request with ErrCancelled, stops the
// dispatcher from taking new permits and closes the connection.
package session
