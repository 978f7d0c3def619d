// Package testutil provides test doubles for the plugin runtime.
//
// Relay is an in-process relay host on a loopback websocket. It answers the
// SyncOicq handshake (optionally checking the token), answers requests with a
// configurable reply, records received frames and can push messages,
// heartbeats or raw bytes to the client. DropConnection simulates a transport
// failure.
//
// MockRequester records outbound requests for code that only needs the send
// contract, such as the sender helpers.
//
// GroupMessage, FriendMessage and OnlineEvent build sample pushed messages.
package testutil
