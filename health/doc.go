// Package health reports whether the plugin runtime is able to do its job.
//
// A Status is healthy, degraded or unhealthy. The session maps its state
// onto these: Ready is healthy, any state that is working towards Ready
// (Connecting, Authenticating, Reconnecting) is degraded, and Disconnected
// or Closed is unhealthy.
//
// Monitor collects named statuses and aggregates them: any unhealthy
// sub-status makes the aggregate unhealthy, otherwise any degraded one makes
// it degraded. The metrics server renders the aggregate on /health.
//
// Error text attached with WithError is sanitized so relay URLs, addresses
// and the shared token never reach a health endpoint.
package health
