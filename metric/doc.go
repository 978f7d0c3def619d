// Package metric provides Prometheus metrics and the HTTP server that
// exposes them together with the runtime's health.
//
// # Registry
//
// MetricsRegistry wraps a private prometheus.Registry that already carries
// the Go runtime and process collectors. Components register their own
// collectors under a service name; registering the same service/metric pair
// twice is rejected as an invalid error.
//
// # Runtime metrics
//
// NewClientMetrics registers the session, correlator and dispatcher metrics:
//
//	secplugin_session_state
//	secplugin_session_reconnects_total
//	secplugin_frames_received_total{cmd}
//	secplugin_frames_sent_total{cmd}
//	secplugin_frames_dropped_total{reason}
//	secplugin_requests_total{cmd}
//	secplugin_request_timeouts_total
//	secplugin_request_duration_seconds
//	secplugin_pending_requests
//	secplugin_handler_invocations_total{mode}
//	secplugin_handler_errors_total
//	secplugin_handler_duration_seconds
//	secplugin_dispatch_permits_in_use
//
// The record methods accept a nil *ClientMetrics.
//
// # Server
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, monitorHealth)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
// /health answers with the JSON health.Status and 503 when unhealthy.
package metric
