package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace   = "secplugin"
	serviceName = "secplugin"
)

// ClientMetrics holds the runtime metrics for the session, correlator and
// dispatcher. All record methods are safe to call on a nil receiver, so
// components can run without metrics.
type ClientMetrics struct {
	SessionState    prometheus.Gauge
	Reconnects      prometheus.Counter
	FramesReceived  *prometheus.CounterVec
	FramesSent      *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	RequestTimeouts prometheus.Counter
	RequestDuration prometheus.Histogram
	PendingRequests prometheus.Gauge
	HandlerCalls    *prometheus.CounterVec
	HandlerErrors   prometheus.Counter
	HandlerDuration prometheus.Histogram
	PermitsInUse    prometheus.Gauge
}

// NewClientMetrics creates the runtime metrics and registers them with registry.
func NewClientMetrics(registry *MetricsRegistry) (*ClientMetrics, error) {
	m := &ClientMetrics{
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Session state (0=disconnected, 1=connecting, 2=authenticating, 3=ready, 4=reconnecting, 5=closed)",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from the relay by command",
		}, []string{"cmd"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the relay by command",
		}, []string{"cmd"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped by reason",
		}, []string{"reason"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests that expected a reply by command",
		}, []string{"cmd"}),
		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_timeouts_total",
			Help:      "Requests that received no reply before their deadline",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request write to reply",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests currently awaiting a reply",
		}),
		HandlerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_invocations_total",
			Help:      "Handler invocations by execution mode",
		}, []string{"mode"}),
		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler invocations that returned an error or panicked",
		}),
		HandlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time",
			Buckets:   prometheus.DefBuckets,
		}),
		PermitsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_permits_in_use",
			Help:      "Dispatch permits currently held by handlers",
		}),
	}

	regs := []error{
		registry.RegisterGauge(serviceName, "session_state", m.SessionState),
		registry.RegisterCounter(serviceName, "session_reconnects_total", m.Reconnects),
		registry.RegisterCounterVec(serviceName, "frames_received_total", m.FramesReceived),
		registry.RegisterCounterVec(serviceName, "frames_sent_total", m.FramesSent),
		registry.RegisterCounterVec(serviceName, "frames_dropped_total", m.FramesDropped),
		registry.RegisterCounterVec(serviceName, "requests_total", m.Requests),
		registry.RegisterCounter(serviceName, "request_timeouts_total", m.RequestTimeouts),
		registry.RegisterHistogram(serviceName, "request_duration_seconds", m.RequestDuration),
		registry.RegisterGauge(serviceName, "pending_requests", m.PendingRequests),
		registry.RegisterCounterVec(serviceName, "handler_invocations_total", m.HandlerCalls),
		registry.RegisterCounter(serviceName, "handler_errors_total", m.HandlerErrors),
		registry.RegisterHistogram(serviceName, "handler_duration_seconds", m.HandlerDuration),
		registry.RegisterGauge(serviceName, "dispatch_permits_in_use", m.PermitsInUse),
	}
	for _, err := range regs {
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// SetSessionState records the numeric session state.
func (m *ClientMetrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(state))
}

// RecordReconnect counts a reconnect attempt.
func (m *ClientMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// RecordFrameReceived counts an inbound frame.
func (m *ClientMetrics) RecordFrameReceived(cmd string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(cmd).Inc()
}

// RecordFrameSent counts an outbound frame.
func (m *ClientMetrics) RecordFrameSent(cmd string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(cmd).Inc()
}

// RecordFrameDropped counts an inbound frame that was discarded.
func (m *ClientMetrics) RecordFrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordRequest counts a request that expects a reply.
func (m *ClientMetrics) RecordRequest(cmd string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(cmd).Inc()
}

// RecordRequestTimeout counts a request that timed out.
func (m *ClientMetrics) RecordRequestTimeout() {
	if m == nil {
		return
	}
	m.RequestTimeouts.Inc()
}

// ObserveRequestDuration records round-trip time for a resolved request.
func (m *ClientMetrics) ObserveRequestDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// SetPendingRequests records the size of the pending table.
func (m *ClientMetrics) SetPendingRequests(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

// RecordHandler counts a handler invocation and its outcome.
func (m *ClientMetrics) RecordHandler(mode string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.HandlerCalls.WithLabelValues(mode).Inc()
	m.HandlerDuration.Observe(d.Seconds())
	if failed {
		m.HandlerErrors.Inc()
	}
}

// PermitAcquired marks one dispatch permit as held.
func (m *ClientMetrics) PermitAcquired() {
	if m == nil {
		return
	}
	m.PermitsInUse.Inc()
}

// PermitReleased marks one dispatch permit as returned.
func (m *ClientMetrics) PermitReleased() {
	if m == nil {
		return
	}
	m.PermitsInUse.Dec()
}
