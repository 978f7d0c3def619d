package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	m, err := NewClientMetrics(registry)
	require.NoError(t, err)

	m.SetSessionState(3)
	m.RecordReconnect()
	m.RecordFrameReceived("PushOicqMsg")
	m.RecordFrameReceived("PushOicqMsg")
	m.RecordFrameSent("SendOicqMsg")
	m.RecordFrameDropped("decode")
	m.RecordRequest("SendOicqMsg")
	m.RecordRequestTimeout()
	m.ObserveRequestDuration(20 * time.Millisecond)
	m.SetPendingRequests(2)
	m.RecordHandler("async", time.Millisecond, true)
	m.PermitAcquired()
	m.PermitAcquired()
	m.PermitReleased()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("PushOicqMsg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("SendOicqMsg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("SendOicqMsg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestTimeouts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PendingRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerCalls.WithLabelValues("async")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermitsInUse))
}

func TestNewClientMetrics_Twice(t *testing.T) {
	registry := NewMetricsRegistry()
	_, err := NewClientMetrics(registry)
	require.NoError(t, err)

	_, err = NewClientMetrics(registry)
	assert.Error(t, err)
}

func TestClientMetrics_NilReceiver(t *testing.T) {
	var m *ClientMetrics
	assert.NotPanics(t, func() {
		m.SetSessionState(1)
		m.RecordReconnect()
		m.RecordFrameReceived("Heartbeat")
		m.RecordFrameSent("Heartbeat")
		m.RecordFrameDropped("decode")
		m.RecordRequest("SyncOicq")
		m.RecordRequestTimeout()
		m.ObserveRequestDuration(time.Second)
		m.SetPendingRequests(0)
		m.RecordHandler("pool", time.Second, false)
		m.PermitAcquired()
		m.PermitReleased()
	})
}
