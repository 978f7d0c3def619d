package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		status    string
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{StatusHealthy, true, false, false},
		{StatusDegraded, false, true, false},
		{StatusUnhealthy, false, false, true},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			s := Status{Status: tt.status}
			assert.Equal(t, tt.healthy, s.IsHealthy())
			assert.Equal(t, tt.degraded, s.IsDegraded())
			assert.Equal(t, tt.unhealthy, s.IsUnhealthy())
		})
	}
}

func TestConstructors(t *testing.T) {
	h := NewHealthy("session", "ready")
	assert.True(t, h.Healthy)
	assert.Equal(t, StatusHealthy, h.Status)
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("session", "reconnecting")
	assert.False(t, d.Healthy)
	assert.Equal(t, StatusDegraded, d.Status)

	u := NewUnhealthy("session", "closed")
	assert.False(t, u.Healthy)
	assert.Equal(t, StatusUnhealthy, u.Status)
}

func TestStatus_WithError(t *testing.T) {
	s := NewDegraded("session", "reconnecting").
		WithError(errors.New("dial ws://10.0.0.5:24804/ws failed: token=SecretToken"))
	assert.NotContains(t, s.Message, "10.0.0.5")
	assert.NotContains(t, s.Message, "SecretToken")
	assert.Contains(t, s.Message, "[URL]")

	unchanged := NewHealthy("session", "ready").WithError(nil)
	assert.Equal(t, "ready", unchanged.Message)
}

func TestStatus_WithMetrics(t *testing.T) {
	m := &Metrics{Uptime: time.Minute, ErrorCount: 2}
	s := NewHealthy("session", "ready").WithMetrics(m)
	require.NotNil(t, s.Metrics)
	assert.Equal(t, 2, s.Metrics.ErrorCount)
}

func TestAggregate_NamesWorstComponents(t *testing.T) {
	agg := Aggregate("secplugin", []Status{
		NewDegraded("session", "reconnecting"),
		NewDegraded("dispatcher", "pool busy"),
		NewHealthy("metrics", ""),
	})
	assert.True(t, agg.IsDegraded())
	assert.Equal(t, "degraded: session, dispatcher", agg.Message)

	assert.Equal(t, "3 components healthy", Aggregate("secplugin", []Status{
		NewHealthy("a", ""), NewHealthy("b", ""), NewHealthy("c", ""),
	}).Message)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"one unhealthy", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("secplugin", tt.subs)
			assert.Equal(t, tt.expected, agg.Status)
			assert.Len(t, agg.SubStatuses, len(tt.subs))
			assert.Equal(t, agg.Status == StatusHealthy, agg.Healthy)
		})
	}
}
