package metric

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/secplugin/errors"
)

func gatheredNames(t *testing.T, registry *MetricsRegistry) []string {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	require.NotNil(t, registry.PrometheusRegistry())

	names := gatheredNames(t, registry)
	found := false
	for _, n := range names {
		if strings.HasPrefix(n, "go_") {
			found = true
			break
		}
	}
	assert.True(t, found, "Go runtime collector should be registered")
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "h"})

	require.NoError(t, registry.RegisterCounter("svc", "test_counter", counter))
	require.NoError(t, registry.RegisterGauge("svc", "test_gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("svc", "test_histogram", histogram))

	counter.Inc()
	gauge.Set(3)
	histogram.Observe(0.2)

	names := gatheredNames(t, registry)
	assert.Contains(t, names, "test_counter")
	assert.Contains(t, names, "test_gauge")
	assert.Contains(t, names, "test_histogram")
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "duplicate_counter", Help: "same"})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "duplicate_counter", Help: "same"})

	require.NoError(t, registry.RegisterCounter("service1", "duplicate_counter", counter1))

	// Same key is caught by our own tracking
	err := registry.RegisterCounter("service1", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.True(t, errors.IsInvalid(err))

	// Different key, same prometheus name is caught by prometheus
	err = registry.RegisterCounter("service2", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "unregister_counter", Help: "c"})
	require.NoError(t, registry.RegisterCounter("svc", "unregister_counter", counter))
	assert.Contains(t, gatheredNames(t, registry), "unregister_counter")

	assert.True(t, registry.Unregister("svc", "unregister_counter"))
	assert.NotContains(t, gatheredNames(t, registry), "unregister_counter")
	assert.False(t, registry.Unregister("svc", "unregister_counter"))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_counter_%d", id)
			counter := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "c"})
			assert.NoError(t, registry.RegisterCounter("concurrent", name, counter))
		}(i)
	}
	wg.Wait()

	count := 0
	for _, n := range gatheredNames(t, registry) {
		if strings.HasPrefix(n, "concurrent_counter_") {
			count++
		}
	}
	assert.Equal(t, numGoroutines, count)
}
