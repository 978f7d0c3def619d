package health

import (
	"sort"
	"sync"
	"time"
)

// Probe reports the current status of one component.
type Probe func() Status

// Monitor tracks the health of named components. A component either pushes
// its status with Update or is polled through a registered Probe.
// Safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]Probe),
	}
}

// Update records the latest status pushed for name.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[name] = stamp(name, status)
}

// Register polls probe for name on every AggregateHealth call. It replaces
// any status pushed with Update.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	m.probes[name] = probe
}

// Get returns the status for name, polling its probe if one is registered.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	probe, polled := m.probes[name]
	status, exists := m.statuses[name]
	m.mu.RUnlock()

	if polled {
		return stamp(name, probe()), true
	}
	return status, exists
}

// Remove stops tracking name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.probes, name)
}

// Count returns the number of tracked components.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses) + len(m.probes)
}

// AggregateHealth polls every probe and aggregates all statuses, ordered by
// component name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses)+len(m.probes))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mu.RUnlock()

	// Probes run unlocked; they may call back into their component
	for name, probe := range probes {
		subStatuses = append(subStatuses, stamp(name, probe()))
	}

	sort.Slice(subStatuses, func(i, j int) bool {
		return subStatuses[i].Component < subStatuses[j].Component
	})
	return Aggregate(systemName, subStatuses)
}

func stamp(name string, status Status) Status {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}
