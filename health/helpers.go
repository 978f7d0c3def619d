package health

import (
	"fmt"
	"strings"
	"time"
)

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a degraded status, used while the session reconnects
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// Aggregate combines sub-statuses into one. The result takes the worst
// sub-status (unhealthy over degraded over healthy) and its message names
// the components in that state.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "nothing to report")
	}

	var unhealthy, degraded []string
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			unhealthy = append(unhealthy, sub.Component)
		case sub.IsDegraded():
			degraded = append(degraded, sub.Component)
		}
	}

	var status Status
	switch {
	case len(unhealthy) > 0:
		status = NewUnhealthy(component, fmt.Sprintf("unhealthy: %s", strings.Join(unhealthy, ", ")))
	case len(degraded) > 0:
		status = NewDegraded(component, fmt.Sprintf("degraded: %s", strings.Join(degraded, ", ")))
	default:
		status = NewHealthy(component, fmt.Sprintf("%d components healthy", len(subStatuses)))
	}

	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}
