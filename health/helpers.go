package health

import "time"

func newStatus(component string, state State, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		State:     state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// Aggregate folds children into one status named component. The result
// takes the worst child state; no children means healthy.
func Aggregate(component string, children []Status) Status {
	worst := StateHealthy
	for _, child := range children {
		if child.State.rank() > worst.rank() {
			worst = child.State
		}
	}

	var status Status
	switch worst {
	case StateHealthy:
		status = NewHealthy(component, "all components healthy")
	case StateDegraded:
		status = NewDegraded(component, "one or more components degraded")
	default:
		status = NewUnhealthy(component, "one or more components unhealthy")
	}
	if len(children) > 0 {
		status.SubStatuses = append([]Status(nil), children...)
	}
	return status
}
