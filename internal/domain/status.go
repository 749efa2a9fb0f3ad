package domain

// Status is the derived health of a component.
type Status string

const (
	StatusUp          Status = "up"
	StatusUnknown     Status = "unknown"
	StatusMaintenance Status = "maintenance"
	StatusDown        Status = "down"
)

// Severity returns the position of the status in the total order
// up < unknown < maintenance < down.
func (s Status) Severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusMaintenance:
		return 2
	case StatusDown:
		return 3
	default:
		return 1
	}
}

// MaxSeverity is the severity of the worst status.
const MaxSeverity = 3

// WorseOf returns whichever status has the higher severity.
func WorseOf(a, b Status) Status {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// ManualStatus is an operator override set on a component.
type ManualStatus string

const (
	ManualStatusOperational         ManualStatus = "operational"
	ManualStatusDegradedPerformance ManualStatus = "degraded_performance"
	ManualStatusPartialOutage       ManualStatus = "partial_outage"
	ManualStatusMajorOutage         ManualStatus = "major_outage"
	ManualStatusMaintenance         ManualStatus = "maintenance"
)

// Override maps a manual status to a derived status. ok is false for
// operational, which means no override applies.
func (m ManualStatus) Override() (Status, bool) {
	switch m {
	case "", ManualStatusOperational:
		return "", false
	case ManualStatusMaintenance:
		return StatusMaintenance, true
	default:
		return StatusDown, true
	}
}
