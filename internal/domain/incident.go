package domain

import "time"

type IncidentStatus string

const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

type Incident struct {
	ID           string
	TeamID       string
	StatusPageID *string
	MonitorID    string
	Title        string
	Status       IncidentStatus
	StartedAt    time.Time
	ResolvedAt   *time.Time
	Updates      []IncidentUpdate
}

// IsOpen reports whether the incident is not resolved yet.
func (i *Incident) IsOpen() bool {
	return i.Status != IncidentStatusResolved
}

type IncidentUpdate struct {
	ID         string
	IncidentID string
	Message    string
	Status     IncidentStatus
	CreatedAt  time.Time
}
