package domain

import "encoding/json"

// CheckJob asks the executor to run one probe for a monitor.
type CheckJob struct {
	JobID            string          `json:"job_id" validate:"required"`
	TeamID           string          `json:"team_id" validate:"required"`
	MonitorID        string          `json:"monitor_id" validate:"required"`
	MonitorType      MonitorType     `json:"monitor_type" validate:"required"`
	URL              string          `json:"url,omitempty"`
	IntervalSeconds  int             `json:"interval_seconds,omitempty"`
	TimeoutMS        int             `json:"timeout_ms"`
	FailureThreshold int             `json:"failure_threshold"`
	ExternalConfig   json.RawMessage `json:"external_config,omitempty"`
	ReportedStatus   string          `json:"reported_status,omitempty" validate:"omitempty,oneof=up down degraded"`
	ReportedReason   string          `json:"reported_reason,omitempty"`
}

// AlertJob carries a monitor transition to the alert dispatcher.
type AlertJob struct {
	AlertID    string      `json:"alert_id" validate:"required"`
	TeamID     string      `json:"team_id" validate:"required"`
	MonitorID  string      `json:"monitor_id" validate:"required"`
	Status     CheckStatus `json:"status" validate:"required,oneof=up down"`
	Reason     string      `json:"reason,omitempty"`
	IncidentID string      `json:"incident_id,omitempty"`
}

type TransitionAction string

const (
	TransitionOpened             TransitionAction = "opened"
	TransitionNoopAlreadyOpen    TransitionAction = "noop_already_open"
	TransitionResolved           TransitionAction = "resolved"
	TransitionNoopNoOpenIncident TransitionAction = "noop_no_open_incident"
)

// ChangesState reports whether the action opened or resolved an incident.
func (a TransitionAction) ChangesState() bool {
	return a == TransitionOpened || a == TransitionResolved
}

// TransitionRequest asks the coordinator to move a monitor up or down.
type TransitionRequest struct {
	TeamID    string      `json:"team_id" validate:"required"`
	MonitorID string      `json:"monitor_id" validate:"required"`
	Status    CheckStatus `json:"status" validate:"required,oneof=up down"`
	Reason    string      `json:"reason,omitempty"`
}

type TransitionResult struct {
	OK         bool             `json:"ok"`
	IncidentID string           `json:"incident_id,omitempty"`
	Action     TransitionAction `json:"action"`
}
