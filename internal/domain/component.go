package domain

import "time"

type Component struct {
	ID              string
	Name            string
	Description     string
	ManualStatus    ManualStatus
	MonitorIDs      []string
	MonitorGroupIDs []string // groups of the linked monitors
	DependsOn       []string
	SortOrder       int
}

type SuppressionKind string

const (
	SuppressionKindMaintenance SuppressionKind = "maintenance"
	SuppressionKindSilence     SuppressionKind = "silence"
)

type ScopeType string

const (
	ScopeMonitor      ScopeType = "monitor"
	ScopeMonitorGroup ScopeType = "monitor_group"
	ScopeComponent    ScopeType = "component"
)

type SuppressionScope struct {
	Type ScopeType
	ID   string
}

// Suppression is a maintenance window or an alert silence.
type Suppression struct {
	ID       string
	TeamID   string
	Kind     SuppressionKind
	StartsAt time.Time
	EndsAt   *time.Time
	Scopes   []SuppressionScope
}

// ActiveAt reports whether the suppression window contains t.
func (s *Suppression) ActiveAt(t time.Time) bool {
	if s.StartsAt.After(t) {
		return false
	}
	return s.EndsAt == nil || s.EndsAt.After(t)
}

type StatusPage struct {
	ID         string
	TeamID     string
	Slug       string
	Name       string
	IsPublic   bool
	LogoURL    *string
	BrandColor *string
	CustomCSS  *string
}
