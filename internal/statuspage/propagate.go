package statuspage

import (
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// maintenanceScopes indexes the targets of active maintenance windows.
type maintenanceScopes map[domain.SuppressionScope]struct{}

func activeMaintenance(suppressions []domain.Suppression, now time.Time) maintenanceScopes {
	scopes := make(maintenanceScopes)
	for i := range suppressions {
		s := &suppressions[i]
		if s.Kind != domain.SuppressionKindMaintenance || !s.ActiveAt(now) {
			continue
		}
		for _, scope := range s.Scopes {
			scopes[scope] = struct{}{}
		}
	}
	return scopes
}

func (m maintenanceScopes) covers(c *domain.Component) bool {
	if _, ok := m[domain.SuppressionScope{Type: domain.ScopeComponent, ID: c.ID}]; ok {
		return true
	}
	for _, id := range c.MonitorIDs {
		if _, ok := m[domain.SuppressionScope{Type: domain.ScopeMonitor, ID: id}]; ok {
			return true
		}
	}
	for _, id := range c.MonitorGroupIDs {
		if _, ok := m[domain.SuppressionScope{Type: domain.ScopeMonitorGroup, ID: id}]; ok {
			return true
		}
	}
	return false
}

// baseStatus derives a component's own status, before dependencies:
// manual override, then active maintenance, then linked monitors.
func baseStatus(c *domain.Component, monitors map[string]domain.CheckStatus, maintenance maintenanceScopes) domain.Status {
	if status, ok := c.ManualStatus.Override(); ok {
		return status
	}
	if maintenance.covers(c) {
		return domain.StatusMaintenance
	}

	anyUp := false
	for _, id := range c.MonitorIDs {
		switch monitors[id] {
		case domain.CheckStatusDown:
			return domain.StatusDown
		case domain.CheckStatusUp:
			anyUp = true
		}
	}
	if anyUp {
		return domain.StatusUp
	}
	return domain.StatusUnknown
}

// ComputeStatuses returns the base status of every component keyed by id.
// Silence suppressions do not affect status.
func ComputeStatuses(
	components []domain.Component,
	monitors map[string]domain.CheckStatus,
	suppressions []domain.Suppression,
	now time.Time,
) map[string]domain.Status {
	maintenance := activeMaintenance(suppressions, now)
	statuses := make(map[string]domain.Status, len(components))
	for i := range components {
		c := &components[i]
		statuses[c.ID] = baseStatus(c, monitors, maintenance)
	}
	return statuses
}

// Propagate raises each component to the worst status among its direct
// dependencies, repeating until nothing changes or len(components) passes
// have run. Severity only grows and is bounded, so cycles terminate.
// It returns the number of passes performed.
func Propagate(statuses map[string]domain.Status, components []domain.Component) int {
	passes := 0
	for passes < len(components) {
		passes++
		changed := false
		for i := range components {
			c := &components[i]
			current := statuses[c.ID]
			if current.Severity() == domain.MaxSeverity {
				continue
			}

			worst := current
			for _, dep := range c.DependsOn {
				if s, ok := statuses[dep]; ok {
					worst = domain.WorseOf(worst, s)
				}
			}
			if worst != current {
				statuses[c.ID] = worst
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return passes
}
