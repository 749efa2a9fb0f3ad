package statuspage

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/stretchr/testify/assert"
)

func ptrTime(t time.Time) *time.Time {
	return &t
}

func TestComputeStatuses_Base(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	monitors := map[string]domain.CheckStatus{
		"m-up":   domain.CheckStatusUp,
		"m-down": domain.CheckStatusDown,
	}

	tests := []struct {
		name         string
		component    domain.Component
		suppressions []domain.Suppression
		want         domain.Status
	}{
		{
			name:      "no monitors is unknown",
			component: domain.Component{ID: "c"},
			want:      domain.StatusUnknown,
		},
		{
			name:      "unchecked monitor is unknown",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-new"}},
			want:      domain.StatusUnknown,
		},
		{
			name:      "any up",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-new", "m-up"}},
			want:      domain.StatusUp,
		},
		{
			name:      "any down wins",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-up", "m-down"}},
			want:      domain.StatusDown,
		},
		{
			name:      "manual partial outage",
			component: domain.Component{ID: "c", ManualStatus: domain.ManualStatusPartialOutage, MonitorIDs: []string{"m-up"}},
			want:      domain.StatusDown,
		},
		{
			name:      "manual maintenance",
			component: domain.Component{ID: "c", ManualStatus: domain.ManualStatusMaintenance, MonitorIDs: []string{"m-down"}},
			want:      domain.StatusMaintenance,
		},
		{
			name:      "manual operational falls through",
			component: domain.Component{ID: "c", ManualStatus: domain.ManualStatusOperational, MonitorIDs: []string{"m-up"}},
			want:      domain.StatusUp,
		},
		{
			name:      "maintenance on monitor beats down",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-down"}},
			suppressions: []domain.Suppression{{
				Kind:     domain.SuppressionKindMaintenance,
				StartsAt: now.Add(-time.Hour),
				Scopes:   []domain.SuppressionScope{{Type: domain.ScopeMonitor, ID: "m-down"}},
			}},
			want: domain.StatusMaintenance,
		},
		{
			name:      "maintenance on component",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-up"}},
			suppressions: []domain.Suppression{{
				Kind:     domain.SuppressionKindMaintenance,
				StartsAt: now.Add(-time.Hour),
				EndsAt:   ptrTime(now.Add(time.Hour)),
				Scopes:   []domain.SuppressionScope{{Type: domain.ScopeComponent, ID: "c"}},
			}},
			want: domain.StatusMaintenance,
		},
		{
			name:      "maintenance on monitor group",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-down"}, MonitorGroupIDs: []string{"g1"}},
			suppressions: []domain.Suppression{{
				Kind:     domain.SuppressionKindMaintenance,
				StartsAt: now.Add(-time.Hour),
				Scopes:   []domain.SuppressionScope{{Type: domain.ScopeMonitorGroup, ID: "g1"}},
			}},
			want: domain.StatusMaintenance,
		},
		{
			name:      "silence does not change status",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-down"}},
			suppressions: []domain.Suppression{{
				Kind:     domain.SuppressionKindSilence,
				StartsAt: now.Add(-time.Hour),
				Scopes:   []domain.SuppressionScope{{Type: domain.ScopeMonitor, ID: "m-down"}},
			}},
			want: domain.StatusDown,
		},
		{
			name:      "ended maintenance ignored",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-down"}},
			suppressions: []domain.Suppression{{
				Kind:     domain.SuppressionKindMaintenance,
				StartsAt: now.Add(-2 * time.Hour),
				EndsAt:   ptrTime(now),
				Scopes:   []domain.SuppressionScope{{Type: domain.ScopeMonitor, ID: "m-down"}},
			}},
			want: domain.StatusDown,
		},
		{
			name:      "future maintenance ignored",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-down"}},
			suppressions: []domain.Suppression{{
				Kind:     domain.SuppressionKindMaintenance,
				StartsAt: now.Add(time.Minute),
				Scopes:   []domain.SuppressionScope{{Type: domain.ScopeComponent, ID: "c"}},
			}},
			want: domain.StatusDown,
		},
		{
			name:      "maintenance on other monitor ignored",
			component: domain.Component{ID: "c", MonitorIDs: []string{"m-down"}},
			suppressions: []domain.Suppression{{
				Kind:     domain.SuppressionKindMaintenance,
				StartsAt: now.Add(-time.Hour),
				Scopes:   []domain.SuppressionScope{{Type: domain.ScopeMonitor, ID: "m-up"}},
			}},
			want: domain.StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statuses := ComputeStatuses([]domain.Component{tt.component}, monitors, tt.suppressions, now)
			assert.Equal(t, tt.want, statuses["c"])
		})
	}
}

func TestPropagate_Chain(t *testing.T) {
	// api -> db -> storage; storage is down.
	components := []domain.Component{
		{ID: "api", DependsOn: []string{"db"}},
		{ID: "db", DependsOn: []string{"storage"}},
		{ID: "storage"},
		{ID: "web"},
	}
	statuses := map[string]domain.Status{
		"api":     domain.StatusUp,
		"db":      domain.StatusUp,
		"storage": domain.StatusDown,
		"web":     domain.StatusUp,
	}

	passes := Propagate(statuses, components)

	assert.Equal(t, domain.StatusDown, statuses["api"])
	assert.Equal(t, domain.StatusDown, statuses["db"])
	assert.Equal(t, domain.StatusUp, statuses["web"])
	assert.LessOrEqual(t, passes, len(components))
}

func TestPropagate_DoesNotLowerStatus(t *testing.T) {
	components := []domain.Component{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b"},
	}
	statuses := map[string]domain.Status{"a": domain.StatusMaintenance, "b": domain.StatusUp}

	Propagate(statuses, components)
	assert.Equal(t, domain.StatusMaintenance, statuses["a"])
}

func TestPropagate_Cycle(t *testing.T) {
	components := []domain.Component{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"c"}},
		{ID: "c", DependsOn: []string{"a"}},
	}
	statuses := map[string]domain.Status{"a": domain.StatusUp, "b": domain.StatusUnknown, "c": domain.StatusMaintenance}

	passes := Propagate(statuses, components)

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, domain.StatusMaintenance, statuses[id], id)
	}
	assert.LessOrEqual(t, passes, len(components))
}

func TestPropagate_StableStopsAfterOnePass(t *testing.T) {
	components := []domain.Component{{ID: "a", DependsOn: []string{"b"}}, {ID: "b"}, {ID: "c"}}
	statuses := map[string]domain.Status{"a": domain.StatusDown, "b": domain.StatusUp, "c": domain.StatusUp}

	assert.Equal(t, 1, Propagate(statuses, components))
}

func TestPropagate_UnknownDependencyIgnored(t *testing.T) {
	components := []domain.Component{{ID: "a", DependsOn: []string{"missing"}}}
	statuses := map[string]domain.Status{"a": domain.StatusUp}

	Propagate(statuses, components)
	assert.Equal(t, domain.StatusUp, statuses["a"])
}

func TestPropagate_Monotonicity(t *testing.T) {
	all := []domain.Status{domain.StatusUp, domain.StatusUnknown, domain.StatusMaintenance, domain.StatusDown}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(12)
		components := make([]domain.Component, n)
		base := make(map[string]domain.Status, n)
		for i := range components {
			id := fmt.Sprintf("c%d", i)
			components[i].ID = id
			base[id] = all[rng.Intn(len(all))]
		}
		for i := range components {
			for j := 0; j < n; j++ {
				if rng.Intn(4) == 0 {
					components[i].DependsOn = append(components[i].DependsOn, fmt.Sprintf("c%d", j))
				}
			}
		}

		statuses := make(map[string]domain.Status, n)
		for k, v := range base {
			statuses[k] = v
		}
		passes := Propagate(statuses, components)
		assert.LessOrEqual(t, passes, n)

		for i := range components {
			id := components[i].ID
			want := base[id].Severity()
			for _, dep := range reachable(components, id) {
				if s := base[dep].Severity(); s > want {
					want = s
				}
			}
			assert.Equal(t, want, statuses[id].Severity(), "round %d component %s", round, id)
		}
	}
}

// reachable returns ids transitively depended on by id.
func reachable(components []domain.Component, id string) []string {
	deps := make(map[string][]string, len(components))
	for _, c := range components {
		deps[c.ID] = c.DependsOn
	}

	seen := map[string]bool{}
	stack := append([]string(nil), deps[id]...)
	var out []string
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		stack = append(stack, deps[cur]...)
	}
	return out
}
