package statuspage

import (
	"context"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository defines the data access interface for status page snapshots.
type Repository interface {
	// GetStatusPageBySlug returns ErrStatusPageNotFound for unknown slugs.
	GetStatusPageBySlug(ctx context.Context, slug string) (*domain.StatusPage, error)
	ListStatusPagesByTeam(ctx context.Context, teamID string) ([]domain.StatusPage, error)
	// ListPageComponentIDs returns the page's components in display order.
	ListPageComponentIDs(ctx context.Context, pageID string) ([]string, error)
	// ListTeamComponents returns every component of the team with monitor,
	// monitor group and dependency links.
	ListTeamComponents(ctx context.Context, teamID string) ([]domain.Component, error)
	ListMonitorStatuses(ctx context.Context, teamID string) (map[string]domain.CheckStatus, error)
	ListActiveSuppressions(ctx context.Context, teamID string, now time.Time) ([]domain.Suppression, error)
	// ListPageIncidents returns all open incidents and at most limit of
	// those resolved after resolvedSince, newest first, with updates ordered
	// by creation time.
	ListPageIncidents(ctx context.Context, pageID string, resolvedSince time.Time, limit int) ([]domain.Incident, error)
}
