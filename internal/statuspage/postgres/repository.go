// Package postgres provides PostgreSQL implementation of the status page repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/statuspage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements statuspage.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const pageColumns = `id, team_id, slug, name, is_public, logo_url, brand_color, custom_css`

func scanPage(row pgx.Row) (*domain.StatusPage, error) {
	var p domain.StatusPage
	err := row.Scan(&p.ID, &p.TeamID, &p.Slug, &p.Name, &p.IsPublic, &p.LogoURL, &p.BrandColor, &p.CustomCSS)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetStatusPageBySlug retrieves a public status page by slug.
func (r *Repository) GetStatusPageBySlug(ctx context.Context, slug string) (*domain.StatusPage, error) {
	query := `SELECT ` + pageColumns + ` FROM status_pages WHERE slug = $1 AND is_public`
	p, err := scanPage(r.db.QueryRow(ctx, query, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, statuspage.ErrStatusPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status page: %w", err)
	}
	return p, nil
}

// ListStatusPagesByTeam returns every public status page of a team.
func (r *Repository) ListStatusPagesByTeam(ctx context.Context, teamID string) ([]domain.StatusPage, error) {
	query := `SELECT ` + pageColumns + ` FROM status_pages WHERE team_id = $1 AND is_public ORDER BY slug`
	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("list status pages: %w", err)
	}
	defer rows.Close()

	pages := make([]domain.StatusPage, 0)
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status page: %w", err)
		}
		pages = append(pages, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status pages: %w", err)
	}
	return pages, nil
}

// ListPageComponentIDs returns component ids of a page in display order.
func (r *Repository) ListPageComponentIDs(ctx context.Context, pageID string) ([]string, error) {
	query := `
		SELECT spc.component_id
		FROM status_page_components spc
		JOIN components c ON c.id = spc.component_id
		WHERE spc.status_page_id = $1
		ORDER BY spc.sort_order, c.name
	`
	rows, err := r.db.Query(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("list page components: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan component id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page components: %w", err)
	}
	return ids, nil
}

// ListTeamComponents returns every component of a team with its links.
func (r *Repository) ListTeamComponents(ctx context.Context, teamID string) ([]domain.Component, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, description, current_status FROM components WHERE team_id = $1 ORDER BY name`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}

	components := make([]domain.Component, 0)
	index := make(map[string]int)
	for rows.Next() {
		var c domain.Component
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ManualStatus); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan component: %w", err)
		}
		index[c.ID] = len(components)
		components = append(components, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components: %w", err)
	}

	monitorQuery := `
		SELECT cm.component_id, cm.monitor_id, m.group_id
		FROM component_monitors cm
		JOIN components c ON c.id = cm.component_id
		JOIN monitors m ON m.id = cm.monitor_id
		WHERE c.team_id = $1
	`
	rows, err = r.db.Query(ctx, monitorQuery, teamID)
	if err != nil {
		return nil, fmt.Errorf("list component monitors: %w", err)
	}
	for rows.Next() {
		var componentID, monitorID string
		var groupID *string
		if err := rows.Scan(&componentID, &monitorID, &groupID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan component monitor: %w", err)
		}
		i, ok := index[componentID]
		if !ok {
			continue
		}
		components[i].MonitorIDs = append(components[i].MonitorIDs, monitorID)
		if groupID != nil {
			components[i].MonitorGroupIDs = append(components[i].MonitorGroupIDs, *groupID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate component monitors: %w", err)
	}

	depQuery := `
		SELECT d.component_id, d.depends_on_component_id
		FROM component_dependencies d
		JOIN components c ON c.id = d.component_id
		WHERE c.team_id = $1
	`
	rows, err = r.db.Query(ctx, depQuery, teamID)
	if err != nil {
		return nil, fmt.Errorf("list component dependencies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var componentID, dependsOn string
		if err := rows.Scan(&componentID, &dependsOn); err != nil {
			return nil, fmt.Errorf("scan component dependency: %w", err)
		}
		if i, ok := index[componentID]; ok {
			components[i].DependsOn = append(components[i].DependsOn, dependsOn)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate component dependencies: %w", err)
	}

	return components, nil
}

// ListMonitorStatuses returns the last status of every checked monitor of a team.
func (r *Repository) ListMonitorStatuses(ctx context.Context, teamID string) (map[string]domain.CheckStatus, error) {
	rows, err := r.db.Query(ctx, `SELECT monitor_id, last_status FROM monitor_state WHERE team_id = $1`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list monitor statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]domain.CheckStatus)
	for rows.Next() {
		var id string
		var status domain.CheckStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan monitor status: %w", err)
		}
		statuses[id] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitor statuses: %w", err)
	}
	return statuses, nil
}

// ListActiveSuppressions returns suppressions whose window contains now.
func (r *Repository) ListActiveSuppressions(ctx context.Context, teamID string, now time.Time) ([]domain.Suppression, error) {
	query := `
		SELECT s.id, s.team_id, s.kind, s.starts_at, s.ends_at, ss.scope_type, ss.scope_id
		FROM suppressions s
		LEFT JOIN suppression_scopes ss ON ss.suppression_id = s.id
		WHERE s.team_id = $1
		  AND s.starts_at <= $2
		  AND (s.ends_at IS NULL OR s.ends_at > $2)
		ORDER BY s.starts_at, s.id
	`
	rows, err := r.db.Query(ctx, query, teamID, now)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	suppressions := make([]domain.Suppression, 0)
	index := make(map[string]int)
	for rows.Next() {
		var s domain.Suppression
		var scopeType, scopeID *string
		if err := rows.Scan(&s.ID, &s.TeamID, &s.Kind, &s.StartsAt, &s.EndsAt, &scopeType, &scopeID); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		i, ok := index[s.ID]
		if !ok {
			i = len(suppressions)
			index[s.ID] = i
			suppressions = append(suppressions, s)
		}
		if scopeType != nil && scopeID != nil {
			suppressions[i].Scopes = append(suppressions[i].Scopes, domain.SuppressionScope{
				Type: domain.ScopeType(*scopeType),
				ID:   *scopeID,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suppressions: %w", err)
	}
	return suppressions, nil
}

// ListPageIncidents returns incidents attached to the page or raised by
// monitors linked to the page's components. Every open incident is returned;
// limit caps only the resolved ones.
func (r *Repository) ListPageIncidents(ctx context.Context, pageID string, resolvedSince time.Time, limit int) ([]domain.Incident, error) {
	query := `
		WITH page_incidents AS (
		    SELECT i.id, i.team_id, i.status_page_id, i.monitor_id, i.title, i.status, i.started_at, i.resolved_at
		    FROM incidents i
		    WHERE i.status_page_id = $1
		       OR (i.status_page_id IS NULL AND i.monitor_id IN (
		           SELECT cm.monitor_id
		           FROM component_monitors cm
		           JOIN status_page_components spc ON spc.component_id = cm.component_id
		           WHERE spc.status_page_id = $1
		       ))
		), recent_resolved AS (
		    SELECT * FROM page_incidents
		    WHERE status = 'resolved' AND resolved_at >= $2
		    ORDER BY started_at DESC
		    LIMIT $3
		)
		SELECT id, team_id, status_page_id, monitor_id, title, status, started_at, resolved_at
		FROM (
		    SELECT * FROM page_incidents WHERE status <> 'resolved'
		    UNION ALL
		    SELECT * FROM recent_resolved
		) i
		ORDER BY started_at DESC
	`
	rows, err := r.db.Query(ctx, query, pageID, resolvedSince, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	incidents := make([]domain.Incident, 0)
	ids := make([]string, 0)
	index := make(map[string]int)
	for rows.Next() {
		var inc domain.Incident
		var monitorID *string
		err := rows.Scan(&inc.ID, &inc.TeamID, &inc.StatusPageID, &monitorID, &inc.Title, &inc.Status, &inc.StartedAt, &inc.ResolvedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		if monitorID != nil {
			inc.MonitorID = *monitorID
		}
		index[inc.ID] = len(incidents)
		ids = append(ids, inc.ID)
		incidents = append(incidents, inc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	if len(ids) == 0 {
		return incidents, nil
	}

	rows, err = r.db.Query(ctx, `
		SELECT id, incident_id, message, status, created_at
		FROM incident_updates
		WHERE incident_id = ANY($1::uuid[])
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.IncidentUpdate
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Message, &u.Status, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident update: %w", err)
		}
		if i, ok := index[u.IncidentID]; ok {
			incidents[i].Updates = append(incidents[i].Updates, u)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident updates: %w", err)
	}

	return incidents, nil
}
