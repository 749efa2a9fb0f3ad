package domain

import "time"

// StatusSnapshot is the public cached view of a status page.
type StatusSnapshot struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Page        SnapshotPage        `json:"page"`
	Components  []SnapshotComponent `json:"components"`
	Incidents   []SnapshotIncident  `json:"incidents"`
}

type SnapshotPage struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Slug       string  `json:"slug"`
	LogoURL    *string `json:"logo_url"`
	BrandColor *string `json:"brand_color"`
	CustomCSS  *string `json:"custom_css"`
}

type SnapshotComponent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

type SnapshotIncident struct {
	ID         string                   `json:"id"`
	Title      string                   `json:"title"`
	Status     IncidentStatus           `json:"status"`
	StartedAt  time.Time                `json:"started_at"`
	ResolvedAt *time.Time               `json:"resolved_at"`
	Updates    []SnapshotIncidentUpdate `json:"updates"`
}

type SnapshotIncidentUpdate struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Status    IncidentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}
