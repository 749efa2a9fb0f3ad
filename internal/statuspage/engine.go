// Package statuspage derives component health and serves cached public
// status page snapshots.
package statuspage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Status page errors.
var (
	ErrStatusPageNotFound  = errors.New("status page not found")
	ErrSnapshotUnavailable = errors.New("status snapshot temporarily unavailable")
)

// Config contains engine configuration.
type Config struct {
	CacheTTL       time.Duration
	ResolvedWindow time.Duration
	IncidentLimit  int
	RebuildTimeout time.Duration
	// RebuildConcurrency bounds parallel page rebuilds in RebuildTeam.
	RebuildConcurrency int
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:           60 * time.Second,
		ResolvedWindow:     30 * 24 * time.Hour,
		IncidentLimit:      50,
		RebuildTimeout:     10 * time.Second,
		RebuildConcurrency: 4,
	}
}

// Engine builds and caches status snapshots.
type Engine struct {
	config Config
	repo   Repository
	cache  *snapshotCache
	group  singleflight.Group
	now    func() time.Time

	// generation orders rebuilds by start time.
	generation atomic.Uint64
}

// NewEngine creates a new engine.
func NewEngine(config Config, repo Repository) *Engine {
	if config.RebuildConcurrency <= 0 {
		config.RebuildConcurrency = 1
	}
	return &Engine{
		config: config,
		repo:   repo,
		cache:  newSnapshotCache(config.CacheTTL),
		now:    time.Now,
	}
}

// Get returns the cached snapshot for slug, rebuilding it on a miss.
// Concurrent misses for one slug share a single rebuild. When the rebuild
// fails the last good snapshot is served if there is one.
func (e *Engine) Get(ctx context.Context, slug string) (*domain.StatusSnapshot, error) {
	cached, fresh := e.cache.get(slug, e.now())
	if fresh {
		recordCacheLookup("hit")
		return cached, nil
	}
	recordCacheLookup("miss")

	// The shared rebuild must not die with whichever caller started it.
	v, err, _ := e.group.Do(slug, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.RebuildTimeout)
		defer cancel()
		return e.rebuild(rctx, slug)
	})
	if err == nil {
		return v.(*domain.StatusSnapshot), nil
	}
	if errors.Is(err, ErrStatusPageNotFound) {
		return nil, err
	}

	if cached != nil {
		slog.Warn("serving stale status snapshot", "slug", slug, "error", err)
		recordCacheLookup("stale")
		return cached, nil
	}
	slog.Error("status snapshot unavailable", "slug", slug, "error", err)
	return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
}

// Rebuild recomputes the snapshot for slug and stores it in the cache. It
// never joins a read-through rebuild already in flight, so state written
// before the call is always reflected.
func (e *Engine) Rebuild(ctx context.Context, slug string) (*domain.StatusSnapshot, error) {
	rctx, cancel := context.WithTimeout(ctx, e.config.RebuildTimeout)
	defer cancel()
	return e.rebuild(rctx, slug)
}

func (e *Engine) rebuild(ctx context.Context, slug string) (*domain.StatusSnapshot, error) {
	start := time.Now()
	gen := e.generation.Add(1)

	page, err := e.repo.GetStatusPageBySlug(ctx, slug)
	if errors.Is(err, ErrStatusPageNotFound) {
		e.cache.delete(slug)
		recordRebuild("not_found", time.Since(start))
		return nil, err
	}
	if err != nil {
		recordRebuild("error", time.Since(start))
		return nil, fmt.Errorf("get status page: %w", err)
	}

	snapshot, err := e.BuildSnapshot(ctx, page)
	if err != nil {
		recordRebuild("error", time.Since(start))
		return nil, err
	}

	// A build that started earlier than the cached one must not replace it.
	if !e.cache.set(slug, snapshot, gen, e.now()) {
		recordRebuild("superseded", time.Since(start))
		if newer, _ := e.cache.get(slug, e.now()); newer != nil {
			return newer, nil
		}
		return snapshot, nil
	}
	recordRebuild("success", time.Since(start))
	return snapshot, nil
}

// RebuildTeam refreshes every status page of a team.
func (e *Engine) RebuildTeam(ctx context.Context, teamID string) error {
	pages, err := e.repo.ListStatusPagesByTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("list status pages: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.RebuildConcurrency)
	for _, p := range pages {
		g.Go(func() error {
			if _, err := e.Rebuild(gctx, p.Slug); err != nil {
				return fmt.Errorf("rebuild %s: %w", p.Slug, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// BuildSnapshot computes the snapshot for page without touching the cache.
func (e *Engine) BuildSnapshot(ctx context.Context, page *domain.StatusPage) (*domain.StatusSnapshot, error) {
	now := e.now().UTC()

	pageComponentIDs, err := e.repo.ListPageComponentIDs(ctx, page.ID)
	if err != nil {
		return nil, fmt.Errorf("list page components: %w", err)
	}
	components, err := e.repo.ListTeamComponents(ctx, page.TeamID)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	monitors, err := e.repo.ListMonitorStatuses(ctx, page.TeamID)
	if err != nil {
		return nil, fmt.Errorf("list monitor statuses: %w", err)
	}
	suppressions, err := e.repo.ListActiveSuppressions(ctx, page.TeamID, now)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	incidents, err := e.repo.ListPageIncidents(ctx, page.ID, now.Add(-e.config.ResolvedWindow), e.config.IncidentLimit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	statuses := ComputeStatuses(components, monitors, suppressions, now)
	passes := Propagate(statuses, components)
	recordPropagationPasses(passes)

	byID := make(map[string]*domain.Component, len(components))
	for i := range components {
		byID[components[i].ID] = &components[i]
	}

	snapshot := &domain.StatusSnapshot{
		GeneratedAt: now,
		Page: domain.SnapshotPage{
			ID:         page.ID,
			Name:       page.Name,
			Slug:       page.Slug,
			LogoURL:    page.LogoURL,
			BrandColor: page.BrandColor,
			CustomCSS:  page.CustomCSS,
		},
		Components: make([]domain.SnapshotComponent, 0, len(pageComponentIDs)),
		Incidents:  make([]domain.SnapshotIncident, 0, len(incidents)),
	}

	for _, id := range pageComponentIDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		snapshot.Components = append(snapshot.Components, domain.SnapshotComponent{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Status:      statuses[c.ID],
		})
	}

	for _, inc := range incidents {
		si := domain.SnapshotIncident{
			ID:         inc.ID,
			Title:      inc.Title,
			Status:     inc.Status,
			StartedAt:  inc.StartedAt,
			ResolvedAt: inc.ResolvedAt,
			Updates:    make([]domain.SnapshotIncidentUpdate, 0, len(inc.Updates)),
		}
		for _, u := range inc.Updates {
			si.Updates = append(si.Updates, domain.SnapshotIncidentUpdate{
				ID:        u.ID,
				Message:   u.Message,
				Status:    u.Status,
				CreatedAt: u.CreatedAt,
			})
		}
		snapshot.Incidents = append(snapshot.Incidents, si)
	}

	return snapshot, nil
}
