package statuspage

import (
	"net/http"
	"time"

	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

const (
	snapshotMaxAge = 30 * time.Second
	retryAfter     = "30"
)

// Handler serves status snapshots over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new status page handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterPublicRoutes registers GET /status/{slug}.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/status/{slug}", h.GetSnapshot)
}

// RegisterInternalRoutes registers the rebuild trigger for the CRUD layer.
func (h *Handler) RegisterInternalRoutes(r chi.Router) {
	r.Post("/status-pages/{slug}/rebuild", h.Rebuild)
}

// GetSnapshot handles GET /api/v1/status/{slug} request.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	snapshot, err := h.engine.Get(r.Context(), slug)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.CachedJSON(w, http.StatusOK, snapshot, snapshotMaxAge)
}

// Rebuild handles POST /internal/v1/status-pages/{slug}/rebuild request.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	snapshot, err := h.engine.Rebuild(r.Context(), slug)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrStatusPageNotFound, Status: http.StatusNotFound, Message: "status page not found"},
		{
			Error:   ErrSnapshotUnavailable,
			Status:  http.StatusServiceUnavailable,
			Message: "status temporarily unavailable",
			Headers: map[string]string{"Retry-After": retryAfter},
		},
	})
}
