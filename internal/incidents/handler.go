package incidents

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// TransitionPath is the coordinator RPC route.
const TransitionPath = "/internal/v1/transition"

// Transitioner is implemented by Coordinator and Client.
type Transitioner interface {
	Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error)
}

// Handler exposes the coordinator over HTTP.
type Handler struct {
	coordinator Transitioner
	validator   *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(coordinator Transitioner) *Handler {
	return &Handler{
		coordinator: coordinator,
		validator:   validator.New(),
	}
}

// RegisterRoutes registers the coordinator RPC. Callers must mount it behind
// service authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/transition", h.Transition)
}

// Transition handles POST /internal/v1/transition request.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var req domain.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := h.coordinator.Transition(r.Context(), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrInvalidTransition, Status: http.StatusBadRequest},
			{Error: ErrIncidentAlreadyOpen, Status: http.StatusConflict},
		})
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
