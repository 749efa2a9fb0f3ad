package push

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
)

const maxReportBytes = 16 << 10

// Handler handles push requests.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new push handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers public push routes. Requests authenticate with
// the monitor's push token, not with a session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/push/{monitorID}", h.Report)
	r.Post("/heartbeat/{monitorID}", h.Heartbeat)
}

// ReportResponse is returned for an accepted report.
type ReportResponse struct {
	JobID string `json:"job_id"`
}

// HeartbeatResponse is returned for a recorded heartbeat.
type HeartbeatResponse struct {
	ReceivedAt time.Time `json:"received_at"`
}

// Report handles POST /api/v1/push/{monitorID} request.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := h.monitorID(w, r)
	if !ok {
		return
	}

	var req Report
	if err := json.NewDecoder(io.LimitReader(r.Body, maxReportBytes)).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Status = foldStatus(req.Status)
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	token, _ := httputil.BearerToken(r)
	jobID, err := h.service.Report(r.Context(), monitorID, token, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusAccepted, ReportResponse{JobID: jobID})
}

// Heartbeat handles POST /api/v1/heartbeat/{monitorID} request.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := h.monitorID(w, r)
	if !ok {
		return
	}

	token, _ := httputil.BearerToken(r)
	at, err := h.service.Heartbeat(r.Context(), monitorID, token)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, HeartbeatResponse{ReceivedAt: at})
}

// foldStatus lets reporters send "DOWN" or "Up". A Caser is not safe for
// concurrent use, so one is built per call.
func foldStatus(status string) string {
	return cases.Fold().String(strings.TrimSpace(status))
}

func (h *Handler) monitorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "monitorID")
	if err := h.validator.Var(id, "required,uuid"); err != nil {
		httputil.Error(w, http.StatusNotFound, "monitor not found")
		return "", false
	}
	return id, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrMonitorNotFound, Status: http.StatusNotFound},
		{Error: ErrInvalidToken, Status: http.StatusUnauthorized, Headers: map[string]string{"WWW-Authenticate": "Bearer"}},
		{Error: ErrWrongType, Status: http.StatusConflict},
	})
}
