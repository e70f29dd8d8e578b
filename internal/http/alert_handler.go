package httpapi

import (
	"net/http"

	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/repository"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// AlertHandler 血液警报 Handler
type AlertHandler struct {
	alerts service.AlertService
	logger *zap.Logger
}

func NewAlertHandler(alerts service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

func (h *AlertHandler) Register(r *Router) {
	r.Guarded("GET /alerts", navigation.CapAlertsView, h.List)
	r.Guarded("POST /alerts", navigation.CapAlertsManage, h.Create)
	r.Guarded("GET /alerts/{id}", navigation.CapAlertsView, h.Get)
	r.Guarded("POST /alerts/{id}/deactivate", navigation.CapAlertsManage, h.Deactivate)
}

// List live alerts only.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out, err := h.alerts.ListActive(r.Context(), repository.AlertFilter{
		BloodType:    q.Get("blood_type"),
		Municipality: q.Get("municipality"),
		Urgency:      q.Get("urgency"),
		Page:         page,
		PageSize:     size,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var a domain.Alert
	if err := readBodyJSON(r, maxBodyBytes, &a); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	out, err := h.alerts.Create(r.Context(), p.UserID, &a)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(out))
}

func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.alerts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *AlertHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
