package httpapi

import (
	"net/http"

	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/repository"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// RegistrationHandler 献血登记 Handler
type RegistrationHandler struct {
	registrations service.RegistrationService
	logger        *zap.Logger
}

func NewRegistrationHandler(registrations service.RegistrationService, logger *zap.Logger) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations, logger: logger}
}

func (h *RegistrationHandler) Register(r *Router) {
	// the public registration form submits without a session
	r.Public("POST /registrations", h.Submit)
	r.Guarded("GET /registrations", navigation.CapRegistrationReview, h.List)
	r.Guarded("GET /registrations/{id}", navigation.CapRegistrationReview, h.Get)
	r.Guarded("POST /registrations/{id}/approve", navigation.CapRegistrationReview, h.Approve)
	r.Guarded("POST /registrations/{id}/reject", navigation.CapRegistrationReview, h.Reject)
}

func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var reg domain.DonorRegistration
	if err := readBodyJSON(r, maxBodyBytes, &reg); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	out, err := h.registrations.Submit(r.Context(), &reg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(out))
}

func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	f := repository.RegistrationFilter{
		Status:   r.URL.Query().Get("status"),
		Search:   r.URL.Query().Get("search"),
		Page:     page,
		PageSize: size,
	}
	out, err := h.registrations.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.registrations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// Approve the reviewer is the caller.
func (h *RegistrationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	out, err := h.registrations.Approve(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *RegistrationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	out, err := h.registrations.Reject(r.Context(), r.PathValue("id"), p.UserID, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}
