package httpapi

import (
	"net/http"

	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/repository"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// DonorHandler 献血者 Handler
type DonorHandler struct {
	donors service.DonorService
	logger *zap.Logger
}

func NewDonorHandler(donors service.DonorService, logger *zap.Logger) *DonorHandler {
	return &DonorHandler{donors: donors, logger: logger}
}

func (h *DonorHandler) Register(r *Router) {
	r.Guarded("GET /donors", navigation.CapDonorsView, h.List)
	r.Guarded("POST /donors", navigation.CapDonorsManage, h.Create)
	r.Guarded("GET /donors/{id}", navigation.CapDonorsView, h.Get)
	r.Guarded("PUT /donors/{id}", navigation.CapDonorsManage, h.Update)
	r.Guarded("DELETE /donors/{id}", navigation.CapDonorsManage, h.Delete)
	r.Guarded("PATCH /donors/{id}/availability", navigation.CapDonorsManage, h.SetAvailability)
}

func donorFilter(r *http.Request) (repository.DonorFilter, error) {
	q := r.URL.Query()
	page, size, err := pageParams(r)
	if err != nil {
		return repository.DonorFilter{}, err
	}
	return repository.DonorFilter{
		BloodType:    q.Get("blood_type"),
		Municipality: q.Get("municipality"),
		Availability: q.Get("availability"),
		Search:       q.Get("search"),
		Page:         page,
		PageSize:     size,
	}, nil
}

func (h *DonorHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := donorFilter(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.donors.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(page))
}

func (h *DonorHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.donors.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(d))
}

func (h *DonorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var d domain.Donor
	if err := readBodyJSON(r, maxBodyBytes, &d); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	out, err := h.donors.Create(r.Context(), &d)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(out))
}

func (h *DonorHandler) Update(w http.ResponseWriter, r *http.Request) {
	var d domain.Donor
	if err := readBodyJSON(r, maxBodyBytes, &d); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	out, err := h.donors.Update(r.Context(), r.PathValue("id"), &d)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *DonorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.donors.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *DonorHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AvailabilityStatus string `json:"availabilityStatus"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if err := h.donors.SetAvailability(r.Context(), r.PathValue("id"), req.AvailabilityStatus); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
