package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"dugtong/internal/navigation"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler 报表 Handler
type ReportHandler struct {
	reports service.ReportService
	logger  *zap.Logger
}

func NewReportHandler(reports service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

func (h *ReportHandler) Register(r *Router) {
	r.Guarded("GET /reports/summary", navigation.CapDashboard, h.Summary)
	r.Guarded("GET /reports/donors.xlsx", navigation.CapReportsView, h.ExportDonors)
}

func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.Summary(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// ExportDonors accepts the donor list filters.
func (h *ReportHandler) ExportDonors(w http.ResponseWriter, r *http.Request) {
	f, err := donorFilter(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	data, err := h.reports.ExportDonors(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	name := fmt.Sprintf("donors-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
