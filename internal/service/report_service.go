package service

import (
	"bytes"
	"context"
	"fmt"

	"dugtong/internal/domain"
	"dugtong/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	donorSheet   = "Donors"
	summarySheet = "Summary"
)

var donorExportHeaders = []string{
	"Full Name", "Age", "Sex", "Blood Type", "Contact Number",
	"Municipality", "Availability", "Last Donation", "Registered",
}

var donorExportWidths = []float64{28, 6, 8, 11, 16, 18, 24, 14, 14}

// ReportService dashboard summary and spreadsheet export.
type ReportService interface {
	Summary(ctx context.Context) (*domain.DonorSummary, error)
	// ExportDonors renders every donor matching f as an xlsx workbook.
	ExportDonors(ctx context.Context, f repository.DonorFilter) ([]byte, error)
}

type reportService struct {
	donors repository.DonorRepository
	logger *zap.Logger
}

func NewReportService(donors repository.DonorRepository, logger *zap.Logger) ReportService {
	return &reportService{donors: donors, logger: logger}
}

func (s *reportService) Summary(ctx context.Context) (*domain.DonorSummary, error) {
	counts, err := s.donors.CountByBloodType(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Summarize(counts), nil
}

func (s *reportService) ExportDonors(ctx context.Context, f repository.DonorFilter) ([]byte, error) {
	donors, err := s.allDonors(ctx, f)
	if err != nil {
		return nil, err
	}
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}

	x := excelize.NewFile()
	defer x.Close()

	index, err := x.NewSheet(donorSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	x.SetActiveSheet(index)
	_ = x.DeleteSheet("Sheet1")

	headerStyle, err := x.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FDE2E2"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(x, donorSheet, 1, toAny(donorExportHeaders)); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(donorExportHeaders), 1)
	if err := x.SetCellStyle(donorSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, w := range donorExportWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := x.SetColWidth(donorSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, d := range donors {
		lastDonation := ""
		if d.LastDonationDate != nil {
			lastDonation = d.LastDonationDate.Format("2006-01-02")
		}
		row := []any{
			d.FullName, d.Age, d.Sex, string(d.BloodType), d.ContactNumber,
			d.Municipality, string(d.Availability), lastDonation, d.CreatedAt.Format("2006-01-02"),
		}
		if err := writeRow(x, donorSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := x.SetPanes(donorSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// 汇总表
	if _, err := x.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeRow(x, summarySheet, 1, []any{"Blood Type", "Total", "Available"}); err != nil {
		return nil, err
	}
	if err := x.SetCellStyle(summarySheet, "A1", "C1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, c := range summary.ByBloodType {
		if err := writeRow(x, summarySheet, i+2, []any{string(c.BloodType), c.Total, c.Available}); err != nil {
			return nil, err
		}
	}
	totalRow := len(summary.ByBloodType) + 2
	if err := writeRow(x, summarySheet, totalRow, []any{"All", summary.TotalDonors, summary.Available}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := x.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	s.logger.Info("Donor export generated", zap.Int("rows", len(donors)))
	return buf.Bytes(), nil
}

func (s *reportService) allDonors(ctx context.Context, f repository.DonorFilter) ([]*domain.Donor, error) {
	f.Page, f.PageSize = 0, MaxPageSize
	var out []*domain.Donor
	for {
		page, err := s.donors.List(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if len(page.Items) < f.PageSize || len(out) >= page.Total {
			return out, nil
		}
		f.Page++
	}
}

func writeRow(x *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := x.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
