package service

import (
	"context"
	"strings"

	"dugtong/internal/domain"
	"dugtong/internal/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// MaxPageSize upper bound for any list request.
const MaxPageSize = 100

// DonorService 献血者管理服务接口
type DonorService interface {
	List(ctx context.Context, f repository.DonorFilter) (*repository.Page[*domain.Donor], error)
	Get(ctx context.Context, id string) (*domain.Donor, error)
	Create(ctx context.Context, d *domain.Donor) (*domain.Donor, error)
	Update(ctx context.Context, id string, d *domain.Donor) (*domain.Donor, error)
	Delete(ctx context.Context, id string) error
	SetAvailability(ctx context.Context, id, status string) error
	// Summary dashboard totals, one row per blood type.
	Summary(ctx context.Context) (*domain.DonorSummary, error)
}

type donorService struct {
	donors   repository.DonorRepository
	validate *validator.Validate
	logger   *zap.Logger
}

func NewDonorService(donors repository.DonorRepository, logger *zap.Logger) DonorService {
	return &donorService{donors: donors, validate: newValidator(), logger: logger}
}

func (s *donorService) List(ctx context.Context, f repository.DonorFilter) (*repository.Page[*domain.Donor], error) {
	if f.BloodType != "" {
		bt, ok := domain.ParseBloodType(f.BloodType)
		if !ok {
			return nil, invalid("blood_type", "bloodtype")
		}
		f.BloodType = string(bt)
	}
	if f.Availability != "" {
		f.Availability = string(domain.ParseAvailability(f.Availability))
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Page, f.PageSize = clampPage(f.Page, f.PageSize)
	return s.donors.List(ctx, f)
}

func (s *donorService) Get(ctx context.Context, id string) (*domain.Donor, error) {
	return s.donors.Get(ctx, id)
}

func (s *donorService) Create(ctx context.Context, d *domain.Donor) (*domain.Donor, error) {
	if err := s.prepare(d); err != nil {
		return nil, err
	}
	out, err := s.donors.Create(ctx, d)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Donor created", zap.String("donor_id", out.ID), zap.String("blood_type", string(out.BloodType)))
	return out, nil
}

func (s *donorService) Update(ctx context.Context, id string, d *domain.Donor) (*domain.Donor, error) {
	if err := s.prepare(d); err != nil {
		return nil, err
	}
	return s.donors.Update(ctx, id, d)
}

func (s *donorService) Delete(ctx context.Context, id string) error {
	if err := s.donors.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Donor deleted", zap.String("donor_id", id))
	return nil
}

func (s *donorService) SetAvailability(ctx context.Context, id, status string) error {
	a := domain.Availability(strings.TrimSpace(status))
	if a != domain.AvailabilityAvailable && a != domain.AvailabilityUnavailable {
		return invalid("availabilityStatus", "oneof")
	}
	return s.donors.SetAvailability(ctx, id, a)
}

func (s *donorService) Summary(ctx context.Context) (*domain.DonorSummary, error) {
	counts, err := s.donors.CountByBloodType(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Summarize(counts), nil
}

// prepare trims and canonicalizes d in place, then validates it.
func (s *donorService) prepare(d *domain.Donor) error {
	if d == nil {
		return invalid("body", "required")
	}
	d.FullName = strings.TrimSpace(d.FullName)
	d.ContactNumber = strings.TrimSpace(d.ContactNumber)
	d.Municipality = strings.TrimSpace(d.Municipality)
	if bt, ok := domain.ParseBloodType(string(d.BloodType)); ok {
		d.BloodType = bt
	}
	d.Availability = domain.ParseAvailability(string(d.Availability))
	return validateStruct(s.validate, d)
}

func clampPage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
