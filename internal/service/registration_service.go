package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"dugtong/internal/domain"
	"dugtong/internal/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RegistrationService donor applications: public submit, admin review.
type RegistrationService interface {
	Submit(ctx context.Context, r *domain.DonorRegistration) (*domain.DonorRegistration, error)
	Get(ctx context.Context, id string) (*domain.DonorRegistration, error)
	List(ctx context.Context, f repository.RegistrationFilter) (*repository.Page[*domain.DonorRegistration], error)
	Approve(ctx context.Context, id, reviewerID string) (*ApprovalResponse, error)
	Reject(ctx context.Context, id, reviewerID, reason string) (*domain.DonorRegistration, error)
}

// ApprovalResponse created rows plus the one-time password handed to the donor.
type ApprovalResponse struct {
	*domain.ApprovalResult
	TemporaryPassword string `json:"temporaryPassword"`
}

type registrationService struct {
	registrations repository.RegistrationRepository
	notifications NotificationService
	validate      *validator.Validate
	logger        *zap.Logger
	genPassword   func() (string, error)
}

func NewRegistrationService(registrations repository.RegistrationRepository, notifications NotificationService, logger *zap.Logger) RegistrationService {
	return &registrationService{
		registrations: registrations,
		notifications: notifications,
		validate:      newValidator(),
		logger:        logger,
		genPassword:   temporaryPassword,
	}
}

func (s *registrationService) Submit(ctx context.Context, r *domain.DonorRegistration) (*domain.DonorRegistration, error) {
	if r == nil {
		return nil, invalid("body", "required")
	}
	r.FullName = strings.TrimSpace(r.FullName)
	r.ContactNumber = strings.TrimSpace(r.ContactNumber)
	r.Municipality = strings.TrimSpace(r.Municipality)
	if bt, ok := domain.ParseBloodType(string(r.BloodType)); ok {
		r.BloodType = bt
	}
	if r.Email != nil {
		e := strings.TrimSpace(*r.Email)
		r.Email = nullIfBlank(e)
	}
	r.Availability = domain.ParseAvailability(string(r.Availability))
	// reviewer fields are never client-controlled
	r.Status = domain.RegistrationPending
	r.ReviewedBy, r.ReviewReason, r.ReviewedAt = nil, nil, nil

	if err := validateStruct(s.validate, r); err != nil {
		return nil, err
	}
	out, err := s.registrations.Create(ctx, r)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Registration submitted", zap.String("registration_id", out.ID), zap.String("municipality", out.Municipality))
	return out, nil
}

func (s *registrationService) Get(ctx context.Context, id string) (*domain.DonorRegistration, error) {
	return s.registrations.Get(ctx, id)
}

func (s *registrationService) List(ctx context.Context, f repository.RegistrationFilter) (*repository.Page[*domain.DonorRegistration], error) {
	switch domain.RegistrationStatus(f.Status) {
	case "", domain.RegistrationPending, domain.RegistrationApproved, domain.RegistrationRejected:
	default:
		return nil, invalid("status", "oneof")
	}
	f.Page, f.PageSize = clampPage(f.Page, f.PageSize)
	return s.registrations.List(ctx, f)
}

func (s *registrationService) Approve(ctx context.Context, id, reviewerID string) (*ApprovalResponse, error) {
	password, err := s.genPassword()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	res, err := s.registrations.Approve(ctx, id, reviewerID, string(hash))
	if err != nil {
		s.logger.Warn("Registration approval failed", zap.String("registration_id", id), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Registration approved",
		zap.String("registration_id", id),
		zap.String("reviewer_id", reviewerID),
		zap.String("user_id", res.User.ID),
	)

	// the API server already notified the donor and hashed its own password
	if res.TemporaryPassword != "" {
		return &ApprovalResponse{ApprovalResult: res, TemporaryPassword: res.TemporaryPassword}, nil
	}

	if s.notifications != nil {
		_, err := s.notifications.Notify(ctx, []string{res.User.ID}, domain.NotificationUpdate,
			"Registration approved",
			"Welcome to the donor registry. Please change your temporary password after signing in.",
			map[string]string{"registrationId": id},
		)
		if err != nil {
			s.logger.Warn("Failed to notify approved donor", zap.String("user_id", res.User.ID), zap.Error(err))
		}
	}
	return &ApprovalResponse{ApprovalResult: res, TemporaryPassword: password}, nil
}

func (s *registrationService) Reject(ctx context.Context, id, reviewerID, reason string) (*domain.DonorRegistration, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "required")
	}
	out, err := s.registrations.Reject(ctx, id, reviewerID, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Registration rejected", zap.String("registration_id", id), zap.String("reviewer_id", reviewerID))
	return out, nil
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

func temporaryPassword() (string, error) {
	b := make([]byte, 10)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = passwordAlphabet[n.Int64()]
	}
	return string(b), nil
}

func nullIfBlank(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
