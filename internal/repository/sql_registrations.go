package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/query"
	"dugtong/internal/sqlstore"

	"github.com/google/uuid"
)

// SQLRegistrationRepository donor_registrations table plus the approval fan-out.
type SQLRegistrationRepository struct {
	exec sqlstore.Executor
	now  func() time.Time
}

func NewSQLRegistrationRepository(exec sqlstore.Executor) *SQLRegistrationRepository {
	return &SQLRegistrationRepository{exec: exec, now: time.Now}
}

// 确保实现了接口
var _ RegistrationRepository = (*SQLRegistrationRepository)(nil)

func (r *SQLRegistrationRepository) Create(ctx context.Context, reg *domain.DonorRegistration) (*domain.DonorRegistration, error) {
	out := *reg
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.Status = domain.RegistrationPending
	out.Availability = domain.ParseAvailability(string(reg.Availability))
	out.ReviewedBy, out.ReviewReason, out.ReviewedAt = nil, nil, nil
	out.CreatedAt = r.now().UTC()

	_, err := r.exec.Exec(ctx,
		`INSERT INTO donor_registrations (id, full_name, age, sex, blood_type, contact_number, email, municipality,
			availability_status, last_donation_date, notes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.FullName, out.Age, out.Sex, out.BloodType, out.ContactNumber, out.Email, out.Municipality,
		out.Availability, out.LastDonationDate, out.Notes, out.Status, out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}
	return &out, nil
}

func (r *SQLRegistrationRepository) Get(ctx context.Context, id string) (*domain.DonorRegistration, error) {
	return getRegistration(ctx, r.exec, id)
}

func getRegistration(ctx context.Context, exec sqlstore.Executor, id string) (*domain.DonorRegistration, error) {
	return queryOne(ctx, exec, MapRegistration,
		`SELECT `+registrationColumns+` FROM donor_registrations WHERE id = ?`, id)
}

func (r *SQLRegistrationRepository) List(ctx context.Context, f RegistrationFilter) (*Page[*domain.DonorRegistration], error) {
	q := query.New("donor_registrations", registrationColumns).
		Eq("status", f.Status).
		Search(f.Search, "full_name", "contact_number", "municipality").
		Page(f.Page, f.PageSize).
		Build()
	page, err := queryPage(ctx, r.exec, q, MapRegistration)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return page, nil
}

// Approve 审批通过：users + donors + donor_profiles + user_preferences 同一事务
func (r *SQLRegistrationRepository) Approve(ctx context.Context, id, reviewerID, passwordHash string) (*domain.ApprovalResult, error) {
	now := r.now().UTC()
	result := &domain.ApprovalResult{}

	err := r.exec.WithTx(ctx, func(tx sqlstore.Executor) error {
		reg, err := getRegistration(ctx, tx, id)
		if err != nil {
			return err
		}
		if reg.Status != domain.RegistrationPending {
			return ErrRegistrationReviewed
		}

		user := &domain.User{
			ID:            uuid.NewString(),
			Role:          domain.RoleDonor,
			FullName:      reg.FullName,
			ContactNumber: reg.ContactNumber,
			Email:         reg.Email,
			PasswordHash:  passwordHash,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}

		donor := reg.Donor(user.ID)
		donor.CreatedAt = now
		if _, err := tx.Exec(ctx, insertDonorSQL, donorInsertArgs(donor)...); err != nil {
			return fmt.Errorf("insert donor: %w", err)
		}

		profile := &domain.DonorProfile{
			UserID:         user.ID,
			RegistrationID: reg.ID,
			BloodType:      reg.BloodType,
			Municipality:   reg.Municipality,
			CreatedAt:      now,
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO donor_profiles (user_id, registration_id, blood_type, municipality, created_at) VALUES (?, ?, ?, ?, ?)`,
			profile.UserID, profile.RegistrationID, profile.BloodType, profile.Municipality, profile.CreatedAt); err != nil {
			return fmt.Errorf("insert donor profile: %w", err)
		}

		if err := insertDefaultPreferences(ctx, tx, user.ID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE donor_registrations SET status = ?, reviewed_by = ?, reviewed_at = ? WHERE id = ? AND status = ?`,
			domain.RegistrationApproved, nullIfEmpty(reviewerID), now, reg.ID, domain.RegistrationPending); err != nil {
			return fmt.Errorf("mark registration approved: %w", err)
		}

		reg.Status = domain.RegistrationApproved
		reg.ReviewedBy = nullIfEmpty(reviewerID)
		reg.ReviewedAt = &now
		result.Registration = reg
		result.User = user
		result.Donor = donor
		result.Profile = profile
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve registration %s: %w", id, err)
	}

	// the donor id is assigned by the store
	donor, err := queryOne(ctx, r.exec, MapDonor,
		`SELECT `+donorColumns+` FROM donors WHERE user_id = ? AND is_deleted = 0 ORDER BY id DESC LIMIT 1`, result.User.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load approved donor: %w", err)
	}
	if donor != nil {
		result.Donor = donor
	}
	return result, nil
}

func (r *SQLRegistrationRepository) Reject(ctx context.Context, id, reviewerID, reason string) (*domain.DonorRegistration, error) {
	reg, err := getRegistration(ctx, r.exec, id)
	if err != nil {
		return nil, fmt.Errorf("reject registration %s: %w", id, err)
	}
	if reg.Status != domain.RegistrationPending {
		return nil, ErrRegistrationReviewed
	}

	now := r.now().UTC()
	res, err := r.exec.Exec(ctx,
		`UPDATE donor_registrations SET status = ?, reviewed_by = ?, review_reason = ?, reviewed_at = ?
		 WHERE id = ? AND status = ?`,
		domain.RegistrationRejected, nullIfEmpty(reviewerID), nullIfEmpty(reason), now, id, domain.RegistrationPending)
	if err != nil {
		return nil, fmt.Errorf("reject registration %s: %w", id, err)
	}
	if res.RowsAffected == 0 {
		return nil, ErrRegistrationReviewed
	}

	reg.Status = domain.RegistrationRejected
	reg.ReviewedBy = nullIfEmpty(reviewerID)
	reg.ReviewReason = nullIfEmpty(reason)
	reg.ReviewedAt = &now
	return reg, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
