package domain

import "time"

// RegistrationStatus review state of a donor application.
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

// DonorRegistration pending application submitted through the public form.
type DonorRegistration struct {
	ID               string             `json:"id"`
	FullName         string             `json:"fullName" validate:"required,max=120"`
	Age              int                `json:"age" validate:"gte=16,lte=70"`
	Sex              string             `json:"sex" validate:"required,oneof=Male Female"`
	BloodType        BloodType          `json:"bloodType" validate:"required,bloodtype"`
	ContactNumber    string             `json:"contactNumber" validate:"required,max=20"`
	Email            *string            `json:"email,omitempty" validate:"omitempty,email"`
	Municipality     string             `json:"municipality" validate:"required,municipality"`
	Availability     Availability       `json:"availabilityStatus"`
	LastDonationDate *time.Time         `json:"lastDonationDate,omitempty"`
	Notes            *string            `json:"notes,omitempty"`
	Status           RegistrationStatus `json:"status"`
	ReviewedBy       *string            `json:"reviewedBy,omitempty"`
	ReviewReason     *string            `json:"reviewReason,omitempty"`
	ReviewedAt       *time.Time         `json:"reviewedAt,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// Donor projects the application onto a donor row owned by userID.
func (r *DonorRegistration) Donor(userID string) *Donor {
	uid := userID
	return &Donor{
		UserID:           &uid,
		FullName:         r.FullName,
		Age:              r.Age,
		Sex:              r.Sex,
		BloodType:        r.BloodType,
		ContactNumber:    r.ContactNumber,
		Municipality:     r.Municipality,
		Availability:     ParseAvailability(string(r.Availability)),
		LastDonationDate: r.LastDonationDate,
		Notes:            r.Notes,
	}
}

// ApprovalResult rows created by approving a registration.
type ApprovalResult struct {
	Registration *DonorRegistration `json:"registration"`
	User         *User              `json:"user"`
	Donor        *Donor             `json:"donor"`
	Profile      *DonorProfile      `json:"profile"`

	// TemporaryPassword set only when the API server issued the initial password.
	TemporaryPassword string `json:"temporaryPassword,omitempty"`
}
