package domain

import (
	"strings"
	"time"
)

// BloodType ABO/Rh group.
type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

// BloodTypes in display order.
var BloodTypes = []BloodType{
	BloodTypeAPos, BloodTypeANeg, BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg, BloodTypeOPos, BloodTypeONeg,
}

// ParseBloodType accepts the canonical spelling, case-insensitively.
func ParseBloodType(s string) (BloodType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, bt := range BloodTypes {
		if string(bt) == s {
			return bt, true
		}
	}
	return "", false
}

// Municipalities served by the registry.
var Municipalities = []string{
	"Barcelona",
	"Bulan",
	"Bulusan",
	"Casiguran",
	"Castilla",
	"Donsol",
	"Gubat",
	"Irosin",
	"Juban",
	"Magallanes",
	"Matnog",
	"Pilar",
	"Prieto Diaz",
	"Santa Magdalena",
	"Sorsogon City",
}

// IsValidMunicipality reports whether name is one of Municipalities (exact match).
func IsValidMunicipality(name string) bool {
	for _, m := range Municipalities {
		if m == name {
			return true
		}
	}
	return false
}

// Availability donor eligibility state.
type Availability string

const (
	AvailabilityAvailable   Availability = "Available"
	AvailabilityUnavailable Availability = "Temporarily Unavailable"
)

// ParseAvailability falls back to Available for anything unrecognized.
func ParseAvailability(s string) Availability {
	if Availability(s) == AvailabilityUnavailable {
		return AvailabilityUnavailable
	}
	return AvailabilityAvailable
}

// Donor registered blood donor (donors table).
type Donor struct {
	ID               string       `json:"id"`
	UserID           *string      `json:"userId,omitempty"`
	FullName         string       `json:"fullName" validate:"required,max=120"`
	Age              int          `json:"age" validate:"gte=16,lte=70"`
	Sex              string       `json:"sex" validate:"required,oneof=Male Female"`
	BloodType        BloodType    `json:"bloodType" validate:"required,bloodtype"`
	ContactNumber    string       `json:"contactNumber" validate:"required,max=20"`
	Municipality     string       `json:"municipality" validate:"required,municipality"`
	Availability     Availability `json:"availabilityStatus"`
	LastDonationDate *time.Time   `json:"lastDonationDate,omitempty"`
	Notes            *string      `json:"notes,omitempty"`
	IsDeleted        bool         `json:"-"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// DonorProfile links an approved registration to its user account.
type DonorProfile struct {
	UserID         string    `json:"userId"`
	RegistrationID string    `json:"registrationId"`
	BloodType      BloodType `json:"bloodType"`
	Municipality   string    `json:"municipality"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BloodTypeCount dashboard aggregate.
type BloodTypeCount struct {
	BloodType BloodType `json:"bloodType"`
	Total     int       `json:"total"`
	Available int       `json:"available"`
}

// DonorSummary dashboard totals across non-deleted donors.
type DonorSummary struct {
	TotalDonors int              `json:"totalDonors"`
	Available   int              `json:"available"`
	ByBloodType []BloodTypeCount `json:"byBloodType"`
}

// Summarize totals counts, which must hold one entry per blood type.
func Summarize(counts []BloodTypeCount) *DonorSummary {
	s := &DonorSummary{ByBloodType: counts}
	for _, c := range counts {
		s.TotalDonors += c.Total
		s.Available += c.Available
	}
	return s
}
