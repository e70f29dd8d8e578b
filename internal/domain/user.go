package domain

import "time"

// Role account role; drives navigation and route authorization.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDonor         Role = "donor"
	RoleHospitalStaff Role = "hospital_staff"
	RoleHealthOfficer Role = "health_officer"
)

// Roles every known role.
var Roles = []Role{RoleAdmin, RoleDonor, RoleHospitalStaff, RoleHealthOfficer}

// ParseRole returns false for unknown roles.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// User account (users table).
type User struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	FullName      string    `json:"fullName"`
	ContactNumber string    `json:"contactNumber"`
	Email         *string   `json:"email,omitempty"`
	AvatarURL     *string   `json:"avatarUrl,omitempty"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
