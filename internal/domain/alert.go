package domain

import "time"

// Urgency alert priority.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ParseUrgency falls back to medium.
func ParseUrgency(s string) Urgency {
	switch Urgency(s) {
	case UrgencyLow, UrgencyHigh, UrgencyCritical:
		return Urgency(s)
	}
	return UrgencyMedium
}

// Alert broadcast announcement (alerts table).
type Alert struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required,max=160"`
	Message      string     `json:"message" validate:"required"`
	BloodType    *BloodType `json:"bloodType,omitempty"`
	Municipality *string    `json:"municipality,omitempty"`
	Urgency      Urgency    `json:"urgency"`
	CreatedBy    string     `json:"createdBy"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Live reports whether the alert is active and not expired at now.
func (a *Alert) Live(now time.Time) bool {
	return a.IsActive && (a.ExpiresAt == nil || a.ExpiresAt.After(now))
}

// Targets reports whether a donor falls inside the alert's blood type and municipality targeting.
func (a *Alert) Targets(d *Donor) bool {
	if a.BloodType != nil && *a.BloodType != d.BloodType {
		return false
	}
	if a.Municipality != nil && *a.Municipality != d.Municipality {
		return false
	}
	return true
}
