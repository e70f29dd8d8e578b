package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/rowmap"
	"dugtong/internal/sqlstore"
)

// Column lists for reads. Row keys below must match these names.
const (
	donorColumns        = "id, user_id, full_name, age, sex, blood_type, contact_number, municipality, availability_status, last_donation_date, notes, is_deleted, created_at"
	registrationColumns = "id, full_name, age, sex, blood_type, contact_number, email, municipality, availability_status, last_donation_date, notes, status, reviewed_by, review_reason, reviewed_at, created_at"
	userColumns         = "id, role, full_name, contact_number, email, avatar_url, password_hash, created_at, updated_at"
	preferencesColumns  = "user_id, theme_mode, emergency_notifications, update_notifications, reminder_notifications, language"
	notificationColumns = "id, user_id, title, message, type, is_read, metadata, created_at"
	alertColumns        = "id, title, message, blood_type, municipality, urgency, created_by, expires_at, is_active, created_at"
	sessionColumns      = "id, user_id, status, last_activity_at, created_at"
	messageColumns      = "id, session_id, user_id, role, content, created_at"
)

// MapDonor maps a donors row.
func MapDonor(r rowmap.Record) *domain.Donor {
	return &domain.Donor{
		ID:               asString(r["id"]),
		UserID:           asOptString(r["user_id"]),
		FullName:         asString(r["full_name"]),
		Age:              asInt(r["age"]),
		Sex:              asString(r["sex"]),
		BloodType:        domain.BloodType(asString(r["blood_type"])),
		ContactNumber:    asString(r["contact_number"]),
		Municipality:     asString(r["municipality"]),
		Availability:     domain.ParseAvailability(asString(r["availability_status"])),
		LastDonationDate: asOptTime(r["last_donation_date"]),
		Notes:            asOptString(r["notes"]),
		IsDeleted:        asBool(r["is_deleted"]),
		CreatedAt:        asTime(r["created_at"]),
	}
}

// MapRegistration maps a donor_registrations row. Unknown status reads as pending.
func MapRegistration(r rowmap.Record) *domain.DonorRegistration {
	status := domain.RegistrationStatus(asString(r["status"]))
	switch status {
	case domain.RegistrationApproved, domain.RegistrationRejected:
	default:
		status = domain.RegistrationPending
	}
	return &domain.DonorRegistration{
		ID:               asString(r["id"]),
		FullName:         asString(r["full_name"]),
		Age:              asInt(r["age"]),
		Sex:              asString(r["sex"]),
		BloodType:        domain.BloodType(asString(r["blood_type"])),
		ContactNumber:    asString(r["contact_number"]),
		Email:            asOptString(r["email"]),
		Municipality:     asString(r["municipality"]),
		Availability:     domain.ParseAvailability(asString(r["availability_status"])),
		LastDonationDate: asOptTime(r["last_donation_date"]),
		Notes:            asOptString(r["notes"]),
		Status:           status,
		ReviewedBy:       asOptString(r["reviewed_by"]),
		ReviewReason:     asOptString(r["review_reason"]),
		ReviewedAt:       asOptTime(r["reviewed_at"]),
		CreatedAt:        asTime(r["created_at"]),
	}
}

func MapUser(r rowmap.Record) *domain.User {
	return &domain.User{
		ID:            asString(r["id"]),
		Role:          domain.Role(asString(r["role"])),
		FullName:      asString(r["full_name"]),
		ContactNumber: asString(r["contact_number"]),
		Email:         asOptString(r["email"]),
		AvatarURL:     asOptString(r["avatar_url"]),
		PasswordHash:  asString(r["password_hash"]),
		CreatedAt:     asTime(r["created_at"]),
		UpdatedAt:     asTime(r["updated_at"]),
	}
}

// MapPreferences toggles default to on and language to "en" when the column is null.
func MapPreferences(r rowmap.Record) *domain.UserPreferences {
	p := domain.DefaultPreferences(asString(r["user_id"]))
	p.ThemeMode = domain.ParseThemeMode(asString(r["theme_mode"]))
	if v, ok := r["emergency_notifications"]; ok && v != nil {
		p.EmergencyNotifications = asBool(v)
	}
	if v, ok := r["update_notifications"]; ok && v != nil {
		p.UpdateNotifications = asBool(v)
	}
	if v, ok := r["reminder_notifications"]; ok && v != nil {
		p.ReminderNotifications = asBool(v)
	}
	if lang := asString(r["language"]); lang != "" {
		p.Language = lang
	}
	return p
}

func MapNotification(r rowmap.Record) *domain.Notification {
	return &domain.Notification{
		ID:        asString(r["id"]),
		UserID:    asString(r["user_id"]),
		Title:     asString(r["title"]),
		Message:   asString(r["message"]),
		Type:      domain.NormalizeNotificationType(asString(r["type"])),
		IsRead:    asBool(r["is_read"]),
		CreatedAt: asTime(r["created_at"]),
		Metadata:  asJSON(r["metadata"]),
	}
}

func MapAlert(r rowmap.Record) *domain.Alert {
	a := &domain.Alert{
		ID:           asString(r["id"]),
		Title:        asString(r["title"]),
		Message:      asString(r["message"]),
		Municipality: asOptString(r["municipality"]),
		Urgency:      domain.ParseUrgency(asString(r["urgency"])),
		CreatedBy:    asString(r["created_by"]),
		ExpiresAt:    asOptTime(r["expires_at"]),
		IsActive:     asBool(r["is_active"]),
		CreatedAt:    asTime(r["created_at"]),
	}
	if bt, ok := domain.ParseBloodType(asString(r["blood_type"])); ok {
		a.BloodType = &bt
	}
	return a
}

func MapChatSession(r rowmap.Record) *domain.ChatbotSession {
	status := domain.SessionStatus(asString(r["status"]))
	if status == "" {
		status = domain.SessionActive
	}
	return &domain.ChatbotSession{
		ID:             asString(r["id"]),
		UserID:         asString(r["user_id"]),
		Status:         status,
		LastActivityAt: asTime(r["last_activity_at"]),
		CreatedAt:      asTime(r["created_at"]),
	}
}

// MapChatMessage is_synced is only present in the local cache; remote rows are synced by definition.
func MapChatMessage(r rowmap.Record) *domain.ChatbotMessage {
	synced := true
	if v, ok := r["is_synced"]; ok {
		synced = asBool(v)
	}
	return &domain.ChatbotMessage{
		ID:        asString(r["id"]),
		SessionID: asString(r["session_id"]),
		UserID:    asString(r["user_id"]),
		Role:      domain.ChatRole(asString(r["role"])),
		Content:   asString(r["content"]),
		IsSynced:  synced,
		CreatedAt: asTime(r["created_at"]),
	}
}

func mapAll[T any](records []rowmap.Record, fn func(rowmap.Record) T) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		out = append(out, fn(r))
	}
	return out
}

// --- scalar coercion ---

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return sqlstore.FormatTime(x)
	}
	return fmt.Sprint(v)
}

func asOptString(v any) *string {
	s := asString(v)
	if s == "" {
		return nil
	}
	return &s
}

func asInt(v any) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int:
		return x
	case int32:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
		if f, err := x.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return i
		}
	case []byte:
		if i, err := strconv.Atoi(strings.TrimSpace(string(x))); err == nil {
			return i
		}
	}
	return 0
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	case json.Number:
		return x.String() != "0"
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "t", "yes":
			return true
		}
	case []byte:
		return asBool(string(x))
	}
	return false
}

var timeLayouts = []string{
	sqlstore.TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case []byte:
		return asTime(string(x))
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func asOptTime(v any) *time.Time {
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

// asJSON keeps valid JSON text or objects; anything else reads as absent.
func asJSON(v any) json.RawMessage {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" || !json.Valid([]byte(x)) {
			return nil
		}
		return json.RawMessage(x)
	case []byte:
		return asJSON(string(x))
	case json.RawMessage:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// metadataArg renders metadata for a TEXT/JSONB column.
func metadataArg(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}
