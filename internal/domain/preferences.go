package domain

// ThemeMode UI theme preference.
type ThemeMode string

const (
	ThemeLight  ThemeMode = "light"
	ThemeDark   ThemeMode = "dark"
	ThemeSystem ThemeMode = "system"
)

// ParseThemeMode falls back to system.
func ParseThemeMode(s string) ThemeMode {
	switch ThemeMode(s) {
	case ThemeLight, ThemeDark:
		return ThemeMode(s)
	}
	return ThemeSystem
}

// UserPreferences 1:1 with User (user_preferences table).
type UserPreferences struct {
	UserID                 string    `json:"userId"`
	ThemeMode              ThemeMode `json:"themeMode"`
	EmergencyNotifications bool      `json:"emergencyNotifications"`
	UpdateNotifications    bool      `json:"updateNotifications"`
	ReminderNotifications  bool      `json:"reminderNotifications"`
	Language               string    `json:"language"`
}

// DefaultPreferences values stored when a user's preferences are first read.
func DefaultPreferences(userID string) *UserPreferences {
	return &UserPreferences{
		UserID:                 userID,
		ThemeMode:              ThemeSystem,
		EmergencyNotifications: true,
		UpdateNotifications:    true,
		ReminderNotifications:  true,
		Language:               "en",
	}
}

// Allows reports whether a notification of type t should reach this user.
func (p *UserPreferences) Allows(t NotificationType) bool {
	switch t {
	case NotificationEmergency:
		return p.EmergencyNotifications
	case NotificationUpdate:
		return p.UpdateNotifications
	case NotificationReminder:
		return p.ReminderNotifications
	}
	return true
}
