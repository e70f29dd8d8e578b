package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// NotificationType is the single notification category enum.
type NotificationType string

const (
	NotificationEmergency NotificationType = "Emergency"
	NotificationUpdate    NotificationType = "Update"
	NotificationSystem    NotificationType = "System"
	NotificationReminder  NotificationType = "Reminder"
)

// NormalizeNotificationType maps any accepted spelling, including the older
// info/success/warning/error/blood_request values, onto NotificationType.
// Unknown values become System.
func NormalizeNotificationType(s string) NotificationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emergency", "blood_request":
		return NotificationEmergency
	case "update", "info", "success":
		return NotificationUpdate
	case "reminder", "warning":
		return NotificationReminder
	default:
		return NotificationSystem
	}
}

// Notification in-app notification (notifications table).
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
	Metadata  json.RawMessage  `json:"metadata,omitempty"`
}
