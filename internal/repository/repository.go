// Package repository is the data-access layer. Each entity has one interface with two
// backends: SQL (database/sql or hosted SQL over HTTP) and REST (the dugtong API).
package repository

import (
	"context"
	"time"

	"dugtong/internal/domain"
)

// Page one page of a list query. Total counts every row matching the filter.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// DonorFilter empty fields are not applied. Page is 0-based.
type DonorFilter struct {
	BloodType    string
	Municipality string
	Availability string
	Search       string // full_name, contact_number, municipality
	Page         int
	PageSize     int
}

// DonorRepository 献血者数据访问
type DonorRepository interface {
	List(ctx context.Context, f DonorFilter) (*Page[*domain.Donor], error)
	Get(ctx context.Context, id string) (*domain.Donor, error)
	Create(ctx context.Context, d *domain.Donor) (*domain.Donor, error)
	Update(ctx context.Context, id string, d *domain.Donor) (*domain.Donor, error)
	// SoftDelete sets is_deleted; the row is kept.
	SoftDelete(ctx context.Context, id string) error
	SetAvailability(ctx context.Context, id string, a domain.Availability) error
	// CountByBloodType returns one entry per blood type, in domain.BloodTypes order.
	CountByBloodType(ctx context.Context) ([]domain.BloodTypeCount, error)
}

type RegistrationFilter struct {
	Status   string
	Search   string
	Page     int
	PageSize int
}

type RegistrationRepository interface {
	Create(ctx context.Context, r *domain.DonorRegistration) (*domain.DonorRegistration, error)
	Get(ctx context.Context, id string) (*domain.DonorRegistration, error)
	List(ctx context.Context, f RegistrationFilter) (*Page[*domain.DonorRegistration], error)
	// Approve creates the donor's user, donor row, profile and preferences in one transaction.
	Approve(ctx context.Context, id, reviewerID, passwordHash string) (*domain.ApprovalResult, error)
	Reject(ctx context.Context, id, reviewerID, reason string) (*domain.DonorRegistration, error)
}

type UserFilter struct {
	Role     string
	Search   string
	Page     int
	PageSize int
}

type UserRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByContact(ctx context.Context, contact string) (*domain.User, error)
	List(ctx context.Context, f UserFilter) (*Page[*domain.User], error)
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	// Update writes profile fields (name, contact, email, avatar).
	Update(ctx context.Context, u *domain.User) (*domain.User, error)
}

type PreferencesRepository interface {
	// Get stores and returns defaults on first read.
	Get(ctx context.Context, userID string) (*domain.UserPreferences, error)
	Update(ctx context.Context, p *domain.UserPreferences) (*domain.UserPreferences, error)
}

type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Type       string
	Page       int
	PageSize   int
}

type NotificationRepository interface {
	List(ctx context.Context, f NotificationFilter) (*Page[*domain.Notification], error)
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	CreateMany(ctx context.Context, ns []*domain.Notification) error
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type AlertFilter struct {
	BloodType    string // alerts targeting this type or untargeted
	Municipality string // alerts targeting this town or untargeted
	Urgency      string
	Page         int
	PageSize     int
}

type AlertRepository interface {
	// ListActive returns live alerts (active, not expired at now).
	ListActive(ctx context.Context, f AlertFilter, now time.Time) (*Page[*domain.Alert], error)
	Get(ctx context.Context, id string) (*domain.Alert, error)
	Create(ctx context.Context, a *domain.Alert) (*domain.Alert, error)
	Deactivate(ctx context.Context, id string) error
}

// ChatRepository remote store for chatbot sessions and messages. Upserts are idempotent by id.
type ChatRepository interface {
	UpsertSession(ctx context.Context, s *domain.ChatbotSession) error
	UpsertMessage(ctx context.Context, m *domain.ChatbotMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatbotMessage, error)
	// CurrentSession most recently active session with status active, or ErrNotFound.
	CurrentSession(ctx context.Context, userID string) (*domain.ChatbotSession, error)
}

// Set one backend's implementation of every repository.
type Set struct {
	Donors        DonorRepository
	Registrations RegistrationRepository
	Users         UserRepository
	Preferences   PreferencesRepository
	Notifications NotificationRepository
	Alerts        AlertRepository
	Chat          ChatRepository
}
