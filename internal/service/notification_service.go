package service

import (
	"context"
	"encoding/json"
	"strings"

	"dugtong/internal/domain"
	"dugtong/internal/repository"

	"go.uber.org/zap"
)

// NotificationService in-app notifications. Every write path normalizes the type.
type NotificationService interface {
	List(ctx context.Context, f repository.NotificationFilter) (*repository.Page[*domain.Notification], error)
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	// Notify sends one notification per user whose preferences allow typ.
	// It returns how many were stored.
	Notify(ctx context.Context, userIDs []string, typ domain.NotificationType, title, message string, metadata any) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
	preferences   repository.PreferencesRepository
	logger        *zap.Logger
}

func NewNotificationService(notifications repository.NotificationRepository, preferences repository.PreferencesRepository, logger *zap.Logger) NotificationService {
	return &notificationService{notifications: notifications, preferences: preferences, logger: logger}
}

func (s *notificationService) List(ctx context.Context, f repository.NotificationFilter) (*repository.Page[*domain.Notification], error) {
	if f.Type != "" {
		f.Type = string(domain.NormalizeNotificationType(f.Type))
	}
	f.Page, f.PageSize = clampPage(f.Page, f.PageSize)
	return s.notifications.List(ctx, f)
}

func (s *notificationService) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n == nil || strings.TrimSpace(n.UserID) == "" {
		return nil, invalid("userId", "required")
	}
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return nil, invalid("title", "required")
	}
	n.Type = domain.NormalizeNotificationType(string(n.Type))
	return s.notifications.Create(ctx, n)
}

func (s *notificationService) Notify(ctx context.Context, userIDs []string, typ domain.NotificationType, title, message string, metadata any) (int, error) {
	var meta json.RawMessage
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return 0, err
		}
		meta = b
	}
	typ = domain.NormalizeNotificationType(string(typ))

	seen := make(map[string]bool, len(userIDs))
	batch := make([]*domain.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		prefs, err := s.preferences.Get(ctx, uid)
		if err != nil {
			s.logger.Warn("Failed to load preferences, notifying anyway", zap.String("user_id", uid), zap.Error(err))
		} else if !prefs.Allows(typ) {
			continue
		}
		batch = append(batch, &domain.Notification{
			UserID:   uid,
			Title:    title,
			Message:  message,
			Type:     typ,
			Metadata: meta,
		})
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := s.notifications.CreateMany(ctx, batch); err != nil {
		return 0, err
	}
	s.logger.Info("Notifications sent", zap.String("type", string(typ)), zap.Int("count", len(batch)))
	return len(batch), nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.notifications.MarkRead(ctx, userID, id)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.UnreadCount(ctx, userID)
}
