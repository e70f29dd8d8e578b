package service

import (
	"context"
	"errors"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/repository"
)

// ChatHistoryService server-side store that offline clients sync into.
// Every call is scoped to the calling user.
type ChatHistoryService interface {
	UpsertSession(ctx context.Context, userID string, s *domain.ChatbotSession) error
	UpsertMessage(ctx context.Context, userID string, m *domain.ChatbotMessage) error
	Messages(ctx context.Context, userID, sessionID string) ([]*domain.ChatbotMessage, error)
	// CurrentSession returns nil, nil when the user has no active session.
	CurrentSession(ctx context.Context, userID string) (*domain.ChatbotSession, error)
}

type chatHistoryService struct {
	chat repository.ChatRepository
	now  func() time.Time
}

func NewChatHistoryService(chat repository.ChatRepository) ChatHistoryService {
	return &chatHistoryService{chat: chat, now: time.Now}
}

func (s *chatHistoryService) UpsertSession(ctx context.Context, userID string, sess *domain.ChatbotSession) error {
	if sess == nil || sess.ID == "" {
		return invalid("id", "required")
	}
	sess.UserID = userID
	switch sess.Status {
	case domain.SessionActive, domain.SessionCompleted, domain.SessionArchived:
	default:
		sess.Status = domain.SessionActive
	}
	now := s.now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = sess.CreatedAt
	}
	return s.chat.UpsertSession(ctx, sess)
}

func (s *chatHistoryService) UpsertMessage(ctx context.Context, userID string, m *domain.ChatbotMessage) error {
	if m == nil || m.ID == "" {
		return invalid("id", "required")
	}
	if m.SessionID == "" {
		return invalid("sessionId", "required")
	}
	switch m.Role {
	case domain.ChatRoleUser, domain.ChatRoleBot, domain.ChatRoleSystem:
	default:
		return invalid("role", "oneof")
	}
	m.UserID = userID
	m.IsSynced = true
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	return s.chat.UpsertMessage(ctx, m)
}

func (s *chatHistoryService) Messages(ctx context.Context, userID, sessionID string) ([]*domain.ChatbotMessage, error) {
	if sessionID == "" {
		return nil, invalid("session_id", "required")
	}
	all, err := s.chat.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ChatbotMessage, 0, len(all))
	for _, m := range all {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *chatHistoryService) CurrentSession(ctx context.Context, userID string) (*domain.ChatbotSession, error) {
	sess, err := s.chat.CurrentSession(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return sess, err
}
