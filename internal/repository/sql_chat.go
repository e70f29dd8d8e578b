package repository

import (
	"context"
	"fmt"

	"dugtong/internal/domain"
	"dugtong/internal/rowmap"
	"dugtong/internal/sqlstore"
)

// SQLChatRepository chatbot_sessions / chatbot_messages on the shared store.
type SQLChatRepository struct {
	exec sqlstore.Executor
}

func NewSQLChatRepository(exec sqlstore.Executor) *SQLChatRepository {
	return &SQLChatRepository{exec: exec}
}

// 确保实现了接口
var _ ChatRepository = (*SQLChatRepository)(nil)

func (r *SQLChatRepository) UpsertSession(ctx context.Context, s *domain.ChatbotSession) error {
	_, err := r.exec.Exec(ctx,
		`INSERT INTO chatbot_sessions (id, user_id, status, last_activity_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, last_activity_at = excluded.last_activity_at`,
		s.ID, s.UserID, s.Status, s.LastActivityAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert chat session %s: %w", s.ID, err)
	}
	return nil
}

func (r *SQLChatRepository) UpsertMessage(ctx context.Context, m *domain.ChatbotMessage) error {
	_, err := r.exec.Exec(ctx,
		`INSERT INTO chatbot_messages (id, session_id, user_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET content = excluded.content`,
		m.ID, m.SessionID, m.UserID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert chat message %s: %w", m.ID, err)
	}
	return nil
}

func (r *SQLChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatbotMessage, error) {
	rs, err := r.exec.Query(ctx,
		`SELECT `+messageColumns+` FROM chatbot_messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return mapAll(rowmap.Map(rs), MapChatMessage), nil
}

func (r *SQLChatRepository) CurrentSession(ctx context.Context, userID string) (*domain.ChatbotSession, error) {
	return queryOne(ctx, r.exec, MapChatSession,
		`SELECT `+sessionColumns+` FROM chatbot_sessions WHERE user_id = ? AND status = ?
		 ORDER BY last_activity_at DESC LIMIT 1`, userID, domain.SessionActive)
}
