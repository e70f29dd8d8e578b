package service

import (
	"context"
	"strings"
	"time"

	"dugtong/internal/chatbot"
	"dugtong/internal/chatsync"
	"dugtong/internal/domain"

	"go.uber.org/zap"
)

// maxHistory prior turns sent along with a prompt.
const maxHistory = 20

// ChatService chatbot conversations, stored offline-first.
type ChatService interface {
	Session(ctx context.Context, userID string) (*domain.ChatbotSession, error)
	// Conversation uses the current session when sessionID is empty.
	Conversation(ctx context.Context, userID, sessionID string) ([]*domain.ChatbotMessage, error)
	Send(ctx context.Context, userID, text string) (*ChatExchange, error)
	Sync(ctx context.Context) (chatsync.DrainResult, error)
	Pending(ctx context.Context) (int, error)
}

// ChatExchange the user's message and the bot's answer.
type ChatExchange struct {
	SessionID string                 `json:"sessionId"`
	Message   *domain.ChatbotMessage `json:"message"`
	Reply     *domain.ChatbotMessage `json:"reply"`
	Source    chatbot.Source         `json:"source"`
	Intent    string                 `json:"intent,omitempty"`
}

type chatService struct {
	syncer    *chatsync.Syncer
	responder *chatbot.Responder
	logger    *zap.Logger
}

func NewChatService(syncer *chatsync.Syncer, responder *chatbot.Responder, logger *zap.Logger) ChatService {
	return &chatService{syncer: syncer, responder: responder, logger: logger}
}

func (s *chatService) Session(ctx context.Context, userID string) (*domain.ChatbotSession, error) {
	return s.syncer.CurrentSession(ctx, userID)
}

func (s *chatService) Conversation(ctx context.Context, userID, sessionID string) ([]*domain.ChatbotMessage, error) {
	if sessionID == "" {
		sess, err := s.syncer.CurrentSession(ctx, userID)
		if err != nil {
			return nil, err
		}
		sessionID = sess.ID
	}
	return s.syncer.Conversation(ctx, sessionID)
}

func (s *chatService) Send(ctx context.Context, userID, text string) (*ChatExchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("content", "required")
	}
	sess, err := s.syncer.CurrentSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.syncer.Conversation(ctx, sess.ID)
	if err != nil {
		s.logger.Warn("Failed to load chat history", zap.String("session_id", sess.ID), zap.Error(err))
		history = nil
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	msg, err := s.syncer.SendMessage(ctx, &domain.ChatbotMessage{
		SessionID: sess.ID,
		UserID:    userID,
		Role:      domain.ChatRoleUser,
		Content:   text,
	})
	if err != nil {
		return nil, err
	}

	turns := make([]domain.ChatbotMessage, 0, len(history))
	for _, m := range history {
		turns = append(turns, *m)
	}
	r := s.responder.Reply(ctx, turns, text)

	reply, err := s.syncer.SendMessage(ctx, &domain.ChatbotMessage{
		SessionID: sess.ID,
		UserID:    userID,
		Role:      domain.ChatRoleBot,
		Content:   r.Text,
		CreatedAt: msg.CreatedAt.Add(time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	return &ChatExchange{SessionID: sess.ID, Message: msg, Reply: reply, Source: r.Source, Intent: r.Intent}, nil
}

func (s *chatService) Sync(ctx context.Context) (chatsync.DrainResult, error) {
	return s.syncer.Drain(ctx)
}

func (s *chatService) Pending(ctx context.Context) (int, error) {
	return s.syncer.Pending(ctx)
}
