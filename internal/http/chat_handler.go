package httpapi

import (
	"context"
	"net/http"

	"dugtong/internal/chatbot"
	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// Replier answers one chat turn.
type Replier interface {
	Reply(ctx context.Context, history []domain.ChatbotMessage, text string) chatbot.Reply
}

// ChatHandler chat history sync target plus the bot endpoint.
type ChatHandler struct {
	history service.ChatHistoryService
	bot     Replier
	logger  *zap.Logger
}

// NewChatHandler bot may be nil.
func NewChatHandler(history service.ChatHistoryService, bot Replier, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{history: history, bot: bot, logger: logger}
}

func (h *ChatHandler) Register(r *Router) {
	r.Guarded("GET /messages", navigation.CapChat, h.Messages)
	r.Guarded("PUT /messages/{id}", navigation.CapChat, h.UpsertMessage)
	r.Guarded("GET /chat/sessions/current", navigation.CapChat, h.CurrentSession)
	r.Guarded("PUT /chat/sessions/{id}", navigation.CapChat, h.UpsertSession)
	if h.bot != nil {
		r.Guarded("POST /chatbot/reply", navigation.CapChat, h.Reply)
	}
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	out, err := h.history.Messages(r.Context(), p.UserID, r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// UpsertMessage idempotent by id; replays of the same message are harmless.
func (h *ChatHandler) UpsertMessage(w http.ResponseWriter, r *http.Request) {
	var m domain.ChatbotMessage
	if err := readBodyJSON(r, maxBodyBytes, &m); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	m.ID = r.PathValue("id")
	p, _ := PrincipalFrom(r.Context())
	if err := h.history.UpsertMessage(r.Context(), p.UserID, &m); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(&m))
}

// CurrentSession result is null when there is none.
func (h *ChatHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	sess, err := h.history.CurrentSession(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sess))
}

func (h *ChatHandler) UpsertSession(w http.ResponseWriter, r *http.Request) {
	var s domain.ChatbotSession
	if err := readBodyJSON(r, maxBodyBytes, &s); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	s.ID = r.PathValue("id")
	p, _ := PrincipalFrom(r.Context())
	if err := h.history.UpsertSession(r.Context(), p.UserID, &s); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(&s))
}

func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string                  `json:"message"`
		History []domain.ChatbotMessage `json:"history"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.bot.Reply(r.Context(), req.History, req.Message)))
}
