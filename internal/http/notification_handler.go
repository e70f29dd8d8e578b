package httpapi

import (
	"net/http"

	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/repository"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// NotificationHandler 通知 Handler. Reads are scoped to the caller.
type NotificationHandler struct {
	notifications service.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

func (h *NotificationHandler) Register(r *Router) {
	r.Guarded("GET /notifications", navigation.CapNotifications, h.List)
	r.Guarded("POST /notifications", navigation.CapUsersManage, h.Create)
	r.Guarded("GET /notifications/unread-count", navigation.CapNotifications, h.UnreadCount)
	r.Guarded("POST /notifications/read-all", navigation.CapNotifications, h.MarkAllRead)
	r.Guarded("POST /notifications/{id}/read", navigation.CapNotifications, h.MarkRead)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out, err := h.notifications.List(r.Context(), repository.NotificationFilter{
		UserID:     p.UserID,
		UnreadOnly: parseBool(r.URL.Query().Get("unread_only")),
		Type:       r.URL.Query().Get("type"),
		Page:       page,
		PageSize:   size,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var n domain.Notification
	if err := readBodyJSON(r, maxBodyBytes, &n); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	out, err := h.notifications.Create(r.Context(), &n)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(out))
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	n, err := h.notifications.UnreadCount(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int{"count": n}))
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := h.notifications.MarkRead(r.Context(), p.UserID, r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	n, err := h.notifications.MarkAllRead(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int64{"updated": n}))
}
