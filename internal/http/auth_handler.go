package httpapi

import (
	"net/http"
	"strings"

	"dugtong/internal/service"

	"go.uber.org/zap"
)

// AuthHandler 认证 Handler
type AuthHandler struct {
	auth   service.AuthService
	users  service.UserService
	logger *zap.Logger
}

func NewAuthHandler(auth service.AuthService, users service.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, users: users, logger: logger}
}

func (h *AuthHandler) Register(r *Router) {
	r.Public("POST /auth/login", h.Login)
	r.Public("POST /auth/refresh", h.Refresh)
	r.Public("POST /auth/logout", h.Logout)
	r.Authed("GET /auth/me", h.Me)
}

// Login 用户登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	req.IPAddress = clientIP(r)
	resp, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil || req.RefreshToken == "" {
		badRequest(w, "refreshToken is required")
		return
	}
	resp, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Logout revokes the refresh token; the access token simply runs out.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil || req.RefreshToken == "" {
		badRequest(w, "refreshToken is required")
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"loggedOut": true}))
}

// Me the signed-in user's account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	u, err := h.users.Get(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(u))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}
