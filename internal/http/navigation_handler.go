package httpapi

import (
	"net/http"

	"dugtong/internal/navigation"

	"go.uber.org/zap"
)

// NavigationHandler menu entries for the caller's role.
type NavigationHandler struct {
	policy *navigation.Policy
	logger *zap.Logger
}

func NewNavigationHandler(policy *navigation.Policy, logger *zap.Logger) *NavigationHandler {
	return &NavigationHandler{policy: policy, logger: logger}
}

func (h *NavigationHandler) Register(r *Router) {
	r.Authed("GET /navigation/menu", h.Menu)
	r.Authed("GET /navigation/access", h.Access)
}

func (h *NavigationHandler) Menu(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	role := p.Role
	writeJSON(w, http.StatusOK, Ok(h.policy.FilterMenu(&role)))
}

// Access ?path= reports whether the caller may open a screen.
func (h *NavigationHandler) Access(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	role := p.Role
	path := r.URL.Query().Get("path")
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"path":    path,
		"allowed": h.policy.CanAccess(&role, path),
	}))
}
