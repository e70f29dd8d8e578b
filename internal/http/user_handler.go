package httpapi

import (
	"errors"
	"net/http"

	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/repository"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// UserHandler 用户 Handler
type UserHandler struct {
	users  service.UserService
	logger *zap.Logger
}

func NewUserHandler(users service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) Register(r *Router) {
	r.Guarded("GET /users/me", navigation.CapProfile, h.Me)
	r.Guarded("PUT /users/me", navigation.CapProfile, h.UpdateMe)
	r.Guarded("GET /users/me/preferences", navigation.CapProfile, h.Preferences)
	r.Guarded("PUT /users/me/preferences", navigation.CapProfile, h.UpdatePreferences)

	r.Guarded("GET /users", navigation.CapUsersManage, h.List)
	r.Guarded("POST /users", navigation.CapUsersManage, h.Create)
	r.Guarded("GET /users/{id}", navigation.CapUsersManage, h.Get)
	r.Guarded("PUT /users/{id}", navigation.CapUsersManage, h.Update)
}

// List ?contact= narrows to the single account with that contact number.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if contact := q.Get("contact"); contact != "" {
		page := &repository.Page[*domain.User]{Items: []*domain.User{}}
		u, err := h.users.FindByContact(r.Context(), contact)
		switch {
		case err == nil:
			page.Items, page.Total = []*domain.User{u}, 1
		case !errors.Is(err, repository.ErrNotFound):
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(page))
		return
	}

	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out, err := h.users.List(r.Context(), repository.UserFilter{
		Role:     q.Get("role"),
		Search:   q.Get("search"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	u, err := h.users.Create(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(u))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, r.PathValue("id"))
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.updateProfile(w, r, r.PathValue("id"))
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	h.writeUser(w, r, p.UserID)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	h.updateProfile(w, r, p.UserID)
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, id string) {
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(u))
}

func (h *UserHandler) updateProfile(w http.ResponseWriter, r *http.Request, id string) {
	var req service.ProfileUpdate
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(u))
}

func (h *UserHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	prefs, err := h.users.Preferences(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(prefs))
}

func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	// start from stored values so partial bodies keep the rest
	prefs, err := h.users.Preferences(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := readBodyJSON(r, maxBodyBytes, prefs); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	out, err := h.users.UpdatePreferences(r.Context(), p.UserID, prefs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}
