package httpapi

import (
	"net/http"

	"dugtong/internal/navigation"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（方法 + 路径模式）
type Router struct {
	mux      *http.ServeMux
	verifier TokenVerifier
	policy   *navigation.Policy
	logger   *zap.Logger
}

func NewRouter(verifier TokenVerifier, policy *navigation.Policy, logger *zap.Logger) *Router {
	return &Router{
		mux:      http.NewServeMux(),
		verifier: verifier,
		policy:   policy,
		logger:   logger,
	}
}

// Public no token required.
func (r *Router) Public(pattern string, h http.HandlerFunc) {
	r.mux.Handle(pattern, h)
}

// Authed any signed-in user.
func (r *Router) Authed(pattern string, h http.HandlerFunc) {
	r.mux.Handle(pattern, Authenticate(r.verifier, h))
}

// Guarded signed-in user whose role holds c.
func (r *Router) Guarded(pattern string, c navigation.Capability, h http.HandlerFunc) {
	r.mux.Handle(pattern, Authenticate(r.verifier, RequireCapability(r.policy, c, h)))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	LogRequests(r.logger, r.mux).ServeHTTP(w, req)
}

// Services everything the REST surface calls into. Nil members leave their routes unregistered.
type Services struct {
	Auth          service.AuthService
	Donors        service.DonorService
	Registrations service.RegistrationService
	Users         service.UserService
	Notifications service.NotificationService
	Alerts        service.AlertService
	Reports       service.ReportService
	ChatHistory   service.ChatHistoryService
	Bot           Replier
}

// RegisterRoutes wires every handler.
func (r *Router) RegisterRoutes(s Services) {
	r.Public("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
	NewNavigationHandler(r.policy, r.logger).Register(r)

	if s.Auth != nil && s.Users != nil {
		NewAuthHandler(s.Auth, s.Users, r.logger).Register(r)
	}
	if s.Donors != nil {
		NewDonorHandler(s.Donors, r.logger).Register(r)
	}
	if s.Registrations != nil {
		NewRegistrationHandler(s.Registrations, r.logger).Register(r)
	}
	if s.Users != nil {
		NewUserHandler(s.Users, r.logger).Register(r)
	}
	if s.Notifications != nil {
		NewNotificationHandler(s.Notifications, r.logger).Register(r)
	}
	if s.Alerts != nil {
		NewAlertHandler(s.Alerts, r.logger).Register(r)
	}
	if s.Reports != nil {
		NewReportHandler(s.Reports, r.logger).Register(r)
	}
	if s.ChatHistory != nil {
		NewChatHandler(s.ChatHistory, s.Bot, r.logger).Register(r)
	}
}
