package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

// Principal the authenticated caller.
type Principal struct {
	UserID string
	Role   domain.Role
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// TokenVerifier parses bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*service.Claims, error)
}

// Authenticate requires a valid bearer token. Failures answer 401 with ResultTokenExpired.
func Authenticate(verifier TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, Result[any]{Code: ResultTokenExpired, Type: "error", Message: "missing bearer token"})
			return
		}
		claims, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, Result[any]{Code: ResultTokenExpired, Type: "error", Message: "token expired or invalid"})
			return
		}
		ctx := withPrincipal(r.Context(), Principal{UserID: claims.Subject, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability answers 403 unless the caller's role holds c.
func RequireCapability(policy *navigation.Policy, c navigation.Capability, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok || !policy.Allows(p.Role, c) {
			writeJSON(w, http.StatusForbidden, Fail("forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LogRequests access log, one line per request.
func LogRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
