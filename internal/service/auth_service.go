package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/repository"
	"dugtong/internal/store"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	revokedKeyPrefix = "auth:revoked:"
)

// AuthService 认证服务接口
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	// Refresh rotates the pair; the presented refresh token is revoked.
	Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error)
	// Logout revokes a refresh token until it would have expired.
	Logout(ctx context.Context, refreshToken string) error
	// Verify parses an access token.
	Verify(token string) (*Claims, error)
}

// AuthConfig signing secret and token lifetimes.
type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	// Revoked holds revoked refresh token ids; defaults to an in-process store.
	Revoked store.KV
}

// LoginRequest 登录请求
type LoginRequest struct {
	ContactNumber string `json:"contactNumber"`
	Password      string `json:"password"`
	IPAddress     string `json:"-"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         *domain.User `json:"user"`
}

// Claims JWT payload. Subject is the user id.
type Claims struct {
	Role      domain.Role `json:"role"`
	TokenType string      `json:"typ"`
	jwt.RegisteredClaims
}

type authService struct {
	users  repository.UserRepository
	cfg    AuthConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewAuthService(users repository.UserRepository, cfg AuthConfig, logger *zap.Logger) AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "dugtong"
	}
	if cfg.Revoked == nil {
		cfg.Revoked = store.NewMemoryKV()
	}
	return &authService{users: users, cfg: cfg, logger: logger, now: time.Now}
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	contact := strings.TrimSpace(req.ContactNumber)
	if contact == "" || req.Password == "" {
		s.logger.Warn("User login failed: missing credentials", zap.String("ip_address", req.IPAddress))
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByContact(ctx, contact)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("User login failed: unknown contact", zap.String("ip_address", req.IPAddress))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		s.logger.Warn("User login failed: wrong password",
			zap.String("user_id", u.ID),
			zap.String("ip_address", req.IPAddress),
		)
		return nil, ErrInvalidCredentials
	}

	resp, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User logged in", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return resp, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	claims, err := s.parse(refreshToken, tokenRefresh)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.issue(u)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, tokenRefresh)
	if err != nil {
		return err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}
	s.logger.Info("User logged out", zap.String("user_id", claims.Subject))
	return nil
}

func (s *authService) checkRevoked(ctx context.Context, claims *Claims) error {
	_, err := s.cfg.Revoked.Get(ctx, revokedKeyPrefix+claims.ID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: refresh token revoked", ErrInvalidCredentials)
	case errors.Is(err, store.ErrMiss):
		return nil
	}
	return fmt.Errorf("check revoked token: %w", err)
}

func (s *authService) revoke(ctx context.Context, claims *Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Time.Sub(s.now()); left > ttl {
			ttl = left
		}
	}
	if err := s.cfg.Revoked.Set(ctx, revokedKeyPrefix+claims.ID, claims.Subject, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *authService) Verify(token string) (*Claims, error) {
	return s.parse(token, tokenAccess)
}

func (s *authService) issue(u *domain.User) (*LoginResponse, error) {
	now := s.now()
	access, err := s.sign(u, tokenAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(u, tokenRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.cfg.AccessTTL).UTC(),
		User:         u,
	}, nil
}

func (s *authService) sign(u *domain.User, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Role:      u.Role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (s *authService) parse(raw, typ string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.TokenType != typ || claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: wrong token type", ErrInvalidCredentials)
	}
	if _, ok := domain.ParseRole(string(claims.Role)); !ok {
		return nil, fmt.Errorf("%w: unknown role", ErrInvalidCredentials)
	}
	return claims, nil
}
