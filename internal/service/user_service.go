package service

import (
	"context"
	"strings"

	"dugtong/internal/domain"
	"dugtong/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserService profiles and per-user preferences.
type UserService interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	FindByContact(ctx context.Context, contact string) (*domain.User, error)
	// Create adds a staff or admin account with an initial password.
	Create(ctx context.Context, req CreateUserRequest) (*domain.User, error)
	List(ctx context.Context, f repository.UserFilter) (*repository.Page[*domain.User], error)
	UpdateProfile(ctx context.Context, userID string, req ProfileUpdate) (*domain.User, error)
	Preferences(ctx context.Context, userID string) (*domain.UserPreferences, error)
	UpdatePreferences(ctx context.Context, userID string, p *domain.UserPreferences) (*domain.UserPreferences, error)
}

// ProfileUpdate nil fields keep their current value.
type ProfileUpdate struct {
	FullName      *string `json:"fullName"`
	ContactNumber *string `json:"contactNumber"`
	Email         *string `json:"email"`
	AvatarURL     *string `json:"avatarUrl"`
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Role          string  `json:"role"`
	FullName      string  `json:"fullName"`
	ContactNumber string  `json:"contactNumber"`
	Email         *string `json:"email"`
	Password      string  `json:"password"`
}

type userService struct {
	users       repository.UserRepository
	preferences repository.PreferencesRepository
	logger      *zap.Logger
}

func NewUserService(users repository.UserRepository, preferences repository.PreferencesRepository, logger *zap.Logger) UserService {
	return &userService{users: users, preferences: preferences, logger: logger}
}

func (s *userService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.Get(ctx, id)
}

func (s *userService) FindByContact(ctx context.Context, contact string) (*domain.User, error) {
	return s.users.GetByContact(ctx, strings.TrimSpace(contact))
}

func (s *userService) Create(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	role, ok := domain.ParseRole(strings.TrimSpace(req.Role))
	if !ok {
		return nil, invalid("role", "oneof")
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, invalid("fullName", "required")
	}
	contact := strings.TrimSpace(req.ContactNumber)
	if contact == "" {
		return nil, invalid("contactNumber", "required")
	}
	if len(req.Password) < 8 {
		return nil, invalid("password", "min")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	var email *string
	if req.Email != nil {
		email = nullIfBlank(strings.TrimSpace(*req.Email))
	}
	u, err := s.users.Create(ctx, &domain.User{
		Role:          role,
		FullName:      name,
		ContactNumber: contact,
		Email:         email,
		PasswordHash:  string(hash),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("User created", zap.String("user_id", u.ID), zap.String("role", string(role)))
	return u, nil
}

func (s *userService) List(ctx context.Context, f repository.UserFilter) (*repository.Page[*domain.User], error) {
	if f.Role != "" {
		if _, ok := domain.ParseRole(f.Role); !ok {
			return nil, invalid("role", "oneof")
		}
	}
	f.Page, f.PageSize = clampPage(f.Page, f.PageSize)
	return s.users.List(ctx, f)
}

func (s *userService) UpdateProfile(ctx context.Context, userID string, req ProfileUpdate) (*domain.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, invalid("fullName", "required")
		}
		u.FullName = name
	}
	if req.ContactNumber != nil {
		c := strings.TrimSpace(*req.ContactNumber)
		if c == "" {
			return nil, invalid("contactNumber", "required")
		}
		u.ContactNumber = c
	}
	if req.Email != nil {
		u.Email = nullIfBlank(strings.TrimSpace(*req.Email))
	}
	if req.AvatarURL != nil {
		u.AvatarURL = nullIfBlank(strings.TrimSpace(*req.AvatarURL))
	}
	return s.users.Update(ctx, u)
}

func (s *userService) Preferences(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	return s.preferences.Get(ctx, userID)
}

func (s *userService) UpdatePreferences(ctx context.Context, userID string, p *domain.UserPreferences) (*domain.UserPreferences, error) {
	if p == nil {
		return nil, invalid("body", "required")
	}
	p.UserID = userID
	p.ThemeMode = domain.ParseThemeMode(string(p.ThemeMode))
	if p.Language = strings.TrimSpace(p.Language); p.Language == "" {
		p.Language = "en"
	}
	return s.preferences.Update(ctx, p)
}
