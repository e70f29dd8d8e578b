package repository

import (
	"context"
	"fmt"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/query"
	"dugtong/internal/sqlstore"

	"github.com/google/uuid"
)

// SQLUserRepository users table
type SQLUserRepository struct {
	exec sqlstore.Executor
	now  func() time.Time
}

func NewSQLUserRepository(exec sqlstore.Executor) *SQLUserRepository {
	return &SQLUserRepository{exec: exec, now: time.Now}
}

// 确保实现了接口
var _ UserRepository = (*SQLUserRepository)(nil)

func (r *SQLUserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	return queryOne(ctx, r.exec, MapUser, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *SQLUserRepository) GetByContact(ctx context.Context, contact string) (*domain.User, error) {
	return queryOne(ctx, r.exec, MapUser, `SELECT `+userColumns+` FROM users WHERE contact_number = ?`, contact)
}

func (r *SQLUserRepository) List(ctx context.Context, f UserFilter) (*Page[*domain.User], error) {
	q := query.New("users", userColumns).
		Eq("role", f.Role).
		Search(f.Search, "full_name", "contact_number", "email").
		Page(f.Page, f.PageSize).
		Build()
	page, err := queryPage(ctx, r.exec, q, MapUser)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return page, nil
}

func (r *SQLUserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	out := *u
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	now := r.now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now
	if err := insertUser(ctx, r.exec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func insertUser(ctx context.Context, exec sqlstore.Executor, u *domain.User) error {
	_, err := exec.Exec(ctx,
		`INSERT INTO users (id, role, full_name, contact_number, email, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Role, u.FullName, u.ContactNumber, u.Email, u.AvatarURL, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLUserRepository) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	err := execAffecting(ctx, r.exec,
		`UPDATE users SET full_name = ?, contact_number = ?, email = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		u.FullName, u.ContactNumber, u.Email, u.AvatarURL, r.now().UTC(), u.ID)
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return r.Get(ctx, u.ID)
}
