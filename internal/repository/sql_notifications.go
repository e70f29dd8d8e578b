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

const insertNotificationSQL = `INSERT INTO notifications (id, user_id, title, message, type, is_read, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// SQLNotificationRepository notifications table
type SQLNotificationRepository struct {
	exec sqlstore.Executor
	now  func() time.Time
}

func NewSQLNotificationRepository(exec sqlstore.Executor) *SQLNotificationRepository {
	return &SQLNotificationRepository{exec: exec, now: time.Now}
}

// 确保实现了接口
var _ NotificationRepository = (*SQLNotificationRepository)(nil)

func (r *SQLNotificationRepository) List(ctx context.Context, f NotificationFilter) (*Page[*domain.Notification], error) {
	b := query.New("notifications", notificationColumns).Eq("user_id", f.UserID)
	if f.UnreadOnly {
		b.Where("is_read = 0")
	}
	if f.Type != "" {
		b.Eq("type", string(domain.NormalizeNotificationType(f.Type)))
	}
	page, err := queryPage(ctx, r.exec, b.Page(f.Page, f.PageSize).Build(), MapNotification)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return page, nil
}

func (r *SQLNotificationRepository) prepare(n *domain.Notification) *domain.Notification {
	out := *n
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.Type = domain.NormalizeNotificationType(string(n.Type))
	if out.CreatedAt.IsZero() {
		out.CreatedAt = r.now().UTC()
	}
	return &out
}

func notificationArgs(n *domain.Notification) []any {
	return []any{n.ID, n.UserID, n.Title, n.Message, n.Type, n.IsRead, metadataArg(n.Metadata), n.CreatedAt}
}

func (r *SQLNotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	out := r.prepare(n)
	if _, err := r.exec.Exec(ctx, insertNotificationSQL, notificationArgs(out)...); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return out, nil
}

// CreateMany inserts all notifications or none.
func (r *SQLNotificationRepository) CreateMany(ctx context.Context, ns []*domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return r.exec.WithTx(ctx, func(tx sqlstore.Executor) error {
		for _, n := range ns {
			if _, err := tx.Exec(ctx, insertNotificationSQL, notificationArgs(r.prepare(n))...); err != nil {
				return fmt.Errorf("create notification for %s: %w", n.UserID, err)
			}
		}
		return nil
	})
}

func (r *SQLNotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	if err := execAffecting(ctx, r.exec,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

func (r *SQLNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.exec.Exec(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected, nil
}

func (r *SQLNotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	rs, err := r.exec.Query(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return scalarInt(rs), nil
}
