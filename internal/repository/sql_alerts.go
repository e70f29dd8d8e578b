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

// SQLAlertRepository alerts table
type SQLAlertRepository struct {
	exec sqlstore.Executor
	now  func() time.Time
}

func NewSQLAlertRepository(exec sqlstore.Executor) *SQLAlertRepository {
	return &SQLAlertRepository{exec: exec, now: time.Now}
}

// 确保实现了接口
var _ AlertRepository = (*SQLAlertRepository)(nil)

func (r *SQLAlertRepository) ListActive(ctx context.Context, f AlertFilter, now time.Time) (*Page[*domain.Alert], error) {
	b := query.New("alerts", alertColumns).
		Where("is_active = 1").
		Where("(expires_at IS NULL OR expires_at > ?)", now.UTC())
	if f.BloodType != "" {
		b.Where("(blood_type IS NULL OR blood_type = ?)", f.BloodType)
	}
	if f.Municipality != "" {
		b.Where("(municipality IS NULL OR municipality = ?)", f.Municipality)
	}
	b.Eq("urgency", f.Urgency)

	page, err := queryPage(ctx, r.exec, b.Page(f.Page, f.PageSize).Build(), MapAlert)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return page, nil
}

func (r *SQLAlertRepository) Get(ctx context.Context, id string) (*domain.Alert, error) {
	return queryOne(ctx, r.exec, MapAlert, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
}

func (r *SQLAlertRepository) Create(ctx context.Context, a *domain.Alert) (*domain.Alert, error) {
	out := *a
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.Urgency = domain.ParseUrgency(string(a.Urgency))
	out.IsActive = true
	out.CreatedAt = r.now().UTC()

	_, err := r.exec.Exec(ctx,
		`INSERT INTO alerts (id, title, message, blood_type, municipality, urgency, created_by, expires_at, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Title, out.Message, out.BloodType, out.Municipality, out.Urgency, out.CreatedBy,
		out.ExpiresAt, out.IsActive, out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return &out, nil
}

func (r *SQLAlertRepository) Deactivate(ctx context.Context, id string) error {
	if err := execAffecting(ctx, r.exec, `UPDATE alerts SET is_active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deactivate alert %s: %w", id, err)
	}
	return nil
}
