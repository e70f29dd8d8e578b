package repository

import (
	"context"
	"fmt"

	"dugtong/internal/domain"
	"dugtong/internal/sqlstore"
)

// SQLPreferencesRepository user_preferences table
type SQLPreferencesRepository struct {
	exec sqlstore.Executor
}

func NewSQLPreferencesRepository(exec sqlstore.Executor) *SQLPreferencesRepository {
	return &SQLPreferencesRepository{exec: exec}
}

// 确保实现了接口
var _ PreferencesRepository = (*SQLPreferencesRepository)(nil)

func (r *SQLPreferencesRepository) Get(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	if err := insertDefaultPreferences(ctx, r.exec, userID); err != nil {
		return nil, err
	}
	return queryOne(ctx, r.exec, MapPreferences,
		`SELECT `+preferencesColumns+` FROM user_preferences WHERE user_id = ?`, userID)
}

func (r *SQLPreferencesRepository) Update(ctx context.Context, p *domain.UserPreferences) (*domain.UserPreferences, error) {
	_, err := r.exec.Exec(ctx,
		`INSERT INTO user_preferences (user_id, theme_mode, emergency_notifications, update_notifications, reminder_notifications, language)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			theme_mode = excluded.theme_mode,
			emergency_notifications = excluded.emergency_notifications,
			update_notifications = excluded.update_notifications,
			reminder_notifications = excluded.reminder_notifications,
			language = excluded.language`,
		p.UserID, domain.ParseThemeMode(string(p.ThemeMode)), p.EmergencyNotifications, p.UpdateNotifications,
		p.ReminderNotifications, languageOrDefault(p.Language))
	if err != nil {
		return nil, fmt.Errorf("update preferences of %s: %w", p.UserID, err)
	}
	return queryOne(ctx, r.exec, MapPreferences,
		`SELECT `+preferencesColumns+` FROM user_preferences WHERE user_id = ?`, p.UserID)
}

func insertDefaultPreferences(ctx context.Context, exec sqlstore.Executor, userID string) error {
	p := domain.DefaultPreferences(userID)
	_, err := exec.Exec(ctx,
		`INSERT INTO user_preferences (user_id, theme_mode, emergency_notifications, update_notifications, reminder_notifications, language)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.ThemeMode, p.EmergencyNotifications, p.UpdateNotifications, p.ReminderNotifications, p.Language)
	if err != nil {
		return fmt.Errorf("insert default preferences: %w", err)
	}
	return nil
}

func languageOrDefault(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}
