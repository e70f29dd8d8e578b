// Package chatsync keeps chatbot conversations usable offline: messages are written to a
// local cache first and delivered to the shared store when connectivity allows.
package chatsync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dugtong/common/config"
	"dugtong/common/database"
	"dugtong/internal/domain"
	"dugtong/internal/query"
	"dugtong/internal/repository"
	"dugtong/internal/rowmap"
	"dugtong/internal/sqlstore"

	"go.uber.org/zap"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS local_chat_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    last_activity_at TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS local_chat_messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    is_synced INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_local_chat_messages_session ON local_chat_messages (session_id, created_at)`

const (
	localMessageColumns = "id, session_id, user_id, role, content, is_synced, created_at"
	localSessionColumns = "id, user_id, status, last_activity_at, created_at"
	upsertLocalMessage  = `INSERT INTO local_chat_messages (id, session_id, user_id, role, content, is_synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET content = excluded.content, is_synced = excluded.is_synced`
)

// LocalCache on-device copy of the user's chat sessions and messages.
type LocalCache struct {
	exec sqlstore.Executor
	db   *sql.DB
}

// OpenLocalCache opens (or creates) the sqlite cache file at path.
func OpenLocalCache(ctx context.Context, path string, logger *zap.Logger) (*LocalCache, error) {
	db, err := database.NewSQLiteDB(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
	if err != nil {
		return nil, err
	}
	c, err := NewLocalCache(ctx, sqlstore.NewDBExecutor(db, query.DialectSQLite, logger))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.db = db
	return c, nil
}

// NewLocalCache creates the cache tables on exec when missing.
func NewLocalCache(ctx context.Context, exec sqlstore.Executor) (*LocalCache, error) {
	for _, stmt := range strings.Split(localSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create local chat cache: %w", err)
		}
	}
	return &LocalCache{exec: exec}, nil
}

// Close releases the file opened by OpenLocalCache.
func (c *LocalCache) Close() error {
	return database.Close(c.db)
}

func (c *LocalCache) SaveMessage(ctx context.Context, m *domain.ChatbotMessage) error {
	_, err := c.exec.Exec(ctx, upsertLocalMessage,
		m.ID, m.SessionID, m.UserID, m.Role, m.Content, m.IsSynced, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save local message %s: %w", m.ID, err)
	}
	return nil
}

func (c *LocalCache) MarkSynced(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := c.exec.Exec(ctx, `UPDATE local_chat_messages SET is_synced = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark message %s synced: %w", id, err)
		}
	}
	return nil
}

// Messages of a session, oldest first.
func (c *LocalCache) Messages(ctx context.Context, sessionID string) ([]*domain.ChatbotMessage, error) {
	rs, err := c.exec.Query(ctx, `SELECT `+localMessageColumns+` FROM local_chat_messages
		WHERE session_id = ? ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read local messages: %w", err)
	}
	return mapMessages(rs), nil
}

// Unsynced messages across all sessions, oldest first.
func (c *LocalCache) Unsynced(ctx context.Context) ([]*domain.ChatbotMessage, error) {
	rs, err := c.exec.Query(ctx, `SELECT `+localMessageColumns+` FROM local_chat_messages
		WHERE is_synced = 0 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("read unsynced messages: %w", err)
	}
	return mapMessages(rs), nil
}

// ReplaceMessages rewrites a session's messages with msgs.
func (c *LocalCache) ReplaceMessages(ctx context.Context, sessionID string, msgs []*domain.ChatbotMessage) error {
	return c.exec.WithTx(ctx, func(tx sqlstore.Executor) error {
		if _, err := tx.Exec(ctx, `DELETE FROM local_chat_messages WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear local messages: %w", err)
		}
		for _, m := range msgs {
			if _, err := tx.Exec(ctx, upsertLocalMessage,
				m.ID, m.SessionID, m.UserID, m.Role, m.Content, m.IsSynced, m.CreatedAt); err != nil {
				return fmt.Errorf("write local message %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

func (c *LocalCache) SaveSession(ctx context.Context, s *domain.ChatbotSession) error {
	_, err := c.exec.Exec(ctx,
		`INSERT INTO local_chat_sessions (id, user_id, status, last_activity_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, last_activity_at = excluded.last_activity_at`,
		s.ID, s.UserID, s.Status, s.LastActivityAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save local session %s: %w", s.ID, err)
	}
	return nil
}

// TouchSession moves a session's last activity forward to at.
func (c *LocalCache) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := c.exec.Exec(ctx,
		`UPDATE local_chat_sessions SET last_activity_at = ? WHERE id = ? AND last_activity_at < ?`,
		at, sessionID, at)
	return err
}

// CurrentSession the user's most recently active session, or repository.ErrNotFound.
func (c *LocalCache) CurrentSession(ctx context.Context, userID string) (*domain.ChatbotSession, error) {
	rs, err := c.exec.Query(ctx, `SELECT `+localSessionColumns+` FROM local_chat_sessions
		WHERE user_id = ? AND status = ? ORDER BY last_activity_at DESC LIMIT 1`, userID, domain.SessionActive)
	if err != nil {
		return nil, fmt.Errorf("read local session: %w", err)
	}
	rec := rowmap.First(rs)
	if rec == nil {
		return nil, repository.ErrNotFound
	}
	return repository.MapChatSession(rec), nil
}

func mapMessages(rs *rowmap.ResultSet) []*domain.ChatbotMessage {
	records := rowmap.Map(rs)
	out := make([]*domain.ChatbotMessage, 0, len(records))
	for _, r := range records {
		out = append(out, repository.MapChatMessage(r))
	}
	return out
}
