package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DrainResult counts of one replay pass.
type DrainResult struct {
	Replayed int `json:"replayed"`
	Failed   int `json:"failed"`
}

// Syncer coordinates the local cache, the remote chat store and the pending queue.
type Syncer struct {
	local   *LocalCache
	remote  repository.ChatRepository
	queue   *Queue
	conn    Connectivity
	logger  *zap.Logger
	now     func() time.Time
	drainMu sync.Mutex
}

func NewSyncer(local *LocalCache, remote repository.ChatRepository, queue *Queue, conn Connectivity, logger *zap.Logger) *Syncer {
	return &Syncer{local: local, remote: remote, queue: queue, conn: conn, logger: logger, now: time.Now}
}

// Start drains the queue on every offline→online transition until the returned func is called.
func (s *Syncer) Start(ctx context.Context) func() {
	return s.conn.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			res, err := s.Drain(ctx)
			if err != nil {
				s.logger.Error("Chat sync drain failed", zap.Error(err))
				return
			}
			s.logger.Info("Chat sync drained", zap.Int("replayed", res.Replayed), zap.Int("failed", res.Failed))
		}()
	})
}

// Resume drains the queue right away when the shared store is reachable. Short-lived
// callers use it instead of Start since they may exit before any transition fires.
func (s *Syncer) Resume(ctx context.Context) (DrainResult, error) {
	if !s.conn.Online() {
		return DrainResult{}, nil
	}
	n, err := s.queue.Len(ctx)
	if err != nil || n == 0 {
		return DrainResult{}, err
	}
	return s.Drain(ctx)
}

// SendMessage stores m locally right away, then delivers it or queues it for later.
// Earlier queued writes are delivered first; while any remain, m queues behind them.
func (s *Syncer) SendMessage(ctx context.Context, m *domain.ChatbotMessage) (*domain.ChatbotMessage, error) {
	out := *m
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = s.now().UTC()
	}
	online := s.conn.Online()
	if online {
		if _, err := s.Resume(ctx); err != nil {
			s.logger.Warn("Chat sync drain failed", zap.Error(err))
		}
		if n, err := s.queue.Len(ctx); err != nil || n > 0 {
			online = false
		}
	}
	out.IsSynced = online

	if err := s.local.SaveMessage(ctx, &out); err != nil {
		return nil, err
	}
	if err := s.local.TouchSession(ctx, out.SessionID, out.CreatedAt); err != nil {
		s.logger.Warn("Failed to touch local session", zap.String("session_id", out.SessionID), zap.Error(err))
	}

	if online {
		err := s.remote.UpsertMessage(ctx, &out)
		if err == nil {
			return &out, nil
		}
		s.logger.Warn("Remote message write failed, queueing",
			zap.String("message_id", out.ID),
			zap.Error(err),
		)
		out.IsSynced = false
		if err := s.local.SaveMessage(ctx, &out); err != nil {
			return nil, err
		}
	}

	if _, err := s.queue.Enqueue(ctx, EntryMessage, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Drain replays queued writes in order. Each delivered entry is acknowledged on its own;
// failed entries stay queued for the next pass.
func (s *Syncer) Drain(ctx context.Context) (DrainResult, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	var res DrainResult
	entries, err := s.queue.Entries(ctx)
	if err != nil {
		return res, err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.replay(ctx, e); err != nil {
			res.Failed++
			s.logger.Warn("Replay failed",
				zap.String("entry_id", e.ID),
				zap.String("type", string(e.Type)),
				zap.Error(err),
			)
			if mErr := s.queue.MarkFailed(ctx, e.ID, err); mErr != nil {
				return res, mErr
			}
			continue
		}
		if err := s.queue.Ack(ctx, e.ID); err != nil {
			return res, err
		}
		res.Replayed++
	}
	return res, nil
}

func (s *Syncer) replay(ctx context.Context, e Entry) error {
	switch e.Type {
	case EntryMessage:
		var m domain.ChatbotMessage
		if err := json.Unmarshal(e.Data, &m); err != nil {
			return fmt.Errorf("decode queued message: %w", err)
		}
		m.IsSynced = true
		if err := s.remote.UpsertMessage(ctx, &m); err != nil {
			return err
		}
		return s.local.MarkSynced(ctx, m.ID)
	case EntrySession:
		var sess domain.ChatbotSession
		if err := json.Unmarshal(e.Data, &sess); err != nil {
			return fmt.Errorf("decode queued session: %w", err)
		}
		return s.remote.UpsertSession(ctx, &sess)
	}
	return fmt.Errorf("unknown queue entry type %q", e.Type)
}

// Conversation returns a session's messages. Online, the remote copy is merged in and
// written back locally; any remote failure falls back to the local view.
func (s *Syncer) Conversation(ctx context.Context, sessionID string) ([]*domain.ChatbotMessage, error) {
	local, err := s.local.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.conn.Online() {
		return local, nil
	}

	remote, err := s.remote.ListMessages(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Remote conversation unavailable, using local copy",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return local, nil
	}

	merged := MergeMessages(local, remote)
	if err := s.local.ReplaceMessages(ctx, sessionID, merged); err != nil {
		s.logger.Warn("Failed to rewrite local conversation", zap.String("session_id", sessionID), zap.Error(err))
	}
	return merged, nil
}

// MergeMessages unions both sides by id (remote wins) and sorts by creation time.
func MergeMessages(local, remote []*domain.ChatbotMessage) []*domain.ChatbotMessage {
	byID := make(map[string]*domain.ChatbotMessage, len(local)+len(remote))
	for _, m := range local {
		byID[m.ID] = m
	}
	for _, m := range remote {
		cp := *m
		cp.IsSynced = true
		byID[m.ID] = &cp
	}

	out := make([]*domain.ChatbotMessage, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CurrentSession returns the user's active session (local, then remote) and creates one
// only when neither has it.
func (s *Syncer) CurrentSession(ctx context.Context, userID string) (*domain.ChatbotSession, error) {
	sess, err := s.local.CurrentSession(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	online := s.conn.Online()
	if online {
		sess, err := s.remote.CurrentSession(ctx, userID)
		switch {
		case err == nil:
			if err := s.local.SaveSession(ctx, sess); err != nil {
				return nil, err
			}
			return sess, nil
		case !errors.Is(err, repository.ErrNotFound):
			s.logger.Warn("Remote session lookup failed", zap.String("user_id", userID), zap.Error(err))
			online = false
		}
	}

	now := s.now().UTC()
	sess = &domain.ChatbotSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         domain.SessionActive,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.local.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	if online {
		err := s.remote.UpsertSession(ctx, sess)
		if err == nil {
			return sess, nil
		}
		s.logger.Warn("Remote session write failed, queueing", zap.String("session_id", sess.ID), zap.Error(err))
	}
	if _, err := s.queue.Enqueue(ctx, EntrySession, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Pending number of queued writes.
func (s *Syncer) Pending(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}
