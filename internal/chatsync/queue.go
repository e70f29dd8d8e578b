package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dugtong/internal/store"

	"github.com/google/uuid"
)

// DefaultQueueKey KV key of the pending-delivery queue.
const DefaultQueueKey = "chatsync:queue"

// EntryType what a queued entry carries.
type EntryType string

const (
	EntryMessage EntryType = "message"
	EntrySession EntryType = "session"
)

// Entry one pending remote write.
type Entry struct {
	ID        string          `json:"id"`
	Type      EntryType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}

// Queue persisted FIFO of pending remote writes, stored as one JSON array under a KV key.
// All read-modify-write cycles hold mu.
type Queue struct {
	kv  store.KV
	key string
	mu  sync.Mutex
	now func() time.Time
}

func NewQueue(kv store.KV, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{kv: kv, key: key, now: time.Now}
}

// Enqueue appends data (JSON-encoded) to the tail.
func (q *Queue) Enqueue(ctx context.Context, typ EntryType, data any) (Entry, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Entry{}, fmt.Errorf("encode queue entry: %w", err)
	}
	e := Entry{ID: uuid.NewString(), Type: typ, Data: raw, Timestamp: q.now().UTC()}

	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	if err := q.save(ctx, append(entries, e)); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Entries snapshot in FIFO order.
func (q *Queue) Entries(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.Entries(ctx)
	return len(entries), err
}

// Ack removes a delivered entry. Unknown ids are ignored.
func (q *Queue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return q.save(ctx, kept)
}

// MarkFailed records a failed delivery attempt; the entry stays queued.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Attempts++
			if cause != nil {
				entries[i].LastError = cause.Error()
			}
		}
	}
	return q.save(ctx, entries)
}

func (q *Queue) load(ctx context.Context) ([]Entry, error) {
	raw, err := q.kv.Get(ctx, q.key)
	if errors.Is(err, store.ErrMiss) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync queue: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode sync queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) save(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return q.kv.Delete(ctx, q.key)
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := q.kv.Set(ctx, q.key, string(raw), 0); err != nil {
		return fmt.Errorf("write sync queue: %w", err)
	}
	return nil
}
