package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dugtong/internal/store"
)

// DefaultTokenKey KV key holding the session tokens.
const DefaultTokenKey = "auth:tokens"

// Tokens session credentials issued by /auth/login.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TokenStore persists the current session tokens.
type TokenStore interface {
	Get(ctx context.Context) (Tokens, error)
	Set(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

// KVTokenStore keeps tokens as one JSON value in a store.KV.
type KVTokenStore struct {
	kv  store.KV
	key string
}

func NewKVTokenStore(kv store.KV, key string) *KVTokenStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return &KVTokenStore{kv: kv, key: key}
}

var _ TokenStore = (*KVTokenStore)(nil)

// Get returns empty Tokens when nothing is stored.
func (s *KVTokenStore) Get(ctx context.Context) (Tokens, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, store.ErrMiss) {
		return Tokens{}, nil
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("read tokens: %w", err)
	}
	var t Tokens
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Tokens{}, fmt.Errorf("decode tokens: %w", err)
	}
	return t, nil
}

func (s *KVTokenStore) Set(ctx context.Context, t Tokens) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, string(b), 0)
}

func (s *KVTokenStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key)
}
