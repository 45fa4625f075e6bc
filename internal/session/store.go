// Package session persists per-conversation booking state outside the
// process, keyed by conversation id with an explicit expiry. A restart or
// a second process instance sees the same in-progress selections.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is the in-progress booking selection for one conversation.
type Session struct {
	ChatID      int64          `json:"chat_id"`
	State       string         `json:"state"`
	ClientName  string         `json:"client_name,omitempty"`
	ClientPhone string         `json:"client_phone,omitempty"`
	StaffID     int64          `json:"staff_id,omitempty"`
	StaffName   string         `json:"staff_name,omitempty"`
	Date        time.Time      `json:"date,omitempty"`
	StartUTC    time.Time      `json:"start_utc,omitempty"`
	EndUTC      time.Time      `json:"end_utc,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Store reads and writes conversation sessions.
type Store interface {
	Get(ctx context.Context, chatID int64) (*Session, error)
	Set(ctx context.Context, session *Session) error
	Clear(ctx context.Context, chatID int64) error
}

// RedisStore keeps sessions in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}

// Get returns a session, or nil when none exists or it expired.
func (s *RedisStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	val, err := s.client.Get(ctx, sessionKey(chatID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", chatID, err)
	}

	var session Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", chatID, err)
	}
	return &session, nil
}

// Set stores a session, refreshing its expiry.
func (s *RedisStore) Set(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", session.ChatID, err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ChatID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session %d: %w", session.ChatID, err)
	}
	return nil
}

// Clear removes a session.
func (s *RedisStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, sessionKey(chatID)).Err(); err != nil {
		return fmt.Errorf("clear session %d: %w", chatID, err)
	}
	return nil
}
