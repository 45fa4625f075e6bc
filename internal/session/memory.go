package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory with the same expiry
// semantics as the Redis store. Used as the failover target and in tests.
type MemoryStore struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	ttl      time.Duration
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
	}
}

// Get returns a session, or nil if absent or expired.
func (m *MemoryStore) Get(_ context.Context, chatID int64) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Since(session.UpdatedAt) > m.ttl {
		m.mu.Lock()
		delete(m.sessions, chatID)
		m.mu.Unlock()
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

// Set stores a session.
func (m *MemoryStore) Set(_ context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UTC()
	copied := *session
	m.mu.Lock()
	m.sessions[session.ChatID] = &copied
	m.mu.Unlock()
	return nil
}

// Clear removes a session.
func (m *MemoryStore) Clear(_ context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.sessions, chatID)
	m.mu.Unlock()
	return nil
}

// Cleanup removes expired sessions and returns how many were dropped.
func (m *MemoryStore) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for chatID, session := range m.sessions {
		if time.Since(session.UpdatedAt) > m.ttl {
			delete(m.sessions, chatID)
			removed++
		}
	}
	return removed
}
