package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// recoveryInterval is how long the failover waits before probing the
// primary again after a failure.
const recoveryInterval = time.Minute

// FailoverStore wraps a primary session store (Redis) with an in-process
// fallback. When the primary errors, reads and writes go to the fallback
// until a later call finds the primary healthy again. In-flight sessions
// held only by the fallback are lost on process restart; that is the
// accepted degradation, not the normal mode.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	lastCheck time.Time
	mu        sync.Mutex
}

// NewFailoverStore creates a failover session store.
func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// shouldTryPrimary reports whether the next call should hit the primary.
func (f *FailoverStore) shouldTryPrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) >= recoveryInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverStore) markDown(err error) {
	if f.isDown.CompareAndSwap(false, true) && f.logger != nil {
		f.logger.Warn().Err(err).Msg("session primary down, using fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverStore) markUp() {
	if f.isDown.CompareAndSwap(true, false) && f.logger != nil {
		f.logger.Info().Msg("session primary recovered")
	}
}

// Get reads from the primary, falling back on error.
func (f *FailoverStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	if f.shouldTryPrimary() {
		session, err := f.primary.Get(ctx, chatID)
		if err == nil {
			f.markUp()
			return session, nil
		}
		f.markDown(err)
	}
	return f.fallback.Get(ctx, chatID)
}

// Set writes to the primary, falling back on error.
func (f *FailoverStore) Set(ctx context.Context, session *Session) error {
	if f.shouldTryPrimary() {
		err := f.primary.Set(ctx, session)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.Set(ctx, session)
}

// Clear removes the session from both stores so a recovery cannot
// resurrect a finished conversation.
func (f *FailoverStore) Clear(ctx context.Context, chatID int64) error {
	var primaryErr error
	if f.shouldTryPrimary() {
		primaryErr = f.primary.Clear(ctx, chatID)
		if primaryErr == nil {
			f.markUp()
		} else {
			f.markDown(primaryErr)
		}
	}
	fallbackErr := f.fallback.Clear(ctx, chatID)
	if primaryErr != nil {
		return primaryErr
	}
	return fallbackErr
}
