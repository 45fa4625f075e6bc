package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, 30*time.Minute), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := testRedisStore(t)
	ctx := context.Background()

	sess := &Session{
		ChatID:      42,
		State:       "ask_slot",
		ClientName:  "Maria",
		ClientPhone: "+5511999990000",
		StaffID:     2,
		StartUTC:    time.Date(2026, time.April, 1, 13, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Set(ctx, sess))

	got, err := store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ask_slot", got.State)
	assert.Equal(t, int64(2), got.StaffID)
	assert.True(t, got.StartUTC.Equal(sess.StartUTC))
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestRedisStoreMissingIsNilNotError(t *testing.T) {
	store, _ := testRedisStore(t)

	got, err := store.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := testRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Session{ChatID: 42, State: "ask_name"}))
	mr.FastForward(31 * time.Minute)

	got, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreClear(t *testing.T) {
	store, _ := testRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Session{ChatID: 42, State: "confirm"}))
	require.NoError(t, store.Clear(ctx, 42))

	got, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	sess := &Session{ChatID: 1, State: "ask_date", StaffName: "Dr. Silva"}
	require.NoError(t, store.Set(ctx, sess))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ask_date", got.State)

	// The returned session is a copy; mutating it must not leak back.
	got.State = "mutated"
	again, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ask_date", again.State)
}

func TestMemoryStoreCleanup(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Session{ChatID: 1}))
	require.NoError(t, store.Set(ctx, &Session{ChatID: 2}))

	store.mu.Lock()
	store.sessions[1].UpdatedAt = time.Now().Add(-2 * time.Minute)
	store.mu.Unlock()

	assert.Equal(t, 1, store.Cleanup())

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// flakyStore fails every call until healed.
type flakyStore struct {
	inner  Store
	broken bool
	calls  int
}

func (f *flakyStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	f.calls++
	if f.broken {
		return nil, errors.New("connection refused")
	}
	return f.inner.Get(ctx, chatID)
}

func (f *flakyStore) Set(ctx context.Context, session *Session) error {
	f.calls++
	if f.broken {
		return errors.New("connection refused")
	}
	return f.inner.Set(ctx, session)
}

func (f *flakyStore) Clear(ctx context.Context, chatID int64) error {
	f.calls++
	if f.broken {
		return errors.New("connection refused")
	}
	return f.inner.Clear(ctx, chatID)
}

func TestFailoverUsesFallbackWhenPrimaryDown(t *testing.T) {
	primary := &flakyStore{inner: NewMemoryStore(time.Minute), broken: true}
	fallback := NewMemoryStore(time.Minute)
	store := NewFailoverStore(primary, fallback, nil)
	ctx := context.Background()

	sess := &Session{ChatID: 7, State: "ask_phone"}
	require.NoError(t, store.Set(ctx, sess))

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ask_phone", got.State)
}

func TestFailoverSkipsPrimaryUntilRecoveryWindow(t *testing.T) {
	primary := &flakyStore{inner: NewMemoryStore(time.Minute), broken: true}
	fallback := NewMemoryStore(time.Minute)
	store := NewFailoverStore(primary, fallback, nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Session{ChatID: 7}))
	callsAfterFailure := primary.calls

	// Further traffic inside the recovery window goes straight to the
	// fallback without probing the dead primary.
	_, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, &Session{ChatID: 8}))
	assert.Equal(t, callsAfterFailure, primary.calls)
}

func TestFailoverRecoversPrimary(t *testing.T) {
	primary := &flakyStore{inner: NewMemoryStore(time.Minute), broken: true}
	fallback := NewMemoryStore(time.Minute)
	store := NewFailoverStore(primary, fallback, nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Session{ChatID: 7}))
	assert.True(t, store.isDown.Load())

	// Heal the primary and age past the recovery window.
	primary.broken = false
	store.mu.Lock()
	store.lastCheck = time.Now().Add(-2 * recoveryInterval)
	store.mu.Unlock()

	require.NoError(t, store.Set(ctx, &Session{ChatID: 9}))
	assert.False(t, store.isDown.Load())

	got, err := primary.inner.Get(ctx, 9)
	require.NoError(t, err)
	assert.NotNil(t, got, "writes return to the primary after recovery")
}

func TestFailoverClearRemovesBothCopies(t *testing.T) {
	primary := &flakyStore{inner: NewMemoryStore(time.Minute)}
	fallback := NewMemoryStore(time.Minute)
	store := NewFailoverStore(primary, fallback, nil)
	ctx := context.Background()

	require.NoError(t, primary.inner.Set(ctx, &Session{ChatID: 7}))
	require.NoError(t, fallback.Set(ctx, &Session{ChatID: 7}))

	require.NoError(t, store.Clear(ctx, 7))

	fromPrimary, _ := primary.inner.Get(ctx, 7)
	fromFallback, _ := fallback.Get(ctx, 7)
	assert.Nil(t, fromPrimary)
	assert.Nil(t, fromFallback)
}
