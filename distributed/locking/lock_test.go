package locking_test

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symfony/lock/distributed/locking"
	"github.com/symfony/lock/distributed/locking/store"
)

func newLockOn(t *testing.T, s locking.Store, resource string, opts ...locking.LockOption) *locking.Lock {
	t.Helper()
	k, err := locking.NewKey(resource)
	require.NoError(t, err)
	return locking.NewLock(k, s, opts...)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	l := newLockOn(t, s, "lock-test/roundtrip")

	ok, err := l.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok, "expected acquire to succeed")
	assert.True(t, l.Dirty(), "expected lock to be marked dirty after acquire")

	held, err := l.IsAcquired(ctx)
	require.NoError(t, err)
	assert.True(t, held, "expected IsAcquired to report held")

	require.NoError(t, l.Release(ctx))
	assert.False(t, l.Dirty(), "expected lock to be clean after release")
}

func TestAcquireNonBlockingConflictReturnsFalse(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	first := newLockOn(t, s, "lock-test/conflict")
	second := newLockOn(t, s, "lock-test/conflict")

	ok, err := first.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok, "expected first acquire to succeed")

	ok, err = second.Acquire(ctx, false)
	assert.NoError(t, err, "expected non-blocking conflict to report no error")
	assert.False(t, ok, "expected second non-blocking acquire to fail")
}

func TestAcquireBlockingWaitsForRelease(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	first := newLockOn(t, s, "lock-test/blocking")
	second := newLockOn(t, s, "lock-test/blocking")

	ok, err := first.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok, "expected first acquire to succeed")

	done := make(chan struct{})
	go func() {
		defer close(done)
		ok, err := second.Acquire(ctx, true)
		assert.NoError(t, err)
		assert.True(t, ok, "expected blocking acquire to eventually succeed")
	}()

	select {
	case <-done:
		t.Fatalf("blocking acquire returned before the first lock was released")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Release(ctx))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("blocking acquire never returned after release")
	}
}

func TestRefreshRequiresTTL(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	l := newLockOn(t, s, "lock-test/refresh-no-ttl")
	ok, err := l.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok, "expected acquire to succeed")

	assert.ErrorIs(t, l.Refresh(ctx, 0), locking.ErrInvalidTtl)
}

func TestAutoReleaseOnClose(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	l := newLockOn(t, s, "lock-test/auto-release", locking.WithAutoRelease())
	ok, err := l.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok, "expected acquire to succeed")

	require.NoError(t, l.Close(ctx))

	other := newLockOn(t, s, "lock-test/auto-release")
	ok, err = other.Acquire(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok, "expected resource to be free after auto-release")
}

func TestLockRefusesSerialization(t *testing.T) {
	s := store.NewMemoryStore()
	l := newLockOn(t, s, "lock-test/serialization")

	_, err := json.Marshal(l)
	assert.Error(t, err, "expected json.Marshal to fail for a Lock handle")

	var buf gobBuffer
	assert.Error(t, gob.NewEncoder(&buf).Encode(l), "expected gob.Encode to fail for a Lock handle")
}

// gobBuffer is a minimal io.Writer so the gob encoder has somewhere to
// write to before it reaches GobEncode and fails.
type gobBuffer struct {
	data []byte
}

func (b *gobBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
