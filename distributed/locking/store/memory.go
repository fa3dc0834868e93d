// Package store provides one Store adapter per backend named in the
// distributed locking specification: an in-process map, Redis, Memcached,
// MongoDB, PostgreSQL advisory locks, ZooKeeper, flock-style file locks, a
// weighted semaphore and a plain relational table.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/symfony/lock/distributed/locking"
)

// recheckInterval bounds how long a blocking MemoryStore wait can go
// without rechecking, so that lazily-expired holders (nobody actively
// sweeps expired entries) are still noticed by a waiter even if no
// Delete ever arrives to broadcast a wake-up.
const recheckInterval = 50 * time.Millisecond

// memoryDefaultTTL is the TTL established by a bare Save/SaveRead call
// before any caller-requested TTL is translated in via Refresh.
const memoryDefaultTTL = 30 * time.Second

// resourceState is the per-resource record the teacher's mock lock
// provider kept as "locker + waiters"; generalized here to carry an
// exclusive writer token and a set of shared reader tokens, each with its
// own expiry, per spec's in-memory backend sketch.
type resourceState struct {
	writer          string
	writerExpiresAt time.Time
	readers         map[string]time.Time
	waiters         []chan struct{}
}

// MemoryStore is the in-memory Store backend: a mutex-guarded map from
// resource to holder state. Used standalone, and as the intra-process
// guard composed into the PostgreSQL advisory store.
type MemoryStore struct {
	mu         sync.Mutex
	resources  map[string]*resourceState
	defaultTTL time.Duration
}

// MemoryStoreOption configures a MemoryStore at construction.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryDefaultTTL overrides the TTL a bare Save establishes before a
// caller-requested TTL is translated in via Refresh.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryStoreOption {
	return func(m *MemoryStore) { m.defaultTTL = ttl }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		resources:  make(map[string]*resourceState),
		defaultTTL: memoryDefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Identity() string        { return "memory" }
func (m *MemoryStore) Expiring() bool          { return true }
func (m *MemoryStore) DefaultTTL() time.Duration { return m.defaultTTL }

func (m *MemoryStore) resourceLocked(resource string) *resourceState {
	rs, ok := m.resources[resource]
	if !ok {
		rs = &resourceState{}
		m.resources[resource] = rs
	}
	return rs
}

// expireLocked lazily reaps any writer/reader whose deadline has already
// passed. Called on every access; no background sweep runs.
func expireLocked(rs *resourceState) {
	now := time.Now()

	if rs.writer != "" && !rs.writerExpiresAt.IsZero() && !now.Before(rs.writerExpiresAt) {
		rs.writer = ""
		rs.writerExpiresAt = time.Time{}
	}

	for token, exp := range rs.readers {
		if !exp.IsZero() && !now.Before(exp) {
			delete(rs.readers, token)
		}
	}
}

// notifyLocked wakes every current waiter for a resource. Waiters re-check
// their own condition on wake, so a broadcast rather than a hand-off to a
// single waiter is sufficient and avoids starving shared acquirers behind
// an exclusive one.
func notifyLocked(rs *resourceState) {
	for _, w := range rs.waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	rs.waiters = nil
}

func (m *MemoryStore) attemptExclusive(k *locking.Key, ttl time.Duration) (ok bool, waitCh <-chan struct{}, err error) {
	state, err := k.State(m.Identity())
	if err != nil {
		return false, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.resourceLocked(k.Resource())
	expireLocked(rs)

	if rs.writer == state.Token {
		rs.writerExpiresAt = time.Now().Add(ttl)
		k.ReduceLifetime(ttl)
		return true, nil, nil
	}

	if rs.writer != "" || len(rs.readers) > 0 {
		ch := make(chan struct{}, 1)
		rs.waiters = append(rs.waiters, ch)
		return false, ch, nil
	}

	rs.writer = state.Token
	rs.writerExpiresAt = time.Now().Add(ttl)
	k.ReduceLifetime(ttl)
	return true, nil, nil
}

func (m *MemoryStore) attemptShared(k *locking.Key, ttl time.Duration) (ok bool, waitCh <-chan struct{}, err error) {
	state, err := k.State(m.Identity())
	if err != nil {
		return false, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.resourceLocked(k.Resource())
	expireLocked(rs)

	if rs.writer == state.Token {
		return true, nil, nil
	}

	if rs.writer != "" {
		ch := make(chan struct{}, 1)
		rs.waiters = append(rs.waiters, ch)
		return false, ch, nil
	}

	if rs.readers == nil {
		rs.readers = make(map[string]time.Time)
	}
	rs.readers[state.Token] = time.Now().Add(ttl)
	k.ReduceLifetime(ttl)
	return true, nil, nil
}

func (m *MemoryStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	ok, _, err := m.attemptExclusive(k, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return locking.ErrLockConflicted
	}
	return nil
}

func (m *MemoryStore) SaveRead(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	ok, _, err := m.attemptShared(k, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return locking.ErrLockConflicted
	}
	return nil
}

func (m *MemoryStore) WaitAndSave(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	for {
		ok, waitCh, err := m.attemptExclusive(k, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-waitCh:
		case <-time.After(recheckInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *MemoryStore) WaitAndSaveRead(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	for {
		ok, waitCh, err := m.attemptShared(k, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-waitCh:
		case <-time.After(recheckInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *MemoryStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.resources[k.Resource()]
	if !ok {
		return locking.ErrLockConflicted
	}
	expireLocked(rs)

	if rs.writer == state.Token {
		rs.writerExpiresAt = time.Now().Add(ttl)
		k.ReduceLifetime(ttl)
		return nil
	}
	if _, held := rs.readers[state.Token]; held {
		rs.readers[state.Token] = time.Now().Add(ttl)
		k.ReduceLifetime(ttl)
		return nil
	}

	return locking.ErrLockConflicted
}

func (m *MemoryStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.resources[k.Resource()]
	if !ok {
		return nil
	}
	expireLocked(rs)

	changed := false
	if rs.writer == state.Token {
		rs.writer = ""
		rs.writerExpiresAt = time.Time{}
		changed = true
	}
	if _, held := rs.readers[state.Token]; held {
		delete(rs.readers, state.Token)
		changed = true
	}

	if changed {
		notifyLocked(rs)
	}

	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(m.Identity())
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.resources[k.Resource()]
	if !ok {
		return false, nil
	}
	expireLocked(rs)

	if rs.writer == state.Token {
		return true, nil
	}
	_, held := rs.readers[state.Token]
	return held, nil
}

var (
	_ locking.BlockingShared = (*MemoryStore)(nil)
)
