package store

import (
	"context"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/symfony/lock/distributed/locking"
)

// memcachedDefaultTTL is the TTL a bare Save establishes before any
// caller-requested TTL is translated in via Refresh.
const memcachedDefaultTTL = 30 * time.Second

// memcachedGraceWindow is how far delete's extend-then-delete trick pulls a
// key's TTL in before the final DELETE, so a contender racing the delete
// never observes a stale, long-lived value.
const memcachedGraceWindow = 1 * time.Second

// MemcachedStore is the Memcached Store adapter. Exclusive holds only:
// Memcached has no native CAS-guarded set-add-to-sorted-set primitive to
// express shared/reader locks the way Redis does, so this adapter reports
// Expiring only, not Shared.
type MemcachedStore struct {
	client     *memcache.Client
	defaultTTL time.Duration
}

// MemcachedStoreOption configures a MemcachedStore at construction.
type MemcachedStoreOption func(*MemcachedStore)

// WithMemcachedDefaultTTL overrides the TTL a bare Save establishes before
// a caller-requested TTL is translated in via Refresh.
func WithMemcachedDefaultTTL(ttl time.Duration) MemcachedStoreOption {
	return func(m *MemcachedStore) { m.defaultTTL = ttl }
}

// NewMemcachedStore wraps an existing gomemcache client.
func NewMemcachedStore(client *memcache.Client, opts ...MemcachedStoreOption) *MemcachedStore {
	m := &MemcachedStore{client: client, defaultTTL: memcachedDefaultTTL}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemcachedStore) Identity() string          { return "memcached" }
func (m *MemcachedStore) Expiring() bool            { return true }
func (m *MemcachedStore) DefaultTTL() time.Duration { return m.defaultTTL }

// Save attempts ADD key token ttl. On failure (key already exists), it
// falls through to PutOffExpiration, which handles the self-reacquire case
// (same token, just renewing) and reports conflict for anybody else's.
func (m *MemcachedStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	err = m.client.Add(&memcache.Item{
		Key:        k.Resource(),
		Value:      []byte(state.Token),
		Expiration: expirationSeconds(ttl),
	})
	if err == nil {
		k.ReduceLifetime(ttl)
		return nil
	}
	if err != memcache.ErrNotStored {
		return err
	}

	return m.PutOffExpiration(ctx, k, ttl)
}

// PutOffExpiration reads the item's value and CAS token, compares the
// stored value against the caller's fencing token, and if it matches, CASes
// a new TTL in. A CAS conflict or a value mismatch is reported as
// ErrLockConflicted.
func (m *MemcachedStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	item, err := m.client.Get(k.Resource())
	if err == memcache.ErrCacheMiss {
		return locking.ErrLockConflicted
	}
	if err != nil {
		return err
	}
	if string(item.Value) != state.Token {
		return locking.ErrLockConflicted
	}

	item.Expiration = expirationSeconds(ttl)
	if err := m.client.CompareAndSwap(item); err != nil {
		if err == memcache.ErrCASConflict || err == memcache.ErrNotStored {
			return locking.ErrLockConflicted
		}
		return err
	}

	k.ReduceLifetime(ttl)
	return nil
}

// Delete uses the extend-then-delete trick from spec.md's Memcached
// sketch: pull the TTL down to a short grace window via CAS before issuing
// the DELETE, so a contender that observes the value between the two calls
// still sees it expire promptly rather than finding a long-lived stale
// entry if the DELETE is lost.
func (m *MemcachedStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	item, err := m.client.Get(k.Resource())
	if err == memcache.ErrCacheMiss {
		return nil
	}
	if err != nil {
		return err
	}
	if string(item.Value) != state.Token {
		return nil
	}

	item.Expiration = expirationSeconds(memcachedGraceWindow)
	if err := m.client.CompareAndSwap(item); err != nil && err != memcache.ErrCASConflict && err != memcache.ErrNotStored {
		return err
	}

	if err := m.client.Delete(k.Resource()); err != nil && err != memcache.ErrCacheMiss {
		return err
	}

	return nil
}

func (m *MemcachedStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(m.Identity())
	if err != nil {
		return false, err
	}

	item, err := m.client.Get(k.Resource())
	if err == memcache.ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return string(item.Value) == state.Token, nil
}

// expirationSeconds rounds ttl up to whole seconds, the unit memcache's
// Item.Expiration field uses for relative TTLs.
func expirationSeconds(ttl time.Duration) int32 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return int32(secs)
}

var _ locking.Store = (*MemcachedStore)(nil)
