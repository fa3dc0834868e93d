package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/symfony/lock/distributed/locking"
)

// SemaphoreStore wraps one golang.org/x/sync/semaphore.Weighted per
// resource, sized at construction. Unlike every other adapter, "shared"
// and "exclusive" are both native here rather than one being a fallback:
// SaveRead acquires weight 1 (one of N slots), Save acquires the full
// weight N in one call. This bounds concurrent access to a finite
// in-process resource (worker slots, connection limits) rather than
// expressing mutual exclusion between distinct processes.
type SemaphoreStore struct {
	n int64

	mu   sync.Mutex
	sems map[string]*resourceSemaphore
}

type resourceSemaphore struct {
	weighted *semaphore.Weighted
	holders  map[string]int64 // token -> weight held
}

// NewSemaphoreStore creates a Store whose resources each admit up to n
// concurrent shared holders, or one exclusive holder occupying the full
// weight.
func NewSemaphoreStore(n int) *SemaphoreStore {
	return &SemaphoreStore{
		n:    int64(n),
		sems: make(map[string]*resourceSemaphore),
	}
}

func (s *SemaphoreStore) Identity() string          { return "semaphore" }
func (s *SemaphoreStore) Expiring() bool            { return false }
func (s *SemaphoreStore) DefaultTTL() time.Duration { return 0 }

func (s *SemaphoreStore) resourceFor(resource string) *resourceSemaphore {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.sems[resource]
	if !ok {
		rs = &resourceSemaphore{
			weighted: semaphore.NewWeighted(s.n),
			holders:  make(map[string]int64),
		}
		s.sems[resource] = rs
	}
	return rs
}

func (s *SemaphoreStore) acquire(ctx context.Context, k *locking.Key, weight int64, blocking bool) error {
	state, err := k.State(s.Identity())
	if err != nil {
		return err
	}

	rs := s.resourceFor(k.Resource())

	s.mu.Lock()
	if _, already := rs.holders[state.Token]; already {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if blocking {
		if err := rs.weighted.Acquire(ctx, weight); err != nil {
			return err
		}
	} else {
		if !rs.weighted.TryAcquire(weight) {
			return locking.ErrLockConflicted
		}
	}

	s.mu.Lock()
	rs.holders[state.Token] = weight
	s.mu.Unlock()

	return nil
}

func (s *SemaphoreStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	return s.acquire(ctx, k, s.n, false)
}

func (s *SemaphoreStore) SaveRead(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	return s.acquire(ctx, k, 1, false)
}

func (s *SemaphoreStore) WaitAndSave(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	return s.acquire(ctx, k, s.n, true)
}

func (s *SemaphoreStore) WaitAndSaveRead(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	return s.acquire(ctx, k, 1, true)
}

// PutOffExpiration is a no-op: a semaphore slot is held for as long as the
// caller retains it, never on a clock.
func (s *SemaphoreStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	held, err := s.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !held {
		return locking.ErrLockConflicted
	}
	return nil
}

func (s *SemaphoreStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(s.Identity())
	if err != nil {
		return err
	}

	rs := s.resourceFor(k.Resource())

	s.mu.Lock()
	weight, ok := rs.holders[state.Token]
	if ok {
		delete(rs.holders, state.Token)
	}
	s.mu.Unlock()

	if ok {
		rs.weighted.Release(weight)
	}
	return nil
}

func (s *SemaphoreStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(s.Identity())
	if err != nil {
		return false, err
	}

	rs := s.resourceFor(k.Resource())

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := rs.holders[state.Token]
	return ok, nil
}

var _ locking.BlockingShared = (*SemaphoreStore)(nil)
