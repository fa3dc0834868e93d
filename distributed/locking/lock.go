package locking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	log "github.com/symfony/lock/logging"
)

// pollInterval is the base polling interval used when a store lacks a
// native blocking acquire. Jittered by ±10% to avoid a thundering herd of
// waiters retrying in lockstep against a shared backend.
const pollInterval = 100 * time.Millisecond

// Lock is the stateful handle a caller holds on a single resource. It binds
// a Key to a Store, translating acquire/acquireRead/refresh/release into
// backend calls and applying polling fallback, expiry compensation and
// best-effort auto-release on top of whatever the Store honors natively.
//
// A Lock is not safe for concurrent use by multiple goroutines. Distinct
// Lock handles for the same resource may run on separate goroutines or
// processes and are coordinated exclusively through the Store.
type Lock struct {
	key   *Key
	store Store

	ttl         time.Duration
	autoRelease bool

	dirty bool
}

// LockOption configures a Lock at construction.
type LockOption func(*Lock)

// WithTTL fixes the TTL a Lock will request of an Expiring store once
// acquired, and the default used by Refresh when none is given explicitly.
func WithTTL(ttl time.Duration) LockOption {
	return func(l *Lock) { l.ttl = ttl }
}

// WithAutoRelease marks the Lock for best-effort release on Close, if it
// still believes it holds the resource at that point.
func WithAutoRelease() LockOption {
	return func(l *Lock) { l.autoRelease = true }
}

// NewLock binds a Key to a Store, ready for acquisition.
func NewLock(key *Key, store Store, opts ...LockOption) *Lock {
	l := &Lock{key: key, store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dirty reports the locally-held belief that this handle currently owns
// the resource at the backend. It may be conservatively stale; call
// IsAcquired to re-read the backend.
func (l *Lock) Dirty() bool {
	return l.dirty
}

// IsExpired reports whether the Key's local deadline has elapsed. Pure
// over local state; never contacts the backend.
func (l *Lock) IsExpired() bool {
	return l.key.IsExpired()
}

// RemainingLifetime reports how long remains until the Key's local
// deadline, per Key.RemainingLifetime.
func (l *Lock) RemainingLifetime() time.Duration {
	return l.key.RemainingLifetime()
}

// IsAcquired re-reads the backend via Store.Exists, updating Dirty as a
// side effect, and returns the (racy but authoritative) result.
func (l *Lock) IsAcquired(ctx context.Context) (bool, error) {
	held, err := l.store.Exists(ctx, l.key)
	if err != nil {
		return false, err
	}
	l.dirty = held
	return held, nil
}

// Acquire attempts to obtain an exclusive hold on the resource. In
// blocking mode it suspends until granted (natively, if the store
// implements BlockingExclusive, or via a jittered polling loop otherwise).
// In non-blocking mode it makes a single attempt and returns false,nil on
// conflict rather than erroring.
func (l *Lock) Acquire(ctx context.Context, blocking bool) (bool, error) {
	l.key.ResetExpiration()
	ttl := l.store.DefaultTTL()

	var err error
	if blocking {
		if be, ok := l.store.(BlockingExclusive); ok {
			err = be.WaitAndSave(ctx, l.key, ttl)
		} else {
			err = l.pollUntilSaved(ctx, ttl, func(ctx context.Context, ttl time.Duration) error {
				return l.store.Save(ctx, l.key, ttl)
			})
		}
	} else {
		err = l.store.Save(ctx, l.key, ttl)
	}

	return l.finishAcquire(ctx, blocking, err)
}

// AcquireRead attempts to obtain a shared (read) hold on the resource. If
// the store lacks Shared capability entirely, the coordinator silently
// promotes to an exclusive Acquire. If the store supports Shared but not
// BlockingShared, a blocking request falls back to polling the shared
// acquire rather than promoting to exclusive.
func (l *Lock) AcquireRead(ctx context.Context, blocking bool) (bool, error) {
	sh, ok := l.store.(Shared)
	if !ok {
		return l.Acquire(ctx, blocking)
	}

	l.key.ResetExpiration()
	ttl := l.store.DefaultTTL()

	var err error
	if blocking {
		if bs, ok := l.store.(BlockingShared); ok {
			err = bs.WaitAndSaveRead(ctx, l.key, ttl)
		} else {
			err = l.pollUntilSaved(ctx, ttl, func(ctx context.Context, ttl time.Duration) error {
				return sh.SaveRead(ctx, l.key, ttl)
			})
		}
	} else {
		err = sh.SaveRead(ctx, l.key, ttl)
	}

	return l.finishAcquire(ctx, blocking, err)
}

// finishAcquire implements the shared tail of acquire/acquireRead: error
// translation, dirty bookkeeping, the TTL-translating refresh and the
// expiry-loss compensation.
func (l *Lock) finishAcquire(ctx context.Context, blocking bool, err error) (bool, error) {
	if err != nil {
		if errors.Is(err, ErrLockConflicted) {
			if !blocking {
				l.dirty = false
				return false, nil
			}
			// A conflict surfacing from a blocking call is unexpected
			// (the polling loop only returns once it stops seeing
			// conflicts); propagate rather than silently retrying.
			return false, err
		}
		return false, acquiringError(err)
	}

	l.dirty = true
	log.Debugf("acquired lock: %s", l.key.Resource())

	if l.ttl > 0 {
		if rerr := l.Refresh(ctx, l.ttl); rerr != nil {
			return false, rerr
		}
	}

	if l.key.IsExpired() {
		l.bestEffortRelease(ctx)
		return false, ErrLockExpired
	}

	return true, nil
}

// pollUntilSaved retries save until it stops returning ErrLockConflicted,
// sleeping a jittered pollInterval between attempts.
func (l *Lock) pollUntilSaved(ctx context.Context, ttl time.Duration, save func(context.Context, time.Duration) error) error {
	for {
		err := save(ctx, ttl)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLockConflicted) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitteredPollInterval()):
		}
	}
}

func jitteredPollInterval() time.Duration {
	deltaMs := rand.IntN(21) - 10 // -10..10
	return pollInterval + time.Duration(deltaMs)*time.Millisecond
}

// Refresh extends the backend deadline. ttl defaults to the value fixed at
// construction via WithTTL; a non-positive value with no configured
// default is an invalid argument.
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = l.ttl
	}
	if ttl <= 0 {
		return ErrInvalidTtl
	}

	l.key.ResetExpiration()

	err := l.store.PutOffExpiration(ctx, l.key, ttl)
	if err != nil {
		if errors.Is(err, ErrLockConflicted) {
			l.dirty = false
			return err
		}
		return acquiringError(err)
	}

	l.dirty = true

	if l.key.IsExpired() {
		l.bestEffortRelease(ctx)
		return ErrLockExpired
	}

	return nil
}

// Release deletes the backend hold and double-checks via Exists that the
// resource no longer appears held by this caller, guarding against
// backends whose delete silently failed to reach durable state.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.store.Delete(ctx, l.key); err != nil {
		if errors.Is(err, ErrLockReleasing) {
			return err
		}
		return releasingError(err)
	}

	l.dirty = false

	held, err := l.store.Exists(ctx, l.key)
	if err != nil {
		return releasingError(err)
	}
	if held {
		return fmt.Errorf("%w: still locked", ErrLockReleasing)
	}

	return nil
}

// bestEffortRelease is used for expiry-loss compensation: a secondary
// failure here must never mask the Expired error the caller is about to
// see, so it is logged and swallowed.
func (l *Lock) bestEffortRelease(ctx context.Context) {
	if err := l.Release(ctx); err != nil {
		log.Warnf("best-effort release after expiry loss failed for %s: %v", l.key.Resource(), err)
	}
}

// Close performs best-effort auto-release: if the Lock was constructed
// with WithAutoRelease and still believes it holds the resource, it
// attempts a release and swallows any failure (there is no caller left to
// receive it). Go has no scoped destructors; Close is the explicit
// substitute and should be called via defer. Relying on a finalizer
// instead is not supported.
func (l *Lock) Close(ctx context.Context) error {
	if !l.autoRelease || !l.dirty {
		return nil
	}

	held, err := l.IsAcquired(ctx)
	if err != nil || !held {
		return nil
	}

	l.bestEffortRelease(ctx)
	return nil
}

// GobEncode refuses serialization: a Lock holds process-local identity
// (an open Store reference, in-flight state) that cannot be transported.
func (l *Lock) GobEncode() ([]byte, error) {
	return nil, errors.New("lock: Lock handles cannot be serialized")
}

// MarshalJSON refuses serialization for the same reason as GobEncode.
func (l *Lock) MarshalJSON() ([]byte, error) {
	return nil, errors.New("lock: Lock handles cannot be serialized")
}
