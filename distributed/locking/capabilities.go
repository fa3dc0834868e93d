package locking

import (
	"context"
	"time"
)

// Persisting is the base store capability: non-blocking, exclusive
// write-locking of a resource.
//
// Save and SaveRead (on Shared) are idempotent for the same holder:
// re-saving a Key that already holds the resource under the same fencing
// token succeeds, typically by refreshing the backend's TTL. Re-saving
// with a different token on a still-held resource fails with
// ErrLockConflicted.
//
// Delete is a no-op when the caller is not the current holder; it must
// never release a lock owned by a different token. Exists reports true iff
// the resource is currently held by this Key's token, not merely by
// somebody.
type Persisting interface {
	// Identity names this store implementation, used as the key into a
	// Key's per-store state map. Typically the backend's DSN scheme.
	Identity() string

	// Expiring reports whether this store enforces TTLs (and therefore
	// whether PutOffExpiration does meaningful work). Stores such as
	// PostgreSQL advisory locks and ZooKeeper hold for session/connection
	// lifetime rather than a clock, and report false here.
	Expiring() bool

	// DefaultTTL is the deadline a bare Save/WaitAndSave call establishes
	// before any caller-requested TTL is translated in via a follow-up
	// Refresh. Non-expiring stores may return any fixed placeholder; it
	// is never surfaced to the backend.
	DefaultTTL() time.Duration

	Save(ctx context.Context, k *Key, ttl time.Duration) error
	PutOffExpiration(ctx context.Context, k *Key, ttl time.Duration) error
	Delete(ctx context.Context, k *Key) error
	Exists(ctx context.Context, k *Key) (bool, error)
}

// Shared extends Persisting with many-readers/one-writer acquisition.
type Shared interface {
	Persisting

	SaveRead(ctx context.Context, k *Key, ttl time.Duration) error
}

// BlockingExclusive extends Persisting with a native blocking acquire: the
// calling goroutine suspends until the exclusive lock is granted or an
// unrecoverable error occurs, instead of the coordinator's polling
// fallback.
type BlockingExclusive interface {
	Persisting

	WaitAndSave(ctx context.Context, k *Key, ttl time.Duration) error
}

// BlockingShared extends Shared with a native blocking shared acquire.
type BlockingShared interface {
	Shared

	WaitAndSaveRead(ctx context.Context, k *Key, ttl time.Duration) error
}

// Store is the union every backend adapter's concrete type satisfies at
// minimum. Individual adapters additionally implement whichever of Shared,
// BlockingExclusive or BlockingShared their backend supports; the
// coordinator discovers the ceiling with a type assertion rather than
// requiring every method to exist on every store.
type Store interface {
	Persisting
}
