package locking

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// Maximum length of a resource identifier, in bytes, after UTF-8 encoding.
// Backends with a tighter limit (MongoDB's _id, ZooKeeper node names) apply
// their own, stricter accounting on top of this.
const MaxResourceLength = 1024

// FencingTokenSize is the number of random bytes making up a fencing token
// before base64 encoding.
const FencingTokenSize = 32

// StoreState is the per-store state blob a Key carries for one backend
// identity: a fencing token, or whatever else a store needs to prove
// ownership on a subsequent call.
type StoreState struct {
	// Token is the fencing token generated lazily on first use of the Key
	// against a given store identity.
	Token string
}

// Key identifies a locked resource. A Key is shared between a Lock handle
// and the Store it is bound to; it carries per-store ephemeral state
// (fencing tokens) and a local expiration clock, but never a reference back
// to the Store or the Lock that own it, to avoid a cyclic ownership graph.
//
// A Key must never be used concurrently with two Stores of different
// identities, and must not be mutated by more than one goroutine at a time.
type Key struct {
	resource string

	mu           sync.Mutex
	state        map[string]*StoreState
	expiration   *time.Time
	serializable bool
}

// NewKey creates a Key for the given resource identifier. The identifier
// must be valid UTF-8 and no more than MaxResourceLength bytes; callers
// that need a longer or structurally invalid identifier should hash it
// first (each store does so automatically where its own backend requires
// it, per their DSN-specific encoding rules).
func NewKey(resource string) (*Key, error) {
	if len(resource) == 0 {
		return nil, fmt.Errorf("%w: resource identifier must not be empty", ErrInvalidArgument)
	}
	if len(resource) > MaxResourceLength {
		return nil, fmt.Errorf("%w: resource identifier exceeds %d bytes", ErrInvalidArgument, MaxResourceLength)
	}

	return &Key{
		resource:     resource,
		state:        make(map[string]*StoreState),
		serializable: true,
	}, nil
}

// Resource returns the key's immutable resource identifier.
func (k *Key) Resource() string {
	return k.resource
}

// State returns the per-store state for the given store identity, creating
// a fresh fencing token lazily on first access. The same Key must only ever
// be handed to one store identity over its lifetime (reset with Reset to
// reuse it elsewhere).
func (k *Key) State(storeIdentity string) (*StoreState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if s, ok := k.state[storeIdentity]; ok {
		return s, nil
	}

	token, err := newFencingToken()
	if err != nil {
		return nil, err
	}

	s := &StoreState{Token: token}
	k.state[storeIdentity] = s
	return s, nil
}

// Reset clears all per-store state and the expiration clock, returning the
// Key to its freshly-constructed condition so it can be reused for a new
// acquisition cycle.
func (k *Key) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.state = make(map[string]*StoreState)
	k.expiration = nil
}

// ResetExpiration clears the Key's local expiration clock without touching
// per-store state. Called at the start of acquire/refresh.
func (k *Key) ResetExpiration() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.expiration = nil
}

// SetExpiresAt unconditionally sets the Key's local expiration instant.
// Stores call this after a successful save/putOff to record what they
// believe the backend deadline now is.
func (k *Key) SetExpiresAt(at time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.expiration = &at
}

// ReduceLifetime lowers the Key's expiration instant to now+ttl, but only
// if that is earlier than the current deadline (sticky minimum) or no
// deadline has been set yet.
func (k *Key) ReduceLifetime(ttl time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()

	candidate := time.Now().Add(ttl)
	if k.expiration == nil || candidate.Before(*k.expiration) {
		k.expiration = &candidate
	}
}

// IsExpired reports whether the Key's local deadline has elapsed. A Key
// with no deadline set is never expired. Pure function over local state;
// never contacts a backend.
func (k *Key) IsExpired() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.expiration == nil {
		return false
	}
	return !time.Now().Before(*k.expiration)
}

// RemainingLifetime returns how long remains until the Key's local deadline,
// or zero if no deadline is set or it has already elapsed.
func (k *Key) RemainingLifetime() time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.expiration == nil {
		return 0
	}

	d := time.Until(*k.expiration)
	if d < 0 {
		return 0
	}
	return d
}

// MarkNonSerializable clears the serializable flag. Called by stores whose
// holder identity cannot survive a process boundary (e.g. ZooKeeper, whose
// lock is tied to an ephemeral session).
func (k *Key) MarkNonSerializable() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.serializable = false
}

// Serializable reports whether this Key's identity is safe to transport.
func (k *Key) Serializable() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.serializable
}

func newFencingToken() (string, error) {
	buf := make([]byte, FencingTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock: generating fencing token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
