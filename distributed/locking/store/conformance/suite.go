// Package conformance runs eight of the distributed locking specification's
// nine quantified store invariants against any locking.Store implementation
// (serialization refusal is a property of Lock, not of a Store, and is
// tested in distributed/locking's lock_test.go),
// using the gocommons unittest.TestSuite harness the rest of this module's
// tests are built on.
package conformance

import (
	"context"
	"errors"
	"time"

	"github.com/symfony/lock/distributed/locking"
	"github.com/symfony/lock/unittest"
)

// StoreTestSuite runs the store conformance properties against Store.
// Embed it in a backend-specific suite, set Store in SetUpSuite/SetUp, and
// run it via unittest.RunTestSuite.
type StoreTestSuite struct {
	unittest.TestSuite

	// Store under test.
	Store locking.Store

	// ExpiryMargin pads how long TestTTLExpiry waits past the TTL it
	// grants, to absorb scheduling jitter on slower backends.
	ExpiryMargin time.Duration

	// TTLGranularity is the finest TTL increment the backend can actually
	// honor (e.g. Memcached's whole-second expiration field). TestTTLExpiry
	// grants a TTL no finer than this, so a backend that rounds TTLs up
	// isn't asked to expire sooner than it is able to.
	TTLGranularity time.Duration
}

func (s *StoreTestSuite) ctx() context.Context {
	return context.Background()
}

func (s *StoreTestSuite) newKey(resource string) *locking.Key {
	k, err := locking.NewKey(resource)
	if err != nil {
		s.Fatalf("unexpected error constructing key %q: %v", resource, err)
	}
	return k
}

func (s *StoreTestSuite) assertSave(k *locking.Key, ttl time.Duration) {
	if err := s.Store.Save(s.ctx(), k, ttl); err != nil {
		s.Fatalf("unexpected error saving lock: %v", err)
	}
}

func (s *StoreTestSuite) assertSaveConflicted(k *locking.Key, ttl time.Duration) {
	err := s.Store.Save(s.ctx(), k, ttl)
	if !errors.Is(err, locking.ErrLockConflicted) {
		s.Fatalf("expected ErrLockConflicted saving lock, got: %v", err)
	}
}

func (s *StoreTestSuite) assertSaveRead(k *locking.Key, ttl time.Duration) {
	sh, ok := s.Store.(locking.Shared)
	if !ok {
		s.Fatalf("store does not implement Shared")
		return
	}
	if err := sh.SaveRead(s.ctx(), k, ttl); err != nil {
		s.Fatalf("unexpected error saving read lock: %v", err)
	}
}

func (s *StoreTestSuite) assertSaveReadConflicted(k *locking.Key, ttl time.Duration) {
	sh, ok := s.Store.(locking.Shared)
	if !ok {
		s.Fatalf("store does not implement Shared")
		return
	}
	err := sh.SaveRead(s.ctx(), k, ttl)
	if !errors.Is(err, locking.ErrLockConflicted) {
		s.Fatalf("expected ErrLockConflicted saving read lock, got: %v", err)
	}
}

func (s *StoreTestSuite) assertExists(k *locking.Key, expected bool) {
	held, err := s.Store.Exists(s.ctx(), k)
	if err != nil {
		s.Fatalf("unexpected error testing existence: %v", err)
		return
	}
	if held != expected {
		s.Fatalf("expected exists to be %v, but it is %v", expected, held)
	}
}

func (s *StoreTestSuite) assertDelete(k *locking.Key) {
	if err := s.Store.Delete(s.ctx(), k); err != nil {
		s.Fatalf("unexpected error deleting lock: %v", err)
	}
}

// TestExclusivity: if holder A's Save succeeds and A has not released,
// then B's Save with a distinct token fails with ErrLockConflicted.
func (s *StoreTestSuite) TestExclusivity() {
	a := s.newKey("conformance/exclusivity")
	b := s.newKey("conformance/exclusivity")

	s.assertSave(a, time.Minute)
	s.assertSaveConflicted(b, time.Minute)
	s.assertDelete(a)
}

// TestIndependence: operations on k(r) never affect exists(k(r')).
func (s *StoreTestSuite) TestIndependence() {
	r := s.newKey("conformance/independence/r")
	rPrime := s.newKey("conformance/independence/r-prime")

	s.assertSave(r, time.Minute)
	s.assertExists(rPrime, false)
	s.assertDelete(r)
}

// TestIdempotentSave: calling Save twice with the same Key succeeds both
// times.
func (s *StoreTestSuite) TestIdempotentSave() {
	k := s.newKey("conformance/idempotent-save")

	s.assertSave(k, time.Minute)
	s.assertSave(k, time.Minute)
	s.assertDelete(k)
}

// TestNonOwnerDeleteIsNoop: if A's Save holds, B's Delete leaves A's lock
// intact.
func (s *StoreTestSuite) TestNonOwnerDeleteIsNoop() {
	a := s.newKey("conformance/non-owner-delete")
	b := s.newKey("conformance/non-owner-delete")

	s.assertSave(a, time.Minute)

	if err := s.Store.Delete(s.ctx(), b); err != nil {
		s.Fatalf("unexpected error from non-owner delete: %v", err)
	}

	s.assertExists(a, true)
	s.assertDelete(a)
}

// TestRoundTrip: save -> exists==true -> delete -> exists==false.
func (s *StoreTestSuite) TestRoundTrip() {
	k := s.newKey("conformance/round-trip")

	s.assertSave(k, time.Minute)
	s.assertExists(k, true)
	s.assertDelete(k)
	s.assertExists(k, false)
}

// TestTTLExpiry: for expiring stores, after wall-clock ttl+margin,
// Exists returns false without an intervening Delete.
func (s *StoreTestSuite) TestTTLExpiry() {
	if !s.Store.Expiring() {
		s.Logf("store does not expire keys, skipping\n")
		return
	}

	margin := s.ExpiryMargin
	if margin <= 0 {
		margin = 500 * time.Millisecond
	}

	ttl := 200 * time.Millisecond
	if s.TTLGranularity > ttl {
		ttl = s.TTLGranularity
	}

	k := s.newKey("conformance/ttl-expiry")

	s.assertSave(k, ttl)
	time.Sleep(ttl + margin)
	s.assertExists(k, false)
}

// TestSharedExclusiveExclusion: an exclusive hold blocks any shared
// acquisition and vice versa; two shared holds on the same resource may
// coexist.
func (s *StoreTestSuite) TestSharedExclusiveExclusion() {
	if _, ok := s.Store.(locking.Shared); !ok {
		s.Logf("store does not implement Shared, skipping\n")
		return
	}

	exclusive := s.newKey("conformance/shared-exclusive/excl")
	reader1 := s.newKey("conformance/shared-exclusive/shared")
	reader2 := s.newKey("conformance/shared-exclusive/shared")

	s.assertSave(exclusive, time.Minute)
	s.assertSaveReadConflicted(reader1, time.Minute)
	s.assertDelete(exclusive)

	s.assertSaveRead(reader1, time.Minute)
	s.assertSaveRead(reader2, time.Minute)

	blocked := s.newKey("conformance/shared-exclusive/excl")
	s.assertSaveConflicted(blocked, time.Minute)

	s.assertDelete(reader1)
	s.assertDelete(reader2)
}

// TestAutoRelease: dropping a held Lock with autoRelease=true causes
// Exists to return false thereafter.
func (s *StoreTestSuite) TestAutoRelease() {
	k := s.newKey("conformance/auto-release")
	l := locking.NewLock(k, s.Store, locking.WithAutoRelease())

	ok, err := l.Acquire(s.ctx(), false)
	if err != nil {
		s.Fatalf("unexpected error acquiring lock: %v", err)
	}
	if !ok {
		s.Fatalf("expected to acquire lock")
	}

	if err := l.Close(s.ctx()); err != nil {
		s.Fatalf("unexpected error closing lock: %v", err)
	}

	s.assertExists(k, false)
}
