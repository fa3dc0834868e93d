package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/symfony/lock/distributed/locking"
)

// FileStore backs each resource with an OS file lock (flock(2)/LockFileEx)
// under a configured directory, one *flock.Flock per resource path. Like
// PostgreSQL advisory locks and ZooKeeper, the OS lock lives for the
// holding process's open file handle, not a clock, so FileStore reports
// Expiring() == false and PutOffExpiration is a presence check.
type FileStore struct {
	dir string

	mu     sync.Mutex
	locks  map[string]*flock.Flock
	tokens map[string]string
}

// NewFileStore creates a file-lock Store rooted at dir, which must already
// exist and be writable; lock files are created lazily, one per resource,
// named after the resource with path separators flattened.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:    dir,
		locks:  make(map[string]*flock.Flock),
		tokens: make(map[string]string),
	}
}

func (f *FileStore) Identity() string          { return "file" }
func (f *FileStore) Expiring() bool            { return false }
func (f *FileStore) DefaultTTL() time.Duration { return 0 }

func (f *FileStore) lockFor(resource string) *flock.Flock {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.locks[resource]
	if !ok {
		path := filepath.Join(f.dir, flattenResource(resource)+".lock")
		fl = flock.New(path)
		f.locks[resource] = fl
	}
	return fl
}

func (f *FileStore) recordHolder(resource, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[resource] = token
}

func (f *FileStore) holderToken(resource string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[resource]
	return t, ok
}

func (f *FileStore) clearHolder(resource string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, resource)
}

func (f *FileStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	state, err := k.State(f.Identity())
	if err != nil {
		return err
	}

	if holder, ok := f.holderToken(k.Resource()); ok {
		if holder == state.Token {
			return nil
		}
		return locking.ErrLockConflicted
	}

	fl := f.lockFor(k.Resource())
	ok, err := fl.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return locking.ErrLockConflicted
	}

	f.recordHolder(k.Resource(), state.Token)
	return nil
}

func (f *FileStore) WaitAndSave(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	state, err := k.State(f.Identity())
	if err != nil {
		return err
	}

	for {
		holder, ok := f.holderToken(k.Resource())
		if !ok {
			break
		}
		if holder == state.Token {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	fl := f.lockFor(k.Resource())
	if err := fl.Lock(); err != nil {
		return err
	}

	f.recordHolder(k.Resource(), state.Token)
	return nil
}

// PutOffExpiration is a no-op on a non-expiring backend; it only verifies
// continued presence.
func (f *FileStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	held, err := f.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !held {
		return locking.ErrLockConflicted
	}
	return nil
}

func (f *FileStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(f.Identity())
	if err != nil {
		return err
	}

	holder, ok := f.holderToken(k.Resource())
	if !ok || holder != state.Token {
		return nil
	}

	fl := f.lockFor(k.Resource())
	if err := fl.Unlock(); err != nil {
		return err
	}

	f.clearHolder(k.Resource())
	return nil
}

func (f *FileStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(f.Identity())
	if err != nil {
		return false, err
	}

	holder, ok := f.holderToken(k.Resource())
	return ok && holder == state.Token, nil
}

var _ locking.BlockingExclusive = (*FileStore)(nil)
