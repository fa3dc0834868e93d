package store

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samuel/go-zookeeper/zk"

	"github.com/symfony/lock/distributed/locking"
	log "github.com/symfony/lock/logging"
	"github.com/symfony/lock/zkutils"
)

// ZooKeeperStore backs each resource with a single ephemeral node holding
// the current holder's fencing token as its data. Locks are
// session-lifetime, not TTL-based: PutOffExpiration is a no-op that
// verifies continued presence, and Keys acquired through this store are
// marked non-serializable, since session identity cannot migrate across
// processes.
type ZooKeeperStore struct {
	cm   *zkutils.ConnMan
	acl  []zk.ACL
	root string
}

// NewZooKeeperStore creates a ZooKeeper-backed store rooted at the given
// path prefix (created recursively on first use).
func NewZooKeeperStore(cm *zkutils.ConnMan, root string, acl []zk.ACL) *ZooKeeperStore {
	return &ZooKeeperStore{
		cm:   cm,
		acl:  acl,
		root: strings.TrimRight(root, "/"),
	}
}

func (z *ZooKeeperStore) Identity() string          { return "zookeeper" }
func (z *ZooKeeperStore) Expiring() bool            { return false }
func (z *ZooKeeperStore) DefaultTTL() time.Duration { return 0 }

// flattenResource maps a resource identifier onto a single ZooKeeper node
// name: if it contains no '/' it is used as-is, otherwise '/' is replaced
// with '-' and a SHA-1 of the original is appended to keep "a/b" and "a-b"
// from colliding onto the same flattened name.
func flattenResource(resource string) string {
	if !strings.Contains(resource, "/") {
		return resource
	}

	flattened := strings.ReplaceAll(resource, "/", "-")
	sum := sha1.Sum([]byte(resource))
	return fmt.Sprintf("%s-%x", flattened, sum)
}

func (z *ZooKeeperStore) nodePath(resource string) string {
	return fmt.Sprintf("%s/%s", z.root, flattenResource(resource))
}

// trySaveAt attempts to create (or idempotently re-confirm) the ephemeral
// lock node at path for k's fencing token. Returns ErrLockConflicted if a
// different token currently holds it.
func (z *ZooKeeperStore) trySaveAt(path string, k *locking.Key) error {
	state, err := k.State(z.Identity())
	if err != nil {
		return err
	}

	_, err = z.cm.Conn.Create(path, []byte(state.Token), zk.FlagEphemeral, z.acl)
	switch err {
	case nil:
		k.MarkNonSerializable()
		return nil

	case zk.ErrNodeExists:
		data, _, gerr := z.cm.Conn.Get(path)
		if gerr != nil {
			if gerr == zk.ErrNoNode {
				// Raced with the holder's release; retry once.
				return z.trySaveAt(path, k)
			}
			return gerr
		}
		if string(data) == state.Token {
			k.MarkNonSerializable()
			return nil
		}
		return locking.ErrLockConflicted

	case zk.ErrNoNode:
		if cerr := zkutils.CreateRecursively(z.cm.Conn, z.root, z.acl); cerr != nil {
			return cerr
		}
		return z.trySaveAt(path, k)

	default:
		return err
	}
}

func (z *ZooKeeperStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	return z.trySaveAt(z.nodePath(k.Resource()), k)
}

func (z *ZooKeeperStore) WaitAndSave(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	path := z.nodePath(k.Resource())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := z.trySaveAt(path, k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, locking.ErrLockConflicted) {
			if !zkutils.IsErrorRecoverable(err) {
				return err
			}
			log.Warnf("error creating lock node %s, retrying: %v", path, err)
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		exists, _, eventCh, werr := z.cm.Conn.ExistsW(path)
		if werr != nil {
			if !zkutils.IsErrorRecoverable(werr) {
				return werr
			}
			continue
		}
		if !exists {
			continue
		}

		select {
		case <-eventCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PutOffExpiration is a no-op on ZooKeeper: advisory-lock-like backends
// never expire on their own, so this only verifies continued presence.
func (z *ZooKeeperStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	held, err := z.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !held {
		return locking.ErrLockConflicted
	}
	return nil
}

func (z *ZooKeeperStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(z.Identity())
	if err != nil {
		return err
	}

	path := z.nodePath(k.Resource())

	data, _, err := z.cm.Conn.Get(path)
	if err == zk.ErrNoNode {
		return nil
	}
	if err != nil {
		return err
	}
	if string(data) != state.Token {
		return nil
	}

	if err := z.cm.Conn.Delete(path, -1); err != nil && err != zk.ErrNoNode {
		return err
	}
	return nil
}

func (z *ZooKeeperStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(z.Identity())
	if err != nil {
		return false, err
	}

	data, _, err := z.cm.Conn.Get(z.nodePath(k.Resource()))
	if err == zk.ErrNoNode {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return string(data) == state.Token, nil
}

var _ locking.BlockingExclusive = (*ZooKeeperStore)(nil)
