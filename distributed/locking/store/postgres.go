package store

import (
	"context"
	"hash/crc32"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/symfony/lock/distributed/locking"
)

// PostgresAdvisoryStore backs each resource with a PostgreSQL session-level
// advisory lock keyed by crc32(resource). Advisory locks never expire on
// their own, so PutOffExpiration only verifies continued presence, and an
// in-memory guard is composed in front of the database round-trip to catch
// same-connection-pool contenders before ever reaching Postgres — a second
// Lock handle sharing a pooled connection with the first would otherwise
// see its own advisory lock as already held and misreport success.
type PostgresAdvisoryStore struct {
	pool  *pgxpool.Pool
	guard *MemoryStore
}

// NewPostgresAdvisoryStore wraps an existing pgx connection pool. The
// caller owns the pool's lifecycle.
func NewPostgresAdvisoryStore(pool *pgxpool.Pool) *PostgresAdvisoryStore {
	return &PostgresAdvisoryStore{
		pool:  pool,
		guard: NewMemoryStore(WithMemoryDefaultTTL(0)),
	}
}

func (p *PostgresAdvisoryStore) Identity() string          { return "pgsql-advisory" }
func (p *PostgresAdvisoryStore) Expiring() bool            { return false }
func (p *PostgresAdvisoryStore) DefaultTTL() time.Duration { return 0 }

func objID(resource string) int64 {
	return int64(int32(crc32.ChecksumIEEE([]byte(resource))))
}

func (p *PostgresAdvisoryStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if err := p.guard.Save(ctx, k, ttl); err != nil {
		return err
	}

	var acquired bool
	err := p.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", objID(k.Resource())).Scan(&acquired)
	if err != nil {
		p.guard.Delete(ctx, k)
		return err
	}
	if !acquired {
		p.guard.Delete(ctx, k)
		return locking.ErrLockConflicted
	}

	return nil
}

func (p *PostgresAdvisoryStore) SaveRead(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if err := p.guard.SaveRead(ctx, k, ttl); err != nil {
		return err
	}

	var acquired bool
	err := p.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock_shared($1)", objID(k.Resource())).Scan(&acquired)
	if err != nil {
		p.guard.Delete(ctx, k)
		return err
	}
	if !acquired {
		p.guard.Delete(ctx, k)
		return locking.ErrLockConflicted
	}

	return nil
}

func (p *PostgresAdvisoryStore) WaitAndSave(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if err := p.guard.WaitAndSave(ctx, k, ttl); err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", objID(k.Resource())); err != nil {
		p.guard.Delete(ctx, k)
		return err
	}

	return nil
}

func (p *PostgresAdvisoryStore) WaitAndSaveRead(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if err := p.guard.WaitAndSaveRead(ctx, k, ttl); err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx, "SELECT pg_advisory_lock_shared($1)", objID(k.Resource())); err != nil {
		p.guard.Delete(ctx, k)
		return err
	}

	return nil
}

// PutOffExpiration is a no-op on advisory locks, which never expire; it
// only verifies continued presence, per spec.md's Postgres sketch.
func (p *PostgresAdvisoryStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	held, err := p.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !held {
		return locking.ErrLockConflicted
	}
	return nil
}

// Delete is a no-op unless the in-memory guard shows this Key as a holder.
// Otherwise it loops pg_advisory_unlock, then pg_advisory_unlock_shared,
// each until it returns false, so whichever mode is held is fully
// released: advisory locks are reference-counted per session, so a single
// unlock call is not enough if the same session re-acquired the same key
// more than once.
func (p *PostgresAdvisoryStore) Delete(ctx context.Context, k *locking.Key) error {
	id := objID(k.Resource())

	held, err := p.guard.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !held {
		return nil
	}

	for _, fn := range []string{"pg_advisory_unlock", "pg_advisory_unlock_shared"} {
		for {
			var unlocked bool
			if err := p.pool.QueryRow(ctx, "SELECT "+fn+"($1)", id).Scan(&unlocked); err != nil {
				return err
			}
			if !unlocked {
				break
			}
		}
	}

	return p.guard.Delete(ctx, k)
}

func (p *PostgresAdvisoryStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	return p.guard.Exists(ctx, k)
}

var _ locking.BlockingShared = (*PostgresAdvisoryStore)(nil)
