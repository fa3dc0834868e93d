package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/symfony/lock/distributed/locking"
)

// SQLSchema is the table any database/sql driver must provide for
// SQLStore. Postgres DDL is given as the reference; other dialects need
// only an equivalent primary key and timestamp column.
const SQLSchema = `CREATE TABLE IF NOT EXISTS locks (
	resource TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// sqlDefaultTTL is the TTL a bare Save establishes before any
// caller-requested TTL is translated in via Refresh.
const sqlDefaultTTL = 30 * time.Second

// SQLStore generalizes the PostgreSQL advisory idea to a plain relational
// table over any database/sql driver: one row per resource, acquired via
// a single INSERT ... ON CONFLICT (resource) DO UPDATE ... WHERE statement
// run inside a transaction, so the affected-row count distinguishes "acquired" from
// "conflict" the same way MongoDB's $or upsert does.
type SQLStore struct {
	db         *sql.DB
	defaultTTL time.Duration
}

// SQLStoreOption configures a SQLStore at construction.
type SQLStoreOption func(*SQLStore)

// WithSQLDefaultTTL overrides the TTL a bare Save establishes before a
// caller-requested TTL is translated in via Refresh.
func WithSQLDefaultTTL(ttl time.Duration) SQLStoreOption {
	return func(s *SQLStore) { s.defaultTTL = ttl }
}

// NewSQLStore wraps an existing *sql.DB; the locks table (see SQLSchema)
// must already exist. The caller owns the database handle's lifecycle.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{db: db, defaultTTL: sqlDefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLStore) Identity() string          { return "pgsql-table" }
func (s *SQLStore) Expiring() bool            { return true }
func (s *SQLStore) DefaultTTL() time.Duration { return s.defaultTTL }

func (s *SQLStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(s.Identity())
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	expiresAt := now.Add(ttl)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO locks (resource, token, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource) DO UPDATE
		SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
		WHERE locks.token = $2 OR locks.expires_at <= $4
	`, k.Resource(), state.Token, expiresAt, now)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return locking.ErrLockConflicted
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	k.ReduceLifetime(ttl)
	return nil
}

func (s *SQLStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(s.Identity())
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE locks SET expires_at = $1 WHERE resource = $2 AND token = $3`,
		time.Now().Add(ttl), k.Resource(), state.Token,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return locking.ErrLockConflicted
	}

	k.ReduceLifetime(ttl)
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(s.Identity())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM locks WHERE resource = $1 AND token = $2`,
		k.Resource(), state.Token,
	)
	return err
}

func (s *SQLStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(s.Identity())
	if err != nil {
		return false, err
	}

	var expiresAt time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM locks WHERE resource = $1 AND token = $2`,
		k.Resource(), state.Token,
	).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return time.Now().Before(expiresAt), nil
}

var _ locking.Store = (*SQLStore)(nil)
