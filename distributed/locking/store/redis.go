package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/symfony/lock/distributed/locking"
)

// redisDefaultTTL is the TTL a bare Save establishes before any
// caller-requested TTL is translated in via Refresh.
const redisDefaultTTL = 30 * time.Second

// readersSuffix names the sorted set holding shared-lock tokens for a
// resource, scored by expiry (unix milliseconds).
const readersSuffix = ":readers"

// putOffScript extends a writer key's TTL only if it is still held by the
// caller's token — the compare-and-set refresh spec.md's Redis sketch calls
// for.
var putOffScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// deleteScript deletes a writer key only if it is still held by the
// caller's token, the symmetric compare-and-delete.
var deleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// saveScript grants the exclusive writer key, guarded against any live
// reader: it prunes expired members from the readers sorted set first, then
// refuses if a reader remains, the same way it refuses if a different
// token already holds the writer key. Re-saving under the caller's own
// token refreshes the TTL instead of failing.
var saveScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[3])
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
if current then
	return 0
end
if redis.call("ZCARD", KEYS[2]) > 0 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// saveReadScript adds the caller's token to the readers sorted set, guarded
// against a concurrent exclusive writer, pruning expired members first.
var saveReadScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 and redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[3])
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// putOffReadScript refreshes the caller's token's score in the readers
// sorted set, but only if it is still a member.
var putOffReadScript = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) == false then
	return 0
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// RedisStore is the single-node Redis Store adapter: an exclusive hold is a
// writer key guarded by a Lua script against the parallel sorted set of
// reader tokens; shared holds live in that sorted set, scored by expiry.
// Every check-then-act sequence (exclusivity against readers, CAS
// refresh/delete) is expressed as Lua so it is atomic against the server.
type RedisStore struct {
	client     redis.UniversalClient
	defaultTTL time.Duration
}

// RedisStoreOption configures a RedisStore at construction.
type RedisStoreOption func(*RedisStore)

// WithRedisDefaultTTL overrides the TTL a bare Save/SaveRead establishes
// before a caller-requested TTL is translated in via Refresh.
func WithRedisDefaultTTL(ttl time.Duration) RedisStoreOption {
	return func(r *RedisStore) { r.defaultTTL = ttl }
}

// NewRedisStore wraps an existing go-redis client. The caller owns the
// client's lifecycle (dialing, pooling, closing).
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	r := &RedisStore{client: client, defaultTTL: redisDefaultTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) Identity() string          { return "redis" }
func (r *RedisStore) Expiring() bool            { return true }
func (r *RedisStore) DefaultTTL() time.Duration { return r.defaultTTL }

func (r *RedisStore) readersKey(resource string) string {
	return resource + readersSuffix
}

func (r *RedisStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(r.Identity())
	if err != nil {
		return err
	}

	res, err := saveScript.Run(ctx, r.client,
		[]string{k.Resource(), r.readersKey(k.Resource())},
		state.Token, ttl.Milliseconds(), time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return locking.ErrLockConflicted
	}

	k.ReduceLifetime(ttl)
	return nil
}

func (r *RedisStore) SaveRead(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(r.Identity())
	if err != nil {
		return err
	}

	now := time.Now()
	score := float64(now.Add(ttl).UnixMilli())

	res, err := saveReadScript.Run(ctx, r.client,
		[]string{k.Resource(), r.readersKey(k.Resource())},
		state.Token, score, now.UnixMilli(),
	).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return locking.ErrLockConflicted
	}

	k.ReduceLifetime(ttl)
	return nil
}

func (r *RedisStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(r.Identity())
	if err != nil {
		return err
	}

	res, err := putOffScript.Run(ctx, r.client,
		[]string{k.Resource()}, state.Token, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return err
	}
	if res == 1 {
		k.ReduceLifetime(ttl)
		return nil
	}

	// Not (or no longer) the writer; try as a reader instead.
	score := float64(time.Now().Add(ttl).UnixMilli())
	rres, rerr := putOffReadScript.Run(ctx, r.client,
		[]string{r.readersKey(k.Resource())}, state.Token, score,
	).Int()
	if rerr != nil {
		return rerr
	}
	if rres == 0 {
		return locking.ErrLockConflicted
	}

	k.ReduceLifetime(ttl)
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(r.Identity())
	if err != nil {
		return err
	}

	if _, err := deleteScript.Run(ctx, r.client, []string{k.Resource()}, state.Token).Result(); err != nil {
		return err
	}

	if err := r.client.ZRem(ctx, r.readersKey(k.Resource()), state.Token).Err(); err != nil {
		return err
	}

	return nil
}

func (r *RedisStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(r.Identity())
	if err != nil {
		return false, err
	}

	current, err := r.client.Get(ctx, k.Resource()).Result()
	if err != nil && err != redis.Nil {
		return false, err
	}
	if current == state.Token {
		return true, nil
	}

	score, err := r.client.ZScore(ctx, r.readersKey(k.Resource()), state.Token).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return int64(score) > time.Now().UnixMilli(), nil
}

var _ locking.Shared = (*RedisStore)(nil)
