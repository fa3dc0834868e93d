package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/symfony/lock/distributed/locking"
	log "github.com/symfony/lock/logging"
)

// mongoDefaultTTL is the TTL a bare Save establishes before any
// caller-requested TTL is translated in via Refresh.
const mongoDefaultTTL = 30 * time.Second

// defaultGcProbability is the chance, on any given Save, that the TTL
// index gets a (re-)install attempt. Kept low and probabilistic per
// spec.md's Mongo sketch, rather than a deterministic once-per-startup
// check, so that no single caller is responsible for index creation and a
// missing index is still repaired over time without an admin step.
const defaultGcProbability = 0.001

// mongoDoc is the one-document-per-resource shape spec.md's Mongo sketch
// describes.
type mongoDoc struct {
	ID        string    `bson:"_id"`
	Token     string    `bson:"token"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoStore is the MongoDB Store adapter: one document per resource,
// keyed by the resource identifier as _id, with a TTL index on expires_at
// so dead locks are eventually reaped by the server even without an
// explicit delete.
type MongoStore struct {
	collection *mongo.Collection

	defaultTTL   time.Duration
	gcProbability float64

	indexMu      chan struct{}
	indexEnsured bool
}

// MongoStoreOption configures a MongoStore at construction.
type MongoStoreOption func(*MongoStore)

// WithMongoDefaultTTL overrides the TTL a bare Save establishes before a
// caller-requested TTL is translated in via Refresh.
func WithMongoDefaultTTL(ttl time.Duration) MongoStoreOption {
	return func(m *MongoStore) { m.defaultTTL = ttl }
}

// WithMongoGcProbability overrides the Bernoulli probability, in [0,1],
// that a given Save attempts to (re-)install the TTL index.
func WithMongoGcProbability(p float64) MongoStoreOption {
	return func(m *MongoStore) { m.gcProbability = p }
}

// NewMongoStore wraps an existing collection handle. The caller owns the
// underlying client's connection lifecycle.
func NewMongoStore(collection *mongo.Collection, opts ...MongoStoreOption) (*MongoStore, error) {
	if collection == nil {
		return nil, fmt.Errorf("%w: mongo collection must not be nil", locking.ErrInvalidArgument)
	}

	m := &MongoStore{
		collection:    collection,
		defaultTTL:    mongoDefaultTTL,
		gcProbability: defaultGcProbability,
		indexMu:       make(chan struct{}, 1),
	}
	m.indexMu <- struct{}{}

	for _, opt := range opts {
		opt(m)
	}

	if m.gcProbability < 0 || m.gcProbability > 1 {
		return nil, fmt.Errorf("%w: mongo gc probability must be within [0,1]", locking.ErrInvalidArgument)
	}

	return m, nil
}

func (m *MongoStore) Identity() string          { return "mongodb" }
func (m *MongoStore) Expiring() bool            { return true }
func (m *MongoStore) DefaultTTL() time.Duration { return m.defaultTTL }

// maybeEnsureTTLIndex installs the expires_at TTL index with probability
// gcProbability. Preserving the Bernoulli trial (rather than converting it
// to a deterministic once-per-process check) matters: callers rely on the
// lazy, non-admin installation behavior working the same way no matter how
// many processes are calling Save concurrently.
func (m *MongoStore) maybeEnsureTTLIndex(ctx context.Context) {
	if m.gcProbability <= 0 {
		return
	}
	if rand.Float64() >= m.gcProbability {
		return
	}

	select {
	case <-m.indexMu:
	default:
		return
	}
	defer func() { m.indexMu <- struct{}{} }()

	if m.indexEnsured {
		return
	}

	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		log.Warnf("failed to ensure mongo TTL index: %v", err)
		return
	}

	m.indexEnsured = true
}

func (m *MongoStore) Save(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	m.maybeEnsureTTLIndex(ctx)

	now := time.Now()
	filter := bson.M{
		"_id": k.Resource(),
		"$or": bson.A{
			bson.M{"token": state.Token},
			bson.M{"expires_at": bson.M{"$lte": now}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"token":      state.Token,
			"expires_at": now.Add(ttl),
		},
	}

	_, err = m.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return locking.ErrLockConflicted
		}
		return err
	}

	k.ReduceLifetime(ttl)
	return nil
}

func (m *MongoStore) PutOffExpiration(ctx context.Context, k *locking.Key, ttl time.Duration) error {
	if ttl <= 0 {
		return locking.ErrInvalidTtl
	}

	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": k.Resource(), "token": state.Token},
		bson.M{"$set": bson.M{"expires_at": time.Now().Add(ttl)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return locking.ErrLockConflicted
	}

	k.ReduceLifetime(ttl)
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, k *locking.Key) error {
	state, err := k.State(m.Identity())
	if err != nil {
		return err
	}

	_, err = m.collection.DeleteOne(ctx, bson.M{"_id": k.Resource(), "token": state.Token})
	return err
}

func (m *MongoStore) Exists(ctx context.Context, k *locking.Key) (bool, error) {
	state, err := k.State(m.Identity())
	if err != nil {
		return false, err
	}

	var doc mongoDoc
	err = m.collection.FindOne(ctx, bson.M{"_id": k.Resource(), "token": state.Token}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return time.Now().Before(doc.ExpiresAt), nil
}

var _ locking.Store = (*MongoStore)(nil)
