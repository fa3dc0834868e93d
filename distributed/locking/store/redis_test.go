package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	logrus "github.com/sirupsen/logrus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/symfony/lock/distributed/locking/store/conformance"
	"github.com/symfony/lock/unittest"
)

type RedisStoreTestSuite struct {
	conformance.StoreTestSuite

	mr *miniredis.Miniredis
}

func (s *RedisStoreTestSuite) SetUp() {
	mr, err := miniredis.Run()
	if err != nil {
		s.Fatalf("failed to start miniredis: %v", err)
	}
	s.mr = mr

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s.Store = NewRedisStore(client, WithRedisDefaultTTL(2*time.Second))
	s.ExpiryMargin = 50 * time.Millisecond
}

func (s *RedisStoreTestSuite) TearDown() {
	s.mr.Close()
}

func TestRedisStore(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)
	unittest.RunTestSuite(&RedisStoreTestSuite{}, t)
}
