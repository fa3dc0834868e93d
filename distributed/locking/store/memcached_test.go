package store

import (
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	logrus "github.com/sirupsen/logrus"

	"github.com/symfony/lock/distributed/locking/store/conformance"
	"github.com/symfony/lock/unittest"
)

type MemcachedStoreTestSuite struct {
	conformance.StoreTestSuite

	fake *fakeMemcachedServer
}

func (s *MemcachedStoreTestSuite) SetUp() {
	fake, err := startFakeMemcachedServer()
	if err != nil {
		s.Fatalf("failed to start fake memcached server: %v", err)
	}
	s.fake = fake

	client := memcache.New(fake.Addr())
	s.Store = NewMemcachedStore(client, WithMemcachedDefaultTTL(2*time.Second))
	s.TTLGranularity = time.Second
	s.ExpiryMargin = 500 * time.Millisecond
}

func (s *MemcachedStoreTestSuite) TearDown() {
	s.fake.Close()
}

func TestMemcachedStore(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)
	unittest.RunTestSuite(&MemcachedStoreTestSuite{}, t)
}
