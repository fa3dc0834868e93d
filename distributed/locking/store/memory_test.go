package store

import (
	"testing"

	logrus "github.com/sirupsen/logrus"
	"github.com/symfony/lock/distributed/locking/store/conformance"
	"github.com/symfony/lock/unittest"
)

type MemoryStoreTestSuite struct {
	conformance.StoreTestSuite
}

func (s *MemoryStoreTestSuite) SetUp() {
	s.Store = NewMemoryStore()
}

func TestMemoryStore(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)
	unittest.RunTestSuite(&MemoryStoreTestSuite{}, t)
}
