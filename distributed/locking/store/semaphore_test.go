package store

import (
	"testing"

	logrus "github.com/sirupsen/logrus"

	"github.com/symfony/lock/distributed/locking/store/conformance"
	"github.com/symfony/lock/unittest"
)

type SemaphoreStoreTestSuite struct {
	conformance.StoreTestSuite
}

func (s *SemaphoreStoreTestSuite) SetUp() {
	s.Store = NewSemaphoreStore(4)
}

func TestSemaphoreStore(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)
	unittest.RunTestSuite(&SemaphoreStoreTestSuite{}, t)
}
