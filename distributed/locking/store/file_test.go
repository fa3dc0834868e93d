package store

import (
	"testing"

	logrus "github.com/sirupsen/logrus"

	"github.com/symfony/lock/distributed/locking/store/conformance"
	"github.com/symfony/lock/unittest"
)

type FileStoreTestSuite struct {
	conformance.StoreTestSuite
}

func (s *FileStoreTestSuite) SetUp() {
	s.Store = NewFileStore(s.T().TempDir())
}

func TestFileStore(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)
	unittest.RunTestSuite(&FileStoreTestSuite{}, t)
}
