package zkutils

import (
	"fmt"
	"github.com/samuel/go-zookeeper/zk"
	"os"
	"testing"
	"time"
)

// Create a test cluster of a given size.
func CreateTestCluster(t *testing.T, size int) (testCluster *zk.TestCluster, serverAddresses []string) {
	var err error

	// Create the test cluster.
	testCluster, err = zk.StartTestCluster(size, os.Stdout, os.Stdout)
	if err != nil {
		t.Fatalf("Failed to create test cluster: %v", err)
	}

	// Construct server addresses and create a connection.
	serverAddresses = make([]string, len(testCluster.Servers))

	for i, s := range testCluster.Servers {
		serverAddresses[i] = fmt.Sprintf("127.0.0.1:%d", s.Port)
	}

	return
}

// CreateTestClusterAndConn creates a test cluster of a given size along
// with a raw client connection to it.
func CreateTestClusterAndConn(t *testing.T, size int) (*zk.TestCluster, *zk.Conn) {
	testCluster, servers := CreateTestCluster(t, size)

	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		testCluster.Stop()
		t.Fatalf("Failed to connect to test cluster: %v", err)
	}

	return testCluster, conn
}

// CreateTestClusterAndConnMan creates a test cluster of a given size along
// with a connection manager wrapping a client connection to it.
func CreateTestClusterAndConnMan(t *testing.T, size int) (*zk.TestCluster, *ConnMan) {
	testCluster, servers := CreateTestCluster(t, size)

	cm, err := Connect(servers, 10*time.Second)
	if err != nil {
		testCluster.Stop()
		t.Fatalf("Failed to connect connection manager to test cluster: %v", err)
	}

	return testCluster, cm
}
