// Package leadership provides leadership election.
//
// To participate in leadership election as a candidate, an application
// instantiates a Candidate through a LeadershipProvider. NewZooKeeperCandidate
// and NewZooKeeperLeadershipProvider give ZooKeeper's fair, FIFO,
// sequence-node-based election. NewStoreCandidate and
// NewStoreLeadershipProvider generalize the same Candidate contract to any
// locking.BlockingExclusive store, trading the FIFO guarantee for
// contend-and-poll fairness.
package leadership
