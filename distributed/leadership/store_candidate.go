package leadership

import (
	"context"
	"sync"
	"time"

	log "github.com/symfony/lock/logging"
	"github.com/symfony/lock/distributed/locking"
)

// storeCandidate backs leadership election with any locking.BlockingExclusive
// store: leadership is simply holding a Lock on "<prefix>/leader". Unlike
// zkCandidate, contention among candidates is not FIFO-fair — whichever
// candidate's WaitAndSave wins the race after a release takes over, which is
// the polling path's honest behavior rather than a promise of ordering.
type storeCandidate struct {
	store locking.BlockingExclusive
	key   *locking.Key

	ttl    time.Duration
	refresh time.Duration

	lh LeadershipHandler

	stop chan struct{}
	done sync.WaitGroup
}

// NewStoreCandidate creates a leadership candidate backed by any
// locking.BlockingExclusive store. It contends for a Lock on
// "<pathPrefix>/leader", runs leadershipHandler while holding it, and
// refreshes the lock's TTL at ttl/2 until either the handler returns or the
// candidate is stopped.
func NewStoreCandidate(store locking.BlockingExclusive, pathPrefix string, ttl time.Duration, leadershipHandler LeadershipHandler) (Candidate, error) {
	key, err := locking.NewKey(pathPrefix + "/leader")
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = store.DefaultTTL()
	}

	sc := &storeCandidate{
		store:   store,
		key:     key,
		ttl:     ttl,
		refresh: ttl / 2,
		lh:      leadershipHandler,
		stop:    make(chan struct{}, 1),
	}

	sc.done.Add(1)
	go sc.run()

	return sc, nil
}

func (c *storeCandidate) isStopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *storeCandidate) isStoppedBefore(d time.Duration) bool {
	select {
	case <-c.stop:
		return true
	case <-time.After(d):
		return false
	}
}

// assumeLeadership holds the contended lock, running the leadership handler
// until it resigns, the candidate is stopped, or the lock is lost to
// expiration (the refresh loop fails to put off expiration in time).
func (c *storeCandidate) assumeLeadership(ctx context.Context, lock *locking.Lock) (stopped bool) {
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			log.Warnf("error releasing leadership lock: %v", err)
		}
	}()

	log.Info("Became leader")

	end := make(chan struct{}, 1)
	resigned := make(chan struct{}, 1)

	go func() {
		c.lh(end)
		resigned <- struct{}{}
	}()

	lost := make(chan struct{}, 1)
	lostEnd := make(chan struct{}, 1)

	if c.ttl > 0 {
		go func() {
			ticker := time.NewTicker(c.refresh)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					refreshCtx, cancel := context.WithTimeout(context.Background(), c.refresh)
					err := lock.Refresh(refreshCtx, c.ttl)
					cancel()
					if err != nil {
						log.Warnf("error refreshing leadership lock, resigning as leader: %v", err)
						lost <- struct{}{}
						return
					}
				case <-lostEnd:
					return
				}
			}
		}()
	}

	stopped = false

	select {
	case <-resigned:
		lostEnd <- struct{}{}

	case <-c.stop:
		stopped = true
		lostEnd <- struct{}{}
		end <- struct{}{}
		log.Debug("Candidate stopped, awaiting leadership handler return")
		<-resigned

	case <-lost:
		end <- struct{}{}
		log.Debug("Leadership lock lost, awaiting leadership handler return")
		<-resigned
	}

	log.Info("Resigned leadership")

	return stopped || c.isStopped()
}

func (c *storeCandidate) run() {
	ctx := context.Background()

	for {
		if c.isStopped() {
			break
		}

		lock := locking.NewLock(c.key, c.store, locking.WithTTL(c.ttl))

		if _, err := lock.Acquire(ctx, true); err != nil {
			log.Warnf("error contending for leadership lock, waiting 100 ms to retry: %v", err)
			if c.isStoppedBefore(100 * time.Millisecond) {
				break
			}
			continue
		}

		if stopped := c.assumeLeadership(ctx, lock); stopped {
			break
		}
	}

	c.done.Done()
	log.Debug("Done running candidate")
}

func (c *storeCandidate) Stop() {
	c.stop <- struct{}{}
	log.Debug("Sent stop signal, waiting for running candidate")
	c.done.Wait()
	log.Debug("Done waiting for running candidate")
}

// storeLeadershipProvider generalizes zkLeadershipProvider to any
// locking.BlockingExclusive store.
type storeLeadershipProvider struct {
	store locking.BlockingExclusive
	path  string
	ttl   time.Duration
}

// NewStoreLeadershipProvider creates a LeadershipProvider whose candidates
// contend for leadership via Lock acquisition against store, rather than a
// ZooKeeper-native sequence-node election.
func NewStoreLeadershipProvider(store locking.BlockingExclusive, path string, ttl time.Duration) LeadershipProvider {
	return &storeLeadershipProvider{store: store, path: path, ttl: ttl}
}

func (p *storeLeadershipProvider) GetCandidate(data []byte, leadershipHandler LeadershipHandler) Candidate {
	cand, err := NewStoreCandidate(p.store, p.path, p.ttl, leadershipHandler)
	if err != nil {
		// NewKey only fails on an oversized resource path; surface the
		// failure through a candidate that immediately stops itself rather
		// than changing this method's error-free signature.
		log.Errorf("failed to create store-backed candidate: %v", err)
		return stoppedCandidate{}
	}

	return cand
}

// stoppedCandidate is a no-op Candidate returned when GetCandidate cannot
// construct a real one.
type stoppedCandidate struct{}

func (stoppedCandidate) Stop() {}
