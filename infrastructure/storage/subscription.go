package storage

import (
	"context"
	"roomsync/contract"
	"sync"
)

// subscription re-runs its query on its own goroutine each time the
// registry flags it. Notifications arriving while a snapshot is being
// delivered coalesce into a single re-read.
type subscription struct {
	store      *Store
	query      contract.Query
	onSnapshot contract.SnapshotFunc
	id         uint64
	dirty      chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

func (s *subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		docs, err := s.store.Find(s.ctx, s.query)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.store.log.Warn("Watch query failed", "collection", s.query.Collection, "error", err)
		} else {
			s.onSnapshot(docs)
		}
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
		}
	}
}

// Cancel stops the subscription and waits for an in-flight snapshot
// callback to return.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.store.registry.Unsubscribe(s.query.Collection, s.id)
		s.cancel()
		<-s.done
	})
}
