package storage

import (
	"strings"
	"sync"
)

// Registry maps collections to the live queries watching them.
// Writers call Notify after commit; every watcher of the written
// collection is flagged dirty and re-reads its query.
type Registry struct {
	mu       sync.RWMutex
	nextID   uint64
	watchers map[string]map[uint64]*subscription // collection -> watchers
}

func NewRegistry() *Registry {
	return &Registry{watchers: make(map[string]map[uint64]*subscription)}
}

// Subscribe registers a watcher and returns its id.
func (r *Registry) Subscribe(collection string, sub *subscription) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	if _, ok := r.watchers[collection]; !ok {
		r.watchers[collection] = make(map[uint64]*subscription)
	}
	r.watchers[collection][r.nextID] = sub
	return r.nextID
}

// Unsubscribe removes a watcher, dropping empty collections.
func (r *Registry) Unsubscribe(collection string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.watchers[collection]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.watchers, collection)
		}
	}
}

// Notify flags the watchers of every collection touched by paths.
func (r *Registry) Notify(paths []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		collection, _ := splitPath(path)
		if _, done := seen[collection]; done {
			continue
		}
		seen[collection] = struct{}{}
		for _, sub := range r.watchers[collection] {
			sub.markDirty()
		}
	}
}

// Len returns the number of live watchers, for tests and diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, subs := range r.watchers {
		n += len(subs)
	}
	return n
}

// splitPath turns "rooms/r1/messages/m1" into ("rooms/r1/messages", "m1").
func splitPath(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
