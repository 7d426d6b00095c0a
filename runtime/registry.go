package runtime

import (
	"roomsync/contract"
	"roomsync/domain"
	"sync"
)

type Set map[string]struct{}

// Registry maps presentation sinks to the rooms they follow.
// A sink subscribed with an empty room receives every event.
type Registry struct {
	mu          sync.RWMutex
	sinks       map[string]contract.EventSink // sink name -> sink
	roomMembers map[domain.RoomID]Set         // room -> sink names
}

func NewRegistry() *Registry {
	return &Registry{
		sinks:       make(map[string]contract.EventSink),
		roomMembers: make(map[domain.RoomID]Set),
	}
}

// SinksFor returns the sinks following roomID followed by those taking
// every event. Events with no room only reach the latter.
func (r *Registry) SinksFor(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []contract.EventSink
	seen := make(Set)
	collect := func(room domain.RoomID) {
		for name := range r.roomMembers[room] {
			if _, dup := seen[name]; dup {
				continue
			}
			if sink, ok := r.sinks[name]; ok {
				seen[name] = struct{}{}
				active = append(active, sink)
			}
		}
	}
	if roomID != "" {
		collect(roomID)
	}
	collect("")
	return active
}

// Subscribe registers sink under name for roomID. A name already in use
// gets its sink replaced.
func (r *Registry) Subscribe(name string, roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[name] = sink
	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][name] = struct{}{}
}

// Unsubscribe removes name from roomID and forgets the sink once it
// follows nothing.
func (r *Registry) Unsubscribe(name string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, name)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
	for _, members := range r.roomMembers {
		if _, ok := members[name]; ok {
			return
		}
	}
	delete(r.sinks, name)
}
