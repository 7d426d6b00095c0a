// Package projection keeps the latest snapshots published by the engine,
// the way a screen would hold them. It never talks back to the engine.
package projection

import (
	"context"
	"roomsync/domain"
	"roomsync/domain/event"
	"slices"
	"sync"
)

// View is a sink holding the last snapshot of each kind. Room-scoped
// snapshots belong to the room they came from and are dropped when that
// room is closed.
type View struct {
	mu       sync.RWMutex
	rooms    []domain.RoomSummary
	room     domain.RoomID
	messages []domain.Message
	presence []domain.PresenceEntry
	typing   []domain.TypingEntry
	requests []domain.JoinRequest
	restarts map[string]int
}

func NewView() *View {
	return &View{restarts: make(map[string]int)}
}

func (v *View) Consume(_ context.Context, e event.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if room := e.RoomID(); room != "" && room != v.room && e.Type() != event.RoomClosedType {
		v.switchRoomLocked(room)
	}

	switch evt := e.(type) {
	case event.RoomsUpdated:
		v.rooms = slices.Clone(evt.Rooms)
	case event.MessagesUpdated:
		v.messages = slices.Clone(evt.Messages)
	case event.PresenceUpdated:
		v.presence = slices.Clone(evt.Active)
	case event.TypingUpdated:
		v.typing = slices.Clone(evt.Typing)
	case event.JoinRequestsUpdated:
		v.requests = slices.Clone(evt.Requests)
	case event.RoomClosed:
		if evt.Room == v.room {
			v.switchRoomLocked("")
		}
	case event.WorkerRestartedAfterPanic:
		v.restarts[evt.WorkerName]++
	}
	return nil
}

func (v *View) switchRoomLocked(room domain.RoomID) {
	v.room = room
	v.messages = nil
	v.presence = nil
	v.typing = nil
	v.requests = nil
}

func (v *View) Rooms() []domain.RoomSummary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.rooms)
}

// Room is the room the room-scoped snapshots belong to.
func (v *View) Room() domain.RoomID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.room
}

func (v *View) Messages() []domain.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.messages)
}

func (v *View) Presence() []domain.PresenceEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.presence)
}

func (v *View) Typing() []domain.TypingEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.typing)
}

func (v *View) JoinRequests() []domain.JoinRequest {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.requests)
}

func (v *View) Restarts(workerName string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.restarts[workerName]
}

// Unread is the unread count of a room as last listed.
func (v *View) Unread(room domain.RoomID) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, summary := range v.rooms {
		if summary.Room.ID == room {
			return summary.UnreadCount
		}
	}
	return 0
}
