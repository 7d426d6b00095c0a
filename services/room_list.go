package services

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/repositories"
	"sync"
	"time"
)

// RoomList maintains the caller's rooms with their unread counts for the
// whole session, whatever room is open.
//
// Each member room other than the open one has its own subscription to the
// messages newer than the caller's watermark. It is replaced whenever the
// watermark moves, so counts follow message arrival, membership changes and
// last-seen updates without rescanning logs.
type RoomList struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	self     domain.UserID
	log      *slog.Logger

	emitMu   sync.Mutex
	onChange func([]domain.RoomSummary)

	mu       sync.Mutex
	ctx      context.Context
	sub      contract.Subscription
	current  map[domain.RoomID]domain.Room
	unread   map[domain.RoomID]*unreadWatch
	seen     map[domain.RoomID]time.Time // highest watermark observed
	openRoom domain.RoomID
	stopped  bool
}

type unreadWatch struct {
	watermark time.Time
	sub       contract.Subscription
	count     int
}

func NewRoomList(store contract.DocumentStore, self domain.UserID, log *slog.Logger) *RoomList {
	return &RoomList{
		rooms:    repositories.NewRoomRepository(store, log),
		messages: repositories.NewMessageRepository(store, log),
		self:     self,
		log:      log,
		current:  make(map[domain.RoomID]domain.Room),
		unread:   make(map[domain.RoomID]*unreadWatch),
		seen:     make(map[domain.RoomID]time.Time),
	}
}

// Start subscribes to the caller's rooms. ctx bounds every subscription the
// list opens.
func (l *RoomList) Start(ctx context.Context, onChange func([]domain.RoomSummary)) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
	l.emitMu.Lock()
	l.onChange = onChange
	l.emitMu.Unlock()

	sub, err := l.rooms.WatchMemberOf(ctx, l.self, l.onRooms)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.sub = sub
	l.mu.Unlock()
	return nil
}

func (l *RoomList) onRooms(rooms []domain.Room) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	next := make(map[domain.RoomID]domain.Room, len(rooms))
	for _, room := range rooms {
		next[room.ID] = room
	}
	var stale []contract.Subscription
	for id, watch := range l.unread {
		if _, ok := next[id]; !ok {
			stale = append(stale, watch.sub)
			delete(l.unread, id)
		}
	}
	for id := range l.seen {
		if _, ok := next[id]; !ok {
			delete(l.seen, id)
		}
	}
	l.current = next
	for _, room := range rooms {
		if room.ID == l.openRoom {
			continue
		}
		if old := l.rearmLocked(room); old != nil {
			stale = append(stale, old)
		}
	}
	l.mu.Unlock()

	cancelAll(stale)
	l.emit()
}

// rearmLocked makes sure room has an unread subscription at its current
// watermark. It returns the subscription it replaced, to be cancelled once
// l.mu is released.
func (l *RoomList) rearmLocked(room domain.Room) contract.Subscription {
	// Snapshots may land late; a watermark never goes back.
	watermark := room.Watermark(l.self)
	if seen := l.seen[room.ID]; seen.After(watermark) {
		watermark = seen
	}
	l.seen[room.ID] = watermark
	existing, ok := l.unread[room.ID]
	if ok && existing.watermark.Equal(watermark) {
		return nil
	}
	watch := &unreadWatch{watermark: watermark}
	sub, err := l.messages.WatchAfter(l.ctx, room.ID, watermark, func(messages []domain.Message) {
		l.onUnread(room.ID, watch, messages)
	})
	if err != nil {
		l.log.Warn("Unread subscription failed", "room", room.ID, "error", err)
		delete(l.unread, room.ID)
	} else {
		watch.sub = sub
		l.unread[room.ID] = watch
	}
	if ok {
		return existing.sub
	}
	return nil
}

func (l *RoomList) onUnread(roomID domain.RoomID, watch *unreadWatch, messages []domain.Message) {
	l.mu.Lock()
	if l.unread[roomID] != watch {
		l.mu.Unlock()
		return
	}
	watch.count = CountUnread(messages, l.self, watch.watermark)
	l.mu.Unlock()
	l.emit()
}

// SetOpenRoom tells the list which room is on screen; its count is pinned
// to zero. An empty id means no room is open.
func (l *RoomList) SetOpenRoom(ctx context.Context, roomID domain.RoomID) {
	l.mu.Lock()
	previous := l.openRoom
	l.openRoom = roomID
	var stale []contract.Subscription
	if watch, ok := l.unread[roomID]; ok {
		stale = append(stale, watch.sub)
		delete(l.unread, roomID)
	}
	_, wasMember := l.current[previous]
	l.mu.Unlock()

	// The closing room's watermark was just moved; a point read sees it even
	// when the member-room snapshot carrying it has not arrived yet.
	if previous != "" && previous != roomID && wasMember {
		room, err := l.rooms.Get(ctx, previous)
		if err != nil {
			l.log.Warn("Room reload failed", "room", previous, "error", err)
		} else {
			l.mu.Lock()
			if _, still := l.current[previous]; still && l.openRoom != previous && !l.stopped {
				if old := l.rearmLocked(room); old != nil {
					stale = append(stale, old)
				}
			}
			l.mu.Unlock()
		}
	}

	cancelAll(stale)
	l.emit()
}

// Summaries is the current list, most recent activity first.
func (l *RoomList) Summaries() []domain.RoomSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	summaries := make([]domain.RoomSummary, 0, len(l.current))
	for id, room := range l.current {
		summary := domain.RoomSummary{Room: room, IsOpen: id == l.openRoom}
		if watch, ok := l.unread[id]; ok && !summary.IsOpen {
			summary.UnreadCount = watch.count
		}
		summaries = append(summaries, summary)
	}
	domain.SortByActivity(summaries)
	return summaries
}

func (l *RoomList) emit() {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	if l.onChange == nil {
		return
	}
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		return
	}
	l.onChange(l.Summaries())
}

// Stop cancels every subscription of the list.
func (l *RoomList) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	subs := make([]contract.Subscription, 0, len(l.unread)+1)
	if l.sub != nil {
		subs = append(subs, l.sub)
	}
	for id, watch := range l.unread {
		subs = append(subs, watch.sub)
		delete(l.unread, id)
	}
	l.mu.Unlock()
	cancelAll(subs)
}

func cancelAll(subs []contract.Subscription) {
	for _, sub := range subs {
		if sub != nil {
			sub.Cancel()
		}
	}
}
