package runtime

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/domain/event"
	"roomsync/errors"
	"roomsync/services"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Services is what a session needs from the engine.
type Services struct {
	Membership   *services.MembershipService
	Messages     *services.MessageService
	Presence     *services.PresenceTracker
	Unread       *services.UnreadTracker
	Typing       *services.TypingService
	JoinRequests *services.JoinRequestService
}

// PublishFunc hands an event to the presentation layer.
type PublishFunc func(ctx context.Context, e event.Event)

// attachment is everything attached to the open room. It belongs to one
// generation; callbacks of an older generation publish nothing.
type attachment struct {
	room        domain.Room
	stream      *services.MessageStream
	presence    *services.PresenceHandle
	typingWatch *services.TypingWatch
	broadcaster *services.TypingBroadcaster
	composer    *services.Composer
	requests    contract.Subscription
}

// Session is the signed-in user's context: the room list for the whole
// session and at most one open room.
//
// Subscriptions opened by the session live until Close, not until the
// call that opened them returns.
type Session struct {
	identity domain.Identity
	services Services
	roomList *services.RoomList
	publish  PublishFunc
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	transition sync.Mutex // serialises OpenRoom, CloseRoom and Close

	mu         sync.Mutex
	generation uint64
	open       *attachment
	closed     bool
}

func NewSession(parent context.Context, identity domain.Identity, store contract.DocumentStore,
	svc Services, publish PublishFunc, log *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		identity: identity,
		services: svc,
		roomList: services.NewRoomList(store, identity.ID, log),
		publish:  publish,
		log:      log.With("user", identity.ID),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins following the user's rooms.
func (s *Session) Start() error {
	return s.roomList.Start(s.ctx, s.onRooms)
}

func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) Rooms() []domain.RoomSummary { return s.roomList.Summaries() }

// OpenRoomID is the room on screen, empty when none is.
func (s *Session) OpenRoomID() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return ""
	}
	return s.open.room.ID
}

func (s *Session) isCurrent(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.generation == generation
}

func (s *Session) onRooms(summaries []domain.RoomSummary) {
	// Keep the local copy of the open room fresh for send prechecks.
	s.mu.Lock()
	if s.open != nil {
		for _, summary := range summaries {
			if summary.Room.ID == s.open.room.ID {
				s.open.room = summary.Room
			}
		}
	}
	s.mu.Unlock()
	s.publish(s.ctx, event.RoomsUpdated{Rooms: summaries})
}

// OpenRoom detaches the current room, if any, then attaches roomID:
// message stream, presence, typing and the watermark are set up
// concurrently. Admins also get the pending join requests.
func (s *Session) OpenRoom(ctx context.Context, roomID domain.RoomID) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	// 1. Detach the previous room
	if err := s.closeRoomLocked(ctx); err != nil {
		s.log.Warn("Previous room not cleanly closed", "error", err)
	}

	// 2. Membership check against the stored room
	room, err := s.services.Membership.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsMember(s.identity.ID) {
		return errors.ErrNotMember
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrNotAuthenticated
	}
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	att := &attachment{room: room}
	s.roomList.SetOpenRoom(ctx, roomID)

	// 3. Attach concurrently; subscriptions are bound to the session
	var g errgroup.Group
	g.Go(func() error {
		stream, err := s.services.Messages.Subscribe(s.ctx, roomID, func(messages []domain.Message) {
			s.onMessages(generation, roomID, messages)
		})
		att.stream = stream
		return err
	})
	g.Go(func() error {
		handle, err := s.services.Presence.Attach(s.ctx, roomID, s.identity, func(active []domain.PresenceEntry) {
			if s.isCurrent(generation) {
				s.publish(s.ctx, event.PresenceUpdated{Room: roomID, Active: active})
			}
		})
		att.presence = handle
		return err
	})
	g.Go(func() error {
		watch, err := s.services.Typing.Watch(s.ctx, roomID, s.identity.ID, func(typing []domain.TypingEntry) {
			if s.isCurrent(generation) {
				s.publish(s.ctx, event.TypingUpdated{Room: roomID, Typing: typing})
			}
		})
		att.typingWatch = watch
		return err
	})
	g.Go(func() error {
		return s.services.Unread.MarkSeenNow(ctx, roomID, s.identity.ID)
	})
	if err = g.Wait(); err != nil {
		if detachErr := s.detach(ctx, att); detachErr != nil {
			s.log.Warn("Partial attach not cleaned up", "room", roomID, "error", detachErr)
		}
		s.mu.Lock()
		s.generation++
		s.mu.Unlock()
		s.roomList.SetOpenRoom(ctx, "")
		return err
	}

	// 4. Composer and, for admins, the join request queue
	att.broadcaster = s.services.Typing.Broadcaster(s.ctx, roomID, s.identity)
	att.composer = services.NewComposer(roomID, s.services.Messages, att.broadcaster, s.log)
	if room.IsAdmin(s.identity.ID) {
		sub, err := s.services.JoinRequests.WatchPending(s.ctx, roomID, func(requests []domain.JoinRequest) {
			if s.isCurrent(generation) {
				s.publish(s.ctx, event.JoinRequestsUpdated{Room: roomID, Requests: requests})
			}
		})
		if err != nil {
			s.log.Warn("Join requests not followed", "room", roomID, "error", err)
		}
		att.requests = sub
	}

	s.mu.Lock()
	s.open = att
	s.mu.Unlock()

	s.log.Info("Room opened", "room", roomID)
	return nil
}

func (s *Session) onMessages(generation uint64, roomID domain.RoomID, messages []domain.Message) {
	if !s.isCurrent(generation) {
		return
	}
	s.publish(s.ctx, event.MessagesUpdated{Room: roomID, Messages: messages})
	if len(messages) == 0 {
		return
	}
	newest := messages[len(messages)-1]
	if err := s.services.Unread.MarkSeen(s.ctx, roomID, s.identity.ID, newest.CreatedAt); err != nil {
		s.log.Warn("Watermark not advanced", "room", roomID, "error", err)
	}
}

// CloseRoom detaches the open room and marks it read up to now.
func (s *Session) CloseRoom(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()
	return s.closeRoomLocked(ctx)
}

func (s *Session) closeRoomLocked(ctx context.Context) error {
	s.mu.Lock()
	att := s.open
	s.open = nil
	s.generation++
	s.mu.Unlock()
	if att == nil {
		return nil
	}

	err := s.detach(ctx, att)
	s.roomList.SetOpenRoom(ctx, "")
	s.publish(s.ctx, event.RoomClosed{Room: att.room.ID})
	s.log.Info("Room closed", "room", att.room.ID)
	return err
}

// detach releases everything att holds. The watermark moves before the
// presence entry is closed so the room never reads as unread afterwards.
// It returns the first failure after trying every step.
func (s *Session) detach(ctx context.Context, att *attachment) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if att.broadcaster != nil {
		keep(att.broadcaster.Stop(ctx))
	}
	if att.stream != nil {
		att.stream.Close()
	}
	if att.typingWatch != nil {
		att.typingWatch.Cancel()
	}
	if att.requests != nil {
		att.requests.Cancel()
	}
	keep(s.services.Unread.MarkSeenNow(ctx, att.room.ID, s.identity.ID))
	if att.presence != nil {
		keep(att.presence.Detach(ctx))
	}
	return first
}

// SetDraft updates the composer of the open room.
func (s *Session) SetDraft(ctx context.Context, text string) error {
	s.mu.Lock()
	att := s.open
	s.mu.Unlock()
	if att == nil {
		return errors.ErrNoRoomOpen
	}
	att.composer.SetText(ctx, text)
	return nil
}

// Draft is the composer text of the open room.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return ""
	}
	return s.open.composer.Text()
}

// Send posts the current draft of the open room. The cached room rejects
// what is known to fail before anything is cleared; the store has the
// final word.
func (s *Session) Send(ctx context.Context) (domain.Message, error) {
	s.mu.Lock()
	att := s.open
	var room domain.Room
	if att != nil {
		room = att.room
	}
	s.mu.Unlock()
	if att == nil {
		return domain.Message{}, errors.ErrNoRoomOpen
	}
	if err := room.CanSend(s.identity.ID); err != nil {
		return domain.Message{}, err
	}
	return att.composer.Submit(ctx)
}

// Close detaches the open room and stops every subscription.
func (s *Session) Close(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	err := s.closeRoomLocked(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.roomList.Stop()
	s.cancel()
	return err
}
