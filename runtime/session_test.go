package runtime

import (
	"context"
	"log/slog"
	"roomsync/auth"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/domain/event"
	"roomsync/errors"
	"roomsync/infrastructure/storage"
	"roomsync/repositories"
	"roomsync/services"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var (
	secret = []byte("runtime-test-secret")
	alice  = domain.Identity{ID: "alice", DisplayName: "Alice"}
	bob    = domain.Identity{ID: "bob", DisplayName: "Bob"}
	carol  = domain.Identity{ID: "carol", DisplayName: "Carol"}
)

// recorder keeps every event it is handed, as a publish func or as a sink.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) publish(_ context.Context, e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Consume(ctx context.Context, e event.Event) error {
	r.publish(ctx, e)
	return nil
}

func (r *recorder) last(t event.Type) event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type() == t {
			return r.events[i]
		}
	}
	return nil
}

func signedIn(t *testing.T, identity domain.Identity, log *slog.Logger) *auth.TokenIdentity {
	t.Helper()
	provider := auth.NewTokenIdentity(secret, log)
	token, err := auth.GenerateToken(secret, identity, time.Hour)
	require.NoError(t, err)
	_, err = provider.SignIn(token)
	require.NoError(t, err)
	return provider
}

func newTestStore(t *testing.T) (*storage.Store, *slog.Logger) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	store, closeDB, err := storage.OpenInMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeDB() })
	return store, log
}

func newServices(store contract.DocumentStore, identity contract.IdentityProvider, log *slog.Logger) Services {
	return Services{
		Membership:   services.NewMembershipService(store, identity, nil, log),
		Messages:     services.NewMessageService(store, identity, log),
		Presence:     services.NewPresenceTracker(store, log),
		Unread:       services.NewUnreadTracker(store, 0, log),
		Typing:       services.NewTypingService(store, 50*time.Millisecond, 0, log),
		JoinRequests: services.NewJoinRequestService(store, identity, log),
	}
}

func newTestSession(t *testing.T, store *storage.Store, identity domain.Identity, log *slog.Logger) (*Session, Services, *recorder) {
	t.Helper()
	svc := newServices(store, signedIn(t, identity, log), log)
	rec := &recorder{}
	session := NewSession(context.Background(), identity, store, svc, rec.publish, log)
	require.NoError(t, session.Start())
	t.Cleanup(func() { _ = session.Close(context.Background()) })
	return session, svc, rec
}

// requireLeft checks the user's presence entry in the room is stamped as left.
func requireLeft(t *testing.T, store *storage.Store, roomID domain.RoomID, user domain.UserID) {
	t.Helper()
	doc, err := store.Get(context.Background(), contract.Path(repositories.RoomPath(roomID), "presence", string(user)))
	require.NoError(t, err)
	require.IsType(t, time.Time{}, doc.Fields["leftAt"])
}

func TestSession_Open_Send_Close(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, log := newTestStore(t)
	session, svc, rec := newTestSession(t, store, alice, log)
	bobSvc := newServices(store, signedIn(t, bob, log), log)

	// Given alice owns a room that bob joined
	roomID, err := svc.Membership.CreateRoom(ctx, "General", "", false)
	req.NoError(err)
	room, err := svc.Membership.GetRoom(ctx, roomID)
	req.NoError(err)
	_, err = bobSvc.Membership.JoinWithCode(ctx, room.InviteCode)
	req.NoError(err)

	req.Eventually(func() bool {
		rooms, ok := rec.last(event.RoomsUpdatedType).(event.RoomsUpdated)
		return ok && len(rooms.Rooms) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// When alice opens it
	req.NoError(session.OpenRoom(ctx, roomID))
	req.Equal(roomID, session.OpenRoomID())

	// Then she is listed as present and sees bob's messages
	req.Eventually(func() bool {
		presence, ok := rec.last(event.PresenceUpdatedType).(event.PresenceUpdated)
		return ok && len(presence.Active) == 1 && presence.Active[0].UserID == "alice"
	}, 2*time.Second, 5*time.Millisecond)

	_, err = bobSvc.Messages.Send(ctx, roomID, "hi alice")
	req.NoError(err)
	req.Eventually(func() bool {
		messages, ok := rec.last(event.MessagesUpdatedType).(event.MessagesUpdated)
		return ok && len(messages.Messages) > 0 && messages.Messages[len(messages.Messages)-1].Text == "hi alice"
	}, 2*time.Second, 5*time.Millisecond)

	// The open room never shows unread messages
	for _, summary := range session.Rooms() {
		req.Zero(summary.UnreadCount)
	}

	// Sending clears the draft
	req.NoError(session.SetDraft(ctx, "hello bob"))
	req.Equal("hello bob", session.Draft())
	sent, err := session.Send(ctx)
	req.NoError(err)
	req.Equal("hello bob", sent.Text)
	req.Empty(session.Draft())

	// Closing detaches everything
	req.NoError(session.CloseRoom(ctx))
	req.Empty(session.OpenRoomID())
	closed, ok := rec.last(event.RoomClosedType).(event.RoomClosed)
	req.True(ok)
	req.Equal(roomID, closed.Room)

	_, err = session.Send(ctx)
	req.ErrorIs(err, errors.ErrNoRoomOpen)
	req.ErrorIs(session.SetDraft(ctx, "late"), errors.ErrNoRoomOpen)

	requireLeft(t, store, roomID, "alice")
}

func TestSession_Rejects_Rooms_It_Is_Not_Member_Of(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, log := newTestStore(t)
	session, _, _ := newTestSession(t, store, alice, log)
	bobSvc := newServices(store, signedIn(t, bob, log), log)

	roomID, err := bobSvc.Membership.CreateRoom(ctx, "Bob's place", "", false)
	req.NoError(err)

	req.ErrorIs(session.OpenRoom(ctx, roomID), errors.ErrNotMember)
	req.ErrorIs(session.OpenRoom(ctx, "missing"), errors.ErrRoomNotFound)
	req.Empty(session.OpenRoomID())
}

func TestSession_Switching_Rooms_Detaches_The_Previous_One(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, log := newTestStore(t)
	session, svc, rec := newTestSession(t, store, alice, log)

	first, err := svc.Membership.CreateRoom(ctx, "First", "", false)
	req.NoError(err)
	second, err := svc.Membership.CreateRoom(ctx, "Second", "", false)
	req.NoError(err)

	req.NoError(session.OpenRoom(ctx, first))
	req.NoError(session.OpenRoom(ctx, second))
	req.Equal(second, session.OpenRoomID())

	closed, ok := rec.last(event.RoomClosedType).(event.RoomClosed)
	req.True(ok)
	req.Equal(first, closed.Room)

	requireLeft(t, store, first, "alice")
}

func TestSession_Admin_Follows_Join_Requests(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, log := newTestStore(t)
	session, svc, rec := newTestSession(t, store, alice, log)
	carolSvc := newServices(store, signedIn(t, carol, log), log)

	roomID, err := svc.Membership.CreateRoom(ctx, "Eng", "", true)
	req.NoError(err)
	room, err := svc.Membership.GetRoom(ctx, roomID)
	req.NoError(err)
	req.NoError(session.OpenRoom(ctx, roomID))

	_, err = carolSvc.Membership.JoinWithCode(ctx, room.InviteCode)
	req.NoError(err)

	req.Eventually(func() bool {
		pending, ok := rec.last(event.JoinRequestsUpdatedType).(event.JoinRequestsUpdated)
		return ok && len(pending.Requests) == 1 && pending.Requests[0].UserID == "carol"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSession_Closed_Session_Opens_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, log := newTestStore(t)
	session, svc, _ := newTestSession(t, store, alice, log)

	roomID, err := svc.Membership.CreateRoom(ctx, "General", "", false)
	req.NoError(err)

	req.NoError(session.Close(ctx))
	req.ErrorIs(session.OpenRoom(ctx, roomID), errors.ErrNotAuthenticated)
	req.Empty(session.OpenRoomID())
}
