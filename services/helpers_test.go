package services

import (
	"context"
	"log/slog"
	"roomsync/domain"
	"roomsync/infrastructure/storage"
	"roomsync/mocks"
	"roomsync/repositories"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice = domain.Identity{ID: "alice", DisplayName: "Alice"}
	bob   = domain.Identity{ID: "bob", DisplayName: "Bob"}
	carol = domain.Identity{ID: "carol", DisplayName: "Carol"}
)

// tickingClock advances one second per reading so every commit gets a
// distinct server time.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	t     *testing.T
	ctrl  *gomock.Controller
	store *storage.Store
	log   *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	store, closeDB, err := storage.OpenInMemory(log, storage.WithClock(newTickingClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeDB() })
	return &harness{t: t, ctrl: gomock.NewController(t), store: store, log: log}
}

// as returns an identity provider permanently signed in as identity.
func (h *harness) as(identity domain.Identity) *mocks.MockIdentityProvider {
	provider := mocks.NewMockIdentityProvider(h.ctrl)
	provider.EXPECT().CurrentUser().DoAndReturn(func() *domain.Identity {
		copied := identity
		return &copied
	}).AnyTimes()
	return provider
}

func (h *harness) membership(identity domain.Identity) *MembershipService {
	searcher := mocks.NewMockRoomSearcher(h.ctrl)
	return NewMembershipService(h.store, h.as(identity), searcher, h.log)
}

func (h *harness) messages(identity domain.Identity) *MessageService {
	return NewMessageService(h.store, h.as(identity), h.log)
}

func (h *harness) createRoom(owner domain.Identity, name string, isPrivate bool) domain.Room {
	h.t.Helper()
	ctx := context.Background()
	id, err := h.membership(owner).CreateRoom(ctx, name, "", isPrivate)
	require.NoError(h.t, err)
	room, err := h.membership(owner).GetRoom(ctx, id)
	require.NoError(h.t, err)
	return room
}

// join makes identity a member of a public room.
func (h *harness) join(identity domain.Identity, room domain.Room) {
	h.t.Helper()
	result, err := h.membership(identity).JoinWithCode(context.Background(), room.InviteCode)
	require.NoError(h.t, err)
	require.Equal(h.t, domain.JoinOutcomeJoined, result.Outcome)
}

func (h *harness) room(id domain.RoomID) domain.Room {
	h.t.Helper()
	room, err := h.membership(alice).GetRoom(context.Background(), id)
	require.NoError(h.t, err)
	return room
}

// roomLog reads the whole stored log of a room, oldest first.
func (h *harness) roomLog(roomID domain.RoomID) []domain.Message {
	h.t.Helper()
	messages, err := repositories.NewMessageRepository(h.store, h.log).FindAfter(context.Background(), roomID, time.Time{})
	require.NoError(h.t, err)
	domain.SortMessages(messages)
	return messages
}
