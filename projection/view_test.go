package projection

import (
	"context"
	"roomsync/domain"
	"roomsync/domain/event"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestView_Keeps_Latest_Snapshots(t *testing.T) {
	req := require.New(t)
	view := NewView()
	ctx := context.Background()

	req.NoError(view.Consume(ctx, event.RoomsUpdated{Rooms: []domain.RoomSummary{
		{Room: domain.Room{ID: "r1"}, UnreadCount: 2},
		{Room: domain.Room{ID: "r2"}},
	}}))
	req.Len(view.Rooms(), 2)
	req.Equal(2, view.Unread("r1"))
	req.Zero(view.Unread("missing"))

	req.NoError(view.Consume(ctx, event.MessagesUpdated{Room: "r1", Messages: []domain.Message{{ID: "m1"}}}))
	req.NoError(view.Consume(ctx, event.MessagesUpdated{Room: "r1", Messages: []domain.Message{{ID: "m1"}, {ID: "m2"}}}))
	req.Equal(domain.RoomID("r1"), view.Room())
	req.Len(view.Messages(), 2)

	req.NoError(view.Consume(ctx, event.PresenceUpdated{Room: "r1", Active: []domain.PresenceEntry{{UserID: "alice"}}}))
	req.NoError(view.Consume(ctx, event.TypingUpdated{Room: "r1", Typing: []domain.TypingEntry{{UserID: "bob"}}}))
	req.Len(view.Presence(), 1)
	req.Len(view.Typing(), 1)
}

func TestView_Another_Room_Replaces_Room_Snapshots(t *testing.T) {
	req := require.New(t)
	view := NewView()
	ctx := context.Background()

	req.NoError(view.Consume(ctx, event.MessagesUpdated{Room: "r1", Messages: []domain.Message{{ID: "m1"}}}))
	req.NoError(view.Consume(ctx, event.JoinRequestsUpdated{Room: "r1", Requests: []domain.JoinRequest{{ID: "j1"}}}))

	// A stale close of another room changes nothing
	req.NoError(view.Consume(ctx, event.RoomClosed{Room: "r2"}))
	req.Len(view.Messages(), 1)

	req.NoError(view.Consume(ctx, event.PresenceUpdated{Room: "r2"}))
	req.Equal(domain.RoomID("r2"), view.Room())
	req.Empty(view.Messages())
	req.Empty(view.JoinRequests())

	req.NoError(view.Consume(ctx, event.RoomClosed{Room: "r2"}))
	req.Empty(view.Room())
}

func TestView_Counts_Worker_Restarts(t *testing.T) {
	view := NewView()
	ctx := context.Background()

	require.NoError(t, view.Consume(ctx, event.WorkerRestartedAfterPanic{WorkerName: "RoomIndexer"}))
	require.NoError(t, view.Consume(ctx, event.WorkerRestartedAfterPanic{WorkerName: "RoomIndexer"}))

	require.Equal(t, 2, view.Restarts("RoomIndexer"))
	require.Zero(t, view.Restarts("EventFanout"))
}
