package services

import (
	"context"
	"roomsync/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unreadOf(list *RoomList, id domain.RoomID) (int, bool) {
	for _, summary := range list.Summaries() {
		if summary.Room.ID == id {
			return summary.UnreadCount, true
		}
	}
	return 0, false
}

func TestRoomList_Tracks_Unread_Counts(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	general := h.createRoom(alice, "General", false)
	random := h.createRoom(alice, "Random", false)
	h.join(bob, general)

	list := NewRoomList(h.store, "alice", h.log)
	req.NoError(list.Start(ctx, nil))
	defer list.Stop()

	req.Eventually(func() bool { return len(list.Summaries()) == 2 }, 2*time.Second, 5*time.Millisecond)

	// Bob's join notice counts, then two messages
	for _, text := range []string{"one", "two"} {
		_, err := h.messages(bob).Send(ctx, general.ID, text)
		req.NoError(err)
	}
	req.Eventually(func() bool {
		count, _ := unreadOf(list, general.ID)
		return count == 3
	}, 2*time.Second, 5*time.Millisecond)

	// Most recent activity first
	req.Equal(general.ID, list.Summaries()[0].Room.ID)
	count, ok := unreadOf(list, random.ID)
	req.True(ok)
	req.Zero(count)
}

func TestRoomList_Open_Room_Is_Always_Read(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	general := h.createRoom(alice, "General", false)
	h.join(bob, general)
	tracker := NewUnreadTracker(h.store, 0, h.log)

	list := NewRoomList(h.store, "alice", h.log)
	req.NoError(list.Start(ctx, nil))
	defer list.Stop()

	req.Eventually(func() bool {
		count, _ := unreadOf(list, general.ID)
		return count == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Opening the room pins its count to zero whatever arrives
	list.SetOpenRoom(ctx, general.ID)
	_, err := h.messages(bob).Send(ctx, general.ID, "while open")
	req.NoError(err)
	req.Never(func() bool {
		for _, summary := range list.Summaries() {
			if summary.Room.ID == general.ID && (summary.UnreadCount != 0 || !summary.IsOpen) {
				return true
			}
		}
		return false
	}, 200*time.Millisecond, 10*time.Millisecond)

	// Closing after marking seen leaves nothing unread
	req.NoError(tracker.MarkSeenNow(ctx, general.ID, "alice"))
	list.SetOpenRoom(ctx, "")
	req.Never(func() bool {
		count, _ := unreadOf(list, general.ID)
		return count != 0
	}, 200*time.Millisecond, 10*time.Millisecond)

	// New messages after closing count again
	_, err = h.messages(bob).Send(ctx, general.ID, "after close")
	req.NoError(err)
	req.Eventually(func() bool {
		count, _ := unreadOf(list, general.ID)
		return count == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRoomList_Follows_Membership(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	general := h.createRoom(alice, "General", false)

	var summaries []domain.RoomSummary
	updates := make(chan []domain.RoomSummary, 64)
	list := NewRoomList(h.store, "bob", h.log)
	req.NoError(list.Start(ctx, func(s []domain.RoomSummary) {
		select {
		case updates <- s:
		default:
		}
	}))
	defer list.Stop()

	h.join(bob, general)
	req.Eventually(func() bool {
		for {
			select {
			case summaries = <-updates:
			default:
				return len(summaries) == 1
			}
		}
	}, 2*time.Second, 5*time.Millisecond)

	req.NoError(h.membership(bob).LeaveRoom(ctx, general.ID))
	req.Eventually(func() bool { return len(list.Summaries()) == 0 }, 2*time.Second, 5*time.Millisecond)
}
