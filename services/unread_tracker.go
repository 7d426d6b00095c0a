package services

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/repositories"
	"time"

	"github.com/samber/lo"
)

// DefaultSeenEpsilon is added to the watermark so the newest message seen
// is strictly older than it.
const DefaultSeenEpsilon = time.Millisecond

// UnreadTracker owns the per-user lastSeen watermarks of rooms.
type UnreadTracker struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	epsilon  time.Duration
	log      *slog.Logger
}

func NewUnreadTracker(store contract.DocumentStore, epsilon time.Duration, log *slog.Logger) *UnreadTracker {
	if epsilon <= 0 {
		epsilon = DefaultSeenEpsilon
	}
	return &UnreadTracker{
		rooms:    repositories.NewRoomRepository(store, log),
		messages: repositories.NewMessageRepository(store, log),
		epsilon:  epsilon,
		log:      log,
	}
}

// MarkSeen moves the watermark past newest. It never moves backwards.
func (u *UnreadTracker) MarkSeen(ctx context.Context, roomID domain.RoomID, userID domain.UserID, newest time.Time) error {
	return u.rooms.AdvanceLastSeen(ctx, roomID, userID, newest.Add(u.epsilon))
}

// MarkSeenNow moves the watermark to the store's now, used when leaving a room.
func (u *UnreadTracker) MarkSeenNow(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return u.rooms.SetLastSeen(ctx, roomID, userID, contract.ServerTimestampAfter(u.epsilon))
}

// UnreadCount reads the messages after the user's watermark.
func (u *UnreadTracker) UnreadCount(ctx context.Context, room domain.Room, userID domain.UserID) (int, error) {
	messages, err := u.messages.FindAfter(ctx, room.ID, room.Watermark(userID))
	if err != nil {
		return 0, err
	}
	return CountUnread(messages, userID, room.Watermark(userID)), nil
}

// CountUnread counts messages newer than seen that someone else wrote.
func CountUnread(messages []domain.Message, reader domain.UserID, seen time.Time) int {
	return lo.CountBy(messages, func(m domain.Message) bool { return m.IsUnreadFor(reader, seen) })
}
