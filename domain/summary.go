package domain

import "slices"

// RoomSummary is one row of the room list.
type RoomSummary struct {
	Room        Room
	UnreadCount int
	IsOpen      bool
}

// SortByActivity orders summaries newest activity first, ties by id.
func SortByActivity(summaries []RoomSummary) {
	slices.SortStableFunc(summaries, func(a, b RoomSummary) int {
		ta, tb := a.Room.ActivityAt(), b.Room.ActivityAt()
		switch {
		case ta.After(tb):
			return -1
		case tb.After(ta):
			return 1
		case a.Room.ID < b.Room.ID:
			return -1
		case a.Room.ID > b.Room.ID:
			return 1
		default:
			return 0
		}
	})
}
