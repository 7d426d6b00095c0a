// Package event defines what the engine tells the presentation layer.
// Every event is a full snapshot, never a delta.
package event

import (
	"roomsync/domain"
)

type Type string

const (
	RoomsUpdatedType        Type = "ROOMS_UPDATED"
	MessagesUpdatedType     Type = "MESSAGES_UPDATED"
	PresenceUpdatedType     Type = "PRESENCE_UPDATED"
	TypingUpdatedType       Type = "TYPING_UPDATED"
	JoinRequestsUpdatedType Type = "JOIN_REQUESTS_UPDATED"
	RoomClosedType          Type = "ROOM_CLOSED"
	WorkerRestartedType     Type = "WORKER_RESTARTED_AFTER_PANIC"
)

type Event interface {
	Type() Type
	// RoomID is empty for events that are not scoped to a room.
	RoomID() domain.RoomID
}

type RoomsUpdated struct {
	Rooms []domain.RoomSummary
}

func (RoomsUpdated) Type() Type            { return RoomsUpdatedType }
func (RoomsUpdated) RoomID() domain.RoomID { return "" }

type MessagesUpdated struct {
	Room     domain.RoomID
	Messages []domain.Message
}

func (MessagesUpdated) Type() Type              { return MessagesUpdatedType }
func (e MessagesUpdated) RoomID() domain.RoomID { return e.Room }

type PresenceUpdated struct {
	Room   domain.RoomID
	Active []domain.PresenceEntry
}

func (PresenceUpdated) Type() Type              { return PresenceUpdatedType }
func (e PresenceUpdated) RoomID() domain.RoomID { return e.Room }

type TypingUpdated struct {
	Room   domain.RoomID
	Typing []domain.TypingEntry
}

func (TypingUpdated) Type() Type              { return TypingUpdatedType }
func (e TypingUpdated) RoomID() domain.RoomID { return e.Room }

type JoinRequestsUpdated struct {
	Room     domain.RoomID
	Requests []domain.JoinRequest
}

func (JoinRequestsUpdated) Type() Type              { return JoinRequestsUpdatedType }
func (e JoinRequestsUpdated) RoomID() domain.RoomID { return e.Room }

type RoomClosed struct {
	Room domain.RoomID
}

func (RoomClosed) Type() Type              { return RoomClosedType }
func (e RoomClosed) RoomID() domain.RoomID { return e.Room }

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

func (WorkerRestartedAfterPanic) Type() Type            { return WorkerRestartedType }
func (WorkerRestartedAfterPanic) RoomID() domain.RoomID { return "" }
