package domain

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

type MessageID string

type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
)

type SystemAction string

const (
	ActionJoined SystemAction = "joined"
	ActionLeft   SystemAction = "left"
)

// PreviewLength is the number of runes kept in a room's last message preview.
const PreviewLength = 50

// Message represents an immutable chat event.
type Message struct {
	ID           MessageID
	RoomID       RoomID
	Text         string
	AuthorID     UserID
	AuthorName   string
	AuthorAvatar string
	CreatedAt    time.Time
	Kind         MessageKind
	SystemAction SystemAction
}

// Before is the total order of a room log: createdAt, then id.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

func CompareMessages(a, b Message) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}

// SortMessages orders messages in place.
func SortMessages(messages []Message) {
	slices.SortStableFunc(messages, CompareMessages)
}

// Preview truncates text for the room list.
func Preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength])
}

// IsUnreadFor tells whether the message counts as unread for a reader
// whose watermark is seen.
func (m Message) IsUnreadFor(reader UserID, seen time.Time) bool {
	return m.AuthorID != reader && m.CreatedAt.After(seen)
}
