package domain

import "time"

// PresenceEntry means "currently viewing", not "is a member".
type PresenceEntry struct {
	UserID      UserID
	DisplayName string
	AvatarURL   string
	JoinedAt    time.Time
	LeftAt      time.Time
}

func (p PresenceEntry) IsActive() bool { return p.LeftAt.IsZero() }

// TypingEntry is overwritten in place; a zero TypingSince means not typing.
type TypingEntry struct {
	UserID      UserID
	DisplayName string
	TypingSince time.Time
}

// IsTypingAt tells whether the entry still counts as typing at now.
// Entries older than staleAfter are ignored when staleAfter > 0.
func (t TypingEntry) IsTypingAt(now time.Time, staleAfter time.Duration) bool {
	if t.TypingSince.IsZero() {
		return false
	}
	if staleAfter > 0 && now.Sub(t.TypingSince) > staleAfter {
		return false
	}
	return true
}
