// Package domain contains core concepts of the chat engine.
// No store, network, or UI logic should be added here.
package domain

import "time"

type UserID string

// Identity is what the identity provider tells us about the signed-in user.
type Identity struct {
	ID          UserID
	DisplayName string
	AvatarURL   string
}

// User is the stored profile. The engine only writes IsOnline and LastSeenAt.
type User struct {
	ID          UserID
	DisplayName string
	AvatarURL   string
	IsOnline    bool
	LastSeenAt  time.Time
}

// Member is a room member with the profile the room settings show.
type Member struct {
	User
	IsAdmin bool
}
