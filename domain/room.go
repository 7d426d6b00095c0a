package domain

import (
	"roomsync/errors"
	"slices"
	"time"

	"github.com/samber/lo"
)

type RoomID string

// Room is an access-controlled message channel.
// Members, Admins and MemberCount are only ever changed through the
// With*/Without* methods below, which keep them consistent.
type Room struct {
	ID                 RoomID
	Name               string
	Description        string
	IsPrivate          bool
	InviteCode         string
	Members            []UserID
	Admins             []UserID
	MemberCount        int
	AdminOnlyChat      bool
	CreatedBy          UserID
	CreatedByName      string
	CreatedAt          time.Time
	LastMessagePreview string
	LastMessageAt      time.Time
	LastMessageBy      string
	LastSeen           map[UserID]time.Time
}

func (r Room) IsMember(id UserID) bool { return slices.Contains(r.Members, id) }

func (r Room) IsAdmin(id UserID) bool { return slices.Contains(r.Admins, id) }

// CanSend tells whether id may post a message right now.
func (r Room) CanSend(id UserID) error {
	if !r.IsMember(id) {
		return errors.ErrNotMember
	}
	if r.AdminOnlyChat && !r.IsAdmin(id) {
		return errors.ErrAdminOnlyChat
	}
	return nil
}

// Watermark returns the last-seen timestamp of id, zero when never seen.
func (r Room) Watermark(id UserID) time.Time {
	return r.LastSeen[id]
}

// ActivityAt is the ordering key of the room list.
func (r Room) ActivityAt() time.Time {
	if !r.LastMessageAt.IsZero() {
		return r.LastMessageAt
	}
	return r.CreatedAt
}

// WithMember adds id to the member set. Adding an existing member is a no-op.
func (r Room) WithMember(id UserID) Room {
	r.Members = lo.Uniq(append(slices.Clone(r.Members), id))
	r.MemberCount = len(r.Members)
	return r
}

// WithoutMember removes id from members and admins.
// It refuses when id is the only admin, whatever the member count.
func (r Room) WithoutMember(id UserID) (Room, error) {
	if !r.IsMember(id) {
		return r, errors.ErrNotMember
	}
	if r.IsAdmin(id) && len(r.Admins) == 1 {
		return r, errors.ErrLastAdmin
	}
	r.Members = lo.Without(r.Members, id)
	r.Admins = lo.Without(r.Admins, id)
	r.MemberCount = len(r.Members)
	return r, nil
}

// WithAdmin promotes a member. Promoting an admin is a no-op.
func (r Room) WithAdmin(id UserID) (Room, error) {
	if !r.IsMember(id) {
		return r, errors.ErrNotMember
	}
	r.Admins = lo.Uniq(append(slices.Clone(r.Admins), id))
	return r, nil
}

// WithoutAdmin demotes an admin, never leaving the room without one.
func (r Room) WithoutAdmin(id UserID) (Room, error) {
	if !r.IsAdmin(id) {
		return r, nil
	}
	if len(r.Admins) == 1 {
		return r, errors.ErrLastAdmin
	}
	r.Admins = lo.Without(r.Admins, id)
	return r, nil
}

// Validate checks the membership invariants.
func (r Room) Validate() error {
	if r.MemberCount != len(r.Members) {
		return errors.ErrConflict
	}
	if len(r.Members) > 0 && len(r.Admins) == 0 {
		return errors.ErrLastAdmin
	}
	if len(lo.Without(r.Admins, r.Members...)) > 0 {
		return errors.ErrNotMember
	}
	return nil
}
