package repositories

import (
	"context"
	"log/slog"
	"maps"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
	"time"
)

const (
	RoomsCollection       = "rooms"
	InviteCodesCollection = "inviteCodes"
)

func RoomPath(id domain.RoomID) string {
	return contract.Path(RoomsCollection, string(id))
}

func inviteCodePath(code string) string {
	return contract.Path(InviteCodesCollection, code)
}

// RoomRepository maps rooms/{id} documents. Methods suffixed Tx run inside
// a caller supplied transaction so membership changes stay atomic with the
// documents written next to them.
type RoomRepository struct {
	store contract.DocumentStore
	log   *slog.Logger
}

func NewRoomRepository(store contract.DocumentStore, log *slog.Logger) RoomRepository {
	return RoomRepository{store: store, log: log}
}

func (r RoomRepository) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	doc, err := r.store.Get(ctx, RoomPath(id))
	if errors.Is(err, contract.ErrDocumentNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, errors.Store("get room", err)
	}
	return toRoom(doc), nil
}

func (r RoomRepository) GetTx(tx contract.Tx, id domain.RoomID) (domain.Room, error) {
	doc, err := tx.Get(RoomPath(id))
	if errors.Is(err, contract.ErrDocumentNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(doc), nil
}

// CreateTx writes a new room and reserves its invite code.
// createdAt and the creator's watermark take the commit time.
func (r RoomRepository) CreateTx(tx contract.Tx, room domain.Room) (domain.RoomID, error) {
	_, err := tx.Get(inviteCodePath(room.InviteCode))
	if err == nil {
		return "", errors.ErrInviteCodeCollision
	}
	if !errors.Is(err, contract.ErrDocumentNotFound) {
		return "", err
	}

	fields := toRoomFields(room)
	fields["createdAt"] = contract.ServerTimestamp()
	fields["lastSeen"] = map[string]any{string(room.CreatedBy): contract.ServerTimestamp()}
	id, err := tx.Create(RoomsCollection, fields)
	if err != nil {
		return "", err
	}
	if err = tx.Set(inviteCodePath(room.InviteCode), contract.Fields{"roomId": id}); err != nil {
		return "", err
	}
	return domain.RoomID(id), nil
}

// GetByInviteCodeTx redeems a normalised code.
func (r RoomRepository) GetByInviteCodeTx(tx contract.Tx, code string) (domain.Room, error) {
	doc, err := tx.Get(inviteCodePath(code))
	if errors.Is(err, contract.ErrDocumentNotFound) {
		return domain.Room{}, errors.ErrInvalidInviteCode
	}
	if err != nil {
		return domain.Room{}, err
	}
	room, err := r.GetTx(tx, domain.RoomID(str(doc.Fields, "roomId")))
	if errors.Is(err, errors.ErrRoomNotFound) {
		return domain.Room{}, errors.ErrInvalidInviteCode
	}
	return room, err
}

// SaveMembershipTx writes members, admins and memberCount together.
func (r RoomRepository) SaveMembershipTx(tx contract.Tx, room domain.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	return tx.Merge(RoomPath(room.ID), contract.Fields{
		"members":     toStrings(room.Members),
		"admins":      toStrings(room.Admins),
		"memberCount": room.MemberCount,
	})
}

// SetLastSeenTx moves one user's watermark. at is a time.Time or a
// contract.ServerTime.
func (r RoomRepository) SetLastSeenTx(tx contract.Tx, id domain.RoomID, user domain.UserID, at any) error {
	return tx.Merge(RoomPath(id), contract.Fields{"lastSeen." + string(user): at})
}

func (r RoomRepository) SetLastSeen(ctx context.Context, id domain.RoomID, user domain.UserID, at any) error {
	return errors.FromStore("set last seen", r.store.MergeWrite(ctx, RoomPath(id), contract.Fields{"lastSeen." + string(user): at}))
}

func (r RoomRepository) SetSettingsTx(tx contract.Tx, id domain.RoomID, settings contract.Fields) error {
	return tx.Merge(RoomPath(id), settings)
}

// AdvanceLastSeen moves one user's watermark forward to at. An older at is
// ignored so concurrent readers never resurrect unread messages.
func (r RoomRepository) AdvanceLastSeen(ctx context.Context, id domain.RoomID, user domain.UserID, at time.Time) error {
	err := r.store.Update(ctx, RoomPath(id), func(current contract.Document) (contract.Fields, error) {
		if current.Fields == nil {
			return nil, errors.ErrRoomNotFound
		}
		if !at.After(userTimes(current.Fields, "lastSeen")[user]) {
			return nil, nil
		}
		next := maps.Clone(current.Fields)
		lastSeen, _ := next["lastSeen"].(map[string]any)
		lastSeen = maps.Clone(lastSeen)
		if lastSeen == nil {
			lastSeen = make(map[string]any, 1)
		}
		lastSeen[string(user)] = at
		next["lastSeen"] = lastSeen
		return next, nil
	})
	return errors.FromStore("advance last seen", err)
}

// SetLastMessage updates the room list preview unless a newer message
// already did.
func (r RoomRepository) SetLastMessage(ctx context.Context, id domain.RoomID, preview string, at time.Time, by string) error {
	err := r.store.Update(ctx, RoomPath(id), func(current contract.Document) (contract.Fields, error) {
		if current.Fields == nil {
			return nil, errors.ErrRoomNotFound
		}
		if timestamp(current.Fields, "lastMessageAt").After(at) {
			return nil, nil
		}
		next := maps.Clone(current.Fields)
		next["lastMessagePreview"] = preview
		next["lastMessageAt"] = at
		next["lastMessageBy"] = by
		return next, nil
	})
	return errors.FromStore("set last message", err)
}

// WatchMemberOf streams every room whose members contain user.
func (r RoomRepository) WatchMemberOf(ctx context.Context, user domain.UserID, fn func([]domain.Room)) (contract.Subscription, error) {
	q := contract.NewQuery(RoomsCollection).Where("members", contract.OpArrayContains, string(user))
	sub, err := r.store.Watch(ctx, q, func(docs []contract.Document) { fn(toRooms(docs)) })
	return sub, errors.FromStore("watch member rooms", err)
}

// WatchAll streams the whole room collection, for the search index.
func (r RoomRepository) WatchAll(ctx context.Context, fn func([]domain.Room)) (contract.Subscription, error) {
	sub, err := r.store.Watch(ctx, contract.NewQuery(RoomsCollection), func(docs []contract.Document) { fn(toRooms(docs)) })
	return sub, errors.FromStore("watch rooms", err)
}

func (r RoomRepository) FindAll(ctx context.Context) ([]domain.Room, error) {
	docs, err := r.store.Find(ctx, contract.NewQuery(RoomsCollection))
	if err != nil {
		return nil, errors.Store("find rooms", err)
	}
	return toRooms(docs), nil
}

func toRooms(docs []contract.Document) []domain.Room {
	rooms := make([]domain.Room, 0, len(docs))
	for _, doc := range docs {
		rooms = append(rooms, toRoom(doc))
	}
	return rooms
}

func toRoom(doc contract.Document) domain.Room {
	f := doc.Fields
	return domain.Room{
		ID:                 domain.RoomID(doc.ID),
		Name:               str(f, "name"),
		Description:        str(f, "description"),
		IsPrivate:          boolean(f, "isPrivate"),
		InviteCode:         str(f, "inviteCode"),
		Members:            userIDs(f, "members"),
		Admins:             userIDs(f, "admins"),
		MemberCount:        integer(f, "memberCount"),
		AdminOnlyChat:      boolean(f, "adminOnlyChat"),
		CreatedBy:          domain.UserID(str(f, "createdBy")),
		CreatedByName:      str(f, "createdByName"),
		CreatedAt:          timestamp(f, "createdAt"),
		LastMessagePreview: str(f, "lastMessagePreview"),
		LastMessageAt:      timestamp(f, "lastMessageAt"),
		LastMessageBy:      str(f, "lastMessageBy"),
		LastSeen:           userTimes(f, "lastSeen"),
	}
}

func toRoomFields(room domain.Room) contract.Fields {
	lastSeen := make(map[string]any, len(room.LastSeen))
	for user, at := range room.LastSeen {
		lastSeen[string(user)] = at
	}
	return contract.Fields{
		"name":               room.Name,
		"description":        room.Description,
		"isPrivate":          room.IsPrivate,
		"inviteCode":         room.InviteCode,
		"members":            toStrings(room.Members),
		"admins":             toStrings(room.Admins),
		"memberCount":        room.MemberCount,
		"adminOnlyChat":      room.AdminOnlyChat,
		"createdBy":          string(room.CreatedBy),
		"createdByName":      room.CreatedByName,
		"createdAt":          timeOrNull(room.CreatedAt),
		"lastMessagePreview": room.LastMessagePreview,
		"lastMessageAt":      timeOrNull(room.LastMessageAt),
		"lastMessageBy":      room.LastMessageBy,
		"lastSeen":           lastSeen,
	}
}
