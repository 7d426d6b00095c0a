package repositories

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
)

func presenceCollection(room domain.RoomID) string {
	return contract.Path(RoomPath(room), "presence")
}

type PresenceRepository struct {
	store contract.DocumentStore
	log   *slog.Logger
}

func NewPresenceRepository(store contract.DocumentStore, log *slog.Logger) PresenceRepository {
	return PresenceRepository{store: store, log: log}
}

// Enter overwrites the user's entry: joined now, not left.
func (r PresenceRepository) Enter(ctx context.Context, room domain.RoomID, identity domain.Identity) error {
	return errors.FromStore("enter room", r.store.Set(ctx, contract.Path(presenceCollection(room), string(identity.ID)), contract.Fields{
		"userId":      string(identity.ID),
		"displayName": identity.DisplayName,
		"avatarUrl":   identity.AvatarURL,
		"joinedAt":    contract.ServerTimestamp(),
		"leftAt":      nil,
	}))
}

// Leave stamps leftAt, keeping the rest of the entry.
func (r PresenceRepository) Leave(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	return errors.FromStore("leave room", r.store.MergeWrite(ctx, contract.Path(presenceCollection(room), string(user)), contract.Fields{
		"leftAt": contract.ServerTimestamp(),
	}))
}

// Watch streams every entry of the room, most recent joiner first.
func (r PresenceRepository) Watch(ctx context.Context, room domain.RoomID, fn func([]domain.PresenceEntry)) (contract.Subscription, error) {
	q := contract.NewQuery(presenceCollection(room)).OrderBy("joinedAt", contract.Desc)
	sub, err := r.store.Watch(ctx, q, func(docs []contract.Document) {
		entries := make([]domain.PresenceEntry, 0, len(docs))
		for _, doc := range docs {
			entries = append(entries, domain.PresenceEntry{
				UserID:      domain.UserID(doc.ID),
				DisplayName: str(doc.Fields, "displayName"),
				AvatarURL:   str(doc.Fields, "avatarUrl"),
				JoinedAt:    timestamp(doc.Fields, "joinedAt"),
				LeftAt:      timestamp(doc.Fields, "leftAt"),
			})
		}
		fn(entries)
	})
	return sub, errors.FromStore("watch presence", err)
}
