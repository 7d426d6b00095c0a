package repositories

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
)

func typingCollection(room domain.RoomID) string {
	return contract.Path(RoomPath(room), "typing")
}

type TypingRepository struct {
	store contract.DocumentStore
	log   *slog.Logger
}

func NewTypingRepository(store contract.DocumentStore, log *slog.Logger) TypingRepository {
	return TypingRepository{store: store, log: log}
}

// Set overwrites the single entry of the user. typingSince is null when
// the user is not typing.
func (r TypingRepository) Set(ctx context.Context, room domain.RoomID, identity domain.Identity, typing bool) error {
	var since any
	if typing {
		since = contract.ServerTimestamp()
	}
	return errors.FromStore("set typing", r.store.Set(ctx, contract.Path(typingCollection(room), string(identity.ID)), contract.Fields{
		"userId":      string(identity.ID),
		"displayName": identity.DisplayName,
		"typingSince": since,
	}))
}

func (r TypingRepository) Watch(ctx context.Context, room domain.RoomID, fn func([]domain.TypingEntry)) (contract.Subscription, error) {
	sub, err := r.store.Watch(ctx, contract.NewQuery(typingCollection(room)), func(docs []contract.Document) {
		entries := make([]domain.TypingEntry, 0, len(docs))
		for _, doc := range docs {
			entries = append(entries, domain.TypingEntry{
				UserID:      domain.UserID(doc.ID),
				DisplayName: str(doc.Fields, "displayName"),
				TypingSince: timestamp(doc.Fields, "typingSince"),
			})
		}
		fn(entries)
	})
	return sub, errors.FromStore("watch typing", err)
}
