package repositories

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
)

const UsersCollection = "users"

func userPath(id domain.UserID) string {
	return contract.Path(UsersCollection, string(id))
}

type UserRepository struct {
	store contract.DocumentStore
	log   *slog.Logger
}

func NewUserRepository(store contract.DocumentStore, log *slog.Logger) UserRepository {
	return UserRepository{store: store, log: log}
}

// EnsureProfile creates users/{id} on first sign-in. An existing profile is
// left untouched.
func (r UserRepository) EnsureProfile(ctx context.Context, identity domain.Identity) error {
	err := r.store.Update(ctx, userPath(identity.ID), func(current contract.Document) (contract.Fields, error) {
		if current.Fields != nil {
			return nil, nil
		}
		return contract.Fields{
			"displayName": identity.DisplayName,
			"avatarUrl":   identity.AvatarURL,
			"isOnline":    false,
			"lastSeenAt":  contract.ServerTimestamp(),
			"createdAt":   contract.ServerTimestamp(),
		}, nil
	})
	return errors.FromStore("ensure profile", err)
}

func (r UserRepository) SetOnline(ctx context.Context, id domain.UserID, online bool) error {
	return errors.FromStore("set online", r.store.MergeWrite(ctx, userPath(id), contract.Fields{
		"isOnline":   online,
		"lastSeenAt": contract.ServerTimestamp(),
	}))
}

func (r UserRepository) Get(ctx context.Context, id domain.UserID) (domain.User, error) {
	doc, err := r.store.Get(ctx, userPath(id))
	if err != nil {
		return domain.User{}, errors.Store("get user", err)
	}
	return domain.User{
		ID:          id,
		DisplayName: str(doc.Fields, "displayName"),
		AvatarURL:   str(doc.Fields, "avatarUrl"),
		IsOnline:    boolean(doc.Fields, "isOnline"),
		LastSeenAt:  timestamp(doc.Fields, "lastSeenAt"),
	}, nil
}
