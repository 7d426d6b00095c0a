package services

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/repositories"
)

// UserStatus keeps users/{id} in step with sign-in transitions.
type UserStatus struct {
	users repositories.UserRepository
	log   *slog.Logger
}

func NewUserStatus(store contract.DocumentStore, log *slog.Logger) *UserStatus {
	return &UserStatus{users: repositories.NewUserRepository(store, log), log: log}
}

// SignedIn creates the profile on first sign-in and marks it online.
func (u *UserStatus) SignedIn(ctx context.Context, identity domain.Identity) error {
	if err := u.users.EnsureProfile(ctx, identity); err != nil {
		return err
	}
	return u.users.SetOnline(ctx, identity.ID, true)
}

func (u *UserStatus) SignedOut(ctx context.Context, id domain.UserID) error {
	return u.users.SetOnline(ctx, id, false)
}
