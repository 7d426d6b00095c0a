package services

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
	"roomsync/repositories"
)

// JoinRequestService exposes the pending queue of a private room to its
// admins. Deciding requests lives in MembershipService.
type JoinRequestService struct {
	identity contract.IdentityProvider
	rooms    repositories.RoomRepository
	requests repositories.JoinRequestRepository
	log      *slog.Logger
}

func NewJoinRequestService(store contract.DocumentStore, identity contract.IdentityProvider, log *slog.Logger) *JoinRequestService {
	return &JoinRequestService{
		identity: identity,
		rooms:    repositories.NewRoomRepository(store, log),
		requests: repositories.NewJoinRequestRepository(store, log),
		log:      log,
	}
}

// WatchPending streams the pending requests of roomID, oldest first.
// Only admins may watch.
func (s *JoinRequestService) WatchPending(ctx context.Context, roomID domain.RoomID, onChange func([]domain.JoinRequest)) (contract.Subscription, error) {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsAdmin(me.ID) {
		return nil, errors.ErrNotAdmin
	}
	return s.requests.WatchPending(ctx, roomID, onChange)
}
