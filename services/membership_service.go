//go:generate go run go.uber.org/mock/mockgen -source=membership_service.go -destination=../mocks/mock_room_searcher.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
	"roomsync/repositories"
	"strings"

	"golang.org/x/sync/singleflight"
)

const (
	searchLimit        = 10
	maxSearchWidening  = 8
	inviteCodeAttempts = 5
)

// RoomSearcher finds rooms by a case-insensitive substring of their name or
// description, skipping the rooms exclude belongs to.
type RoomSearcher interface {
	Search(ctx context.Context, term string, exclude domain.UserID, limit int) ([]domain.RoomID, error)
}

// MembershipService is the entry point of the engine: room creation,
// invite codes, join requests and admin actions.
//
// Every change to members, admins or memberCount is one store transaction
// over the authoritative room document, so concurrent callers never lose
// each other's updates.
type MembershipService struct {
	store    contract.DocumentStore
	identity contract.IdentityProvider
	searcher RoomSearcher
	rooms    repositories.RoomRepository
	requests repositories.JoinRequestRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	log      *slog.Logger
	searches singleflight.Group
}

func NewMembershipService(store contract.DocumentStore, identity contract.IdentityProvider,
	searcher RoomSearcher, log *slog.Logger) *MembershipService {
	return &MembershipService{
		store:    store,
		identity: identity,
		searcher: searcher,
		rooms:    repositories.NewRoomRepository(store, log),
		requests: repositories.NewJoinRequestRepository(store, log),
		messages: repositories.NewMessageRepository(store, log),
		users:    repositories.NewUserRepository(store, log),
		log:      log,
	}
}

func currentIdentity(provider contract.IdentityProvider) (domain.Identity, error) {
	identity := provider.CurrentUser()
	if identity == nil {
		return domain.Identity{}, errors.ErrNotAuthenticated
	}
	return *identity, nil
}

// CreateRoom creates a room owned by the caller and returns its id.
func (s *MembershipService) CreateRoom(ctx context.Context, name, description string, isPrivate bool) (domain.RoomID, error) {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return "", err
	}
	request := CreateRoomRequest{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err = ValidateCreateRoom(request); err != nil {
		return "", err
	}

	for attempt := 1; attempt <= inviteCodeAttempts; attempt++ {
		code, err := domain.GenerateInviteCode()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		room := domain.Room{
			Name:          request.Name,
			Description:   request.Description,
			IsPrivate:     isPrivate,
			InviteCode:    code,
			CreatedBy:     me.ID,
			CreatedByName: me.DisplayName,
		}.WithMember(me.ID)
		room, err = room.WithAdmin(me.ID)
		if err != nil {
			return "", err
		}

		var id domain.RoomID
		err = s.store.Transact(ctx, func(tx contract.Tx) error {
			id, err = s.rooms.CreateTx(tx, room)
			return err
		})
		if errors.Is(err, errors.ErrInviteCodeCollision) {
			s.log.Debug("Invite code already taken", "attempt", attempt)
			continue
		}
		if err != nil {
			return "", errors.FromStore("create room", err)
		}
		s.log.Info("Room created", "room", id, "private", isPrivate)
		return id, nil
	}
	return "", errors.ErrInviteCodeCollision
}

// JoinWithCode redeems an invite code. Public rooms are joined at once,
// private rooms get a single pending join request per user.
func (s *MembershipService) JoinWithCode(ctx context.Context, code string) (domain.JoinResult, error) {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return domain.JoinResult{}, err
	}
	code = domain.NormalizeInviteCode(code)
	if code == "" {
		return domain.JoinResult{}, errors.ErrEmptyInviteCode
	}
	if !domain.IsValidInviteCode(code) {
		return domain.JoinResult{}, errors.ErrInvalidInviteCode
	}

	var result domain.JoinResult
	err = s.store.Transact(ctx, func(tx contract.Tx) error {
		room, err := s.rooms.GetByInviteCodeTx(tx, code)
		if err != nil {
			return err
		}
		result = domain.JoinResult{RoomID: room.ID}

		switch {
		case room.IsMember(me.ID):
			result.Outcome = domain.JoinOutcomeAlreadyMember
			return nil

		case room.IsPrivate:
			pending, ok, err := s.requests.PendingIDTx(tx, room.ID, me.ID)
			if err != nil {
				return err
			}
			if ok {
				result.Outcome = domain.JoinOutcomeRequestPending
				result.RequestID = pending
				return nil
			}
			result.RequestID, err = s.requests.CreateTx(tx, domain.JoinRequest{
				RoomID:      room.ID,
				UserID:      me.ID,
				DisplayName: me.DisplayName,
				AvatarURL:   me.AvatarURL,
			})
			result.Outcome = domain.JoinOutcomeRequestSent
			return err

		default:
			if err = s.rooms.SaveMembershipTx(tx, room.WithMember(me.ID)); err != nil {
				return err
			}
			result.Outcome = domain.JoinOutcomeJoined
			return s.rooms.SetLastSeenTx(tx, room.ID, me.ID, contract.ServerTimestamp())
		}
	})
	if err != nil {
		return domain.JoinResult{}, errors.FromStore("join with code", err)
	}

	s.log.Debug("Invite code redeemed", "room", result.RoomID, "outcome", result.Outcome)
	if result.Outcome == domain.JoinOutcomeJoined {
		s.announce(ctx, result.RoomID, me.ID, me.DisplayName, domain.ActionJoined)
	}
	return result, nil
}

// ApproveJoinRequest admits the requester. Adding the member, closing the
// request and dropping its pending marker commit together.
func (s *MembershipService) ApproveJoinRequest(ctx context.Context, roomID domain.RoomID, requestID domain.JoinRequestID, userID domain.UserID) error {
	var approved domain.JoinRequest
	err := s.asAdmin(ctx, "approve join request", roomID, func(tx contract.Tx, room domain.Room, me domain.Identity) error {
		request, err := s.requests.GetTx(tx, roomID, requestID)
		if err != nil {
			return err
		}
		if request.UserID != userID {
			return errors.ErrJoinRequestNotFound
		}
		if approved, err = request.Decide(domain.JoinApproved, me.ID); err != nil {
			return err
		}
		if err = s.rooms.SaveMembershipTx(tx, room.WithMember(userID)); err != nil {
			return err
		}
		if err = s.rooms.SetLastSeenTx(tx, roomID, userID, contract.ServerTimestamp()); err != nil {
			return err
		}
		return s.requests.DecideTx(tx, approved)
	})
	if err != nil {
		return err
	}
	s.announce(ctx, roomID, userID, approved.DisplayName, domain.ActionJoined)
	return nil
}

func (s *MembershipService) RejectJoinRequest(ctx context.Context, roomID domain.RoomID, requestID domain.JoinRequestID) error {
	return s.asAdmin(ctx, "reject join request", roomID, func(tx contract.Tx, _ domain.Room, me domain.Identity) error {
		request, err := s.requests.GetTx(tx, roomID, requestID)
		if err != nil {
			return err
		}
		rejected, err := request.Decide(domain.JoinRejected, me.ID)
		if err != nil {
			return err
		}
		return s.requests.DecideTx(tx, rejected)
	})
}

// SearchRooms finds up to 10 rooms the caller could join.
// Identical concurrent searches share one index lookup. The index trails
// the store, so hits the caller has joined since, or rooms that are gone,
// are skipped and the index is asked for a wider window to make up for them.
func (s *MembershipService) SearchRooms(ctx context.Context, term string) ([]domain.Room, error) {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	var rooms []domain.Room
	seen := make(map[domain.RoomID]bool)
	for limit := searchLimit; ; limit *= 2 {
		ids, err := s.searchIndex(ctx, me.ID, term, limit)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			room, err := s.rooms.Get(ctx, id)
			if errors.Is(err, errors.ErrRoomNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if room.IsMember(me.ID) {
				continue
			}
			rooms = append(rooms, room)
			if len(rooms) == searchLimit {
				return rooms, nil
			}
		}
		if len(ids) < limit || limit >= searchLimit*maxSearchWidening {
			return rooms, nil
		}
	}
}

func (s *MembershipService) searchIndex(ctx context.Context, me domain.UserID, term string, limit int) ([]domain.RoomID, error) {
	key := fmt.Sprintf("%s\x00%s\x00%d", me, strings.ToLower(term), limit)
	found, err, shared := s.searches.Do(key, func() (any, error) {
		return s.searcher.Search(ctx, term, me, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("search rooms: %w", err)
	}
	if shared {
		s.log.Debug("Room search shared", "term", term)
	}
	return found.([]domain.RoomID), nil
}

// LeaveRoom removes the caller. The only admin has to promote someone first.
func (s *MembershipService) LeaveRoom(ctx context.Context, roomID domain.RoomID) error {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return err
	}
	err = s.store.Transact(ctx, func(tx contract.Tx) error {
		room, err := s.rooms.GetTx(tx, roomID)
		if err != nil {
			return err
		}
		next, err := room.WithoutMember(me.ID)
		if err != nil {
			return err
		}
		return s.rooms.SaveMembershipTx(tx, next)
	})
	if err != nil {
		return errors.FromStore("leave room", err)
	}
	s.log.Info("Left room", "room", roomID)
	s.announce(ctx, roomID, me.ID, me.DisplayName, domain.ActionLeft)
	return nil
}

// PromoteToAdmin is idempotent.
func (s *MembershipService) PromoteToAdmin(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return s.asAdmin(ctx, "promote to admin", roomID, func(tx contract.Tx, room domain.Room, _ domain.Identity) error {
		next, err := room.WithAdmin(userID)
		if err != nil {
			return err
		}
		return s.rooms.SaveMembershipTx(tx, next)
	})
}

func (s *MembershipService) DemoteAdmin(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	if me := s.identity.CurrentUser(); me != nil && me.ID == userID {
		return errors.ErrCannotDemoteSelf
	}
	return s.asAdmin(ctx, "demote admin", roomID, func(tx contract.Tx, room domain.Room, _ domain.Identity) error {
		next, err := room.WithoutAdmin(userID)
		if err != nil {
			return err
		}
		return s.rooms.SaveMembershipTx(tx, next)
	})
}

func (s *MembershipService) RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	if me := s.identity.CurrentUser(); me != nil && me.ID == userID {
		return errors.ErrCannotRemoveSelf
	}
	err := s.asAdmin(ctx, "remove member", roomID, func(tx contract.Tx, room domain.Room, _ domain.Identity) error {
		next, err := room.WithoutMember(userID)
		if err != nil {
			return err
		}
		return s.rooms.SaveMembershipTx(tx, next)
	})
	if err != nil {
		return err
	}
	name := string(userID)
	if user, err := s.users.Get(ctx, userID); err == nil && user.DisplayName != "" {
		name = user.DisplayName
	}
	s.announce(ctx, roomID, userID, name, domain.ActionLeft)
	return nil
}

func (s *MembershipService) SetAdminOnlyChat(ctx context.Context, roomID domain.RoomID, enabled bool) error {
	return s.asAdmin(ctx, "set admin only chat", roomID, func(tx contract.Tx, _ domain.Room, _ domain.Identity) error {
		return s.rooms.SetSettingsTx(tx, roomID, contract.Fields{"adminOnlyChat": enabled})
	})
}

func (s *MembershipService) SetPrivate(ctx context.Context, roomID domain.RoomID, isPrivate bool) error {
	return s.asAdmin(ctx, "set private", roomID, func(tx contract.Tx, _ domain.Room, _ domain.Identity) error {
		return s.rooms.SetSettingsTx(tx, roomID, contract.Fields{"isPrivate": isPrivate})
	})
}

func (s *MembershipService) GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	if _, err := currentIdentity(s.identity); err != nil {
		return domain.Room{}, err
	}
	return s.rooms.Get(ctx, roomID)
}

// Members lists the room's members in membership order with their stored
// profile and online status. Only members may list them. A member without
// a profile yet is shown by id.
func (s *MembershipService) Members(ctx context.Context, roomID domain.RoomID) ([]domain.Member, error) {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(me.ID) {
		return nil, errors.ErrNotMember
	}

	members := make([]domain.Member, 0, len(room.Members))
	for _, id := range room.Members {
		user, err := s.users.Get(ctx, id)
		if errors.Is(err, contract.ErrDocumentNotFound) {
			user = domain.User{ID: id, DisplayName: string(id)}
		} else if err != nil {
			return nil, err
		}
		members = append(members, domain.Member{User: user, IsAdmin: room.IsAdmin(id)})
	}
	return members, nil
}

// asAdmin runs fn in a transaction once the caller is known to be an admin
// of the room as stored, not as cached locally.
func (s *MembershipService) asAdmin(ctx context.Context, op string, roomID domain.RoomID,
	fn func(tx contract.Tx, room domain.Room, me domain.Identity) error) error {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return err
	}
	err = s.store.Transact(ctx, func(tx contract.Tx) error {
		room, err := s.rooms.GetTx(tx, roomID)
		if err != nil {
			return err
		}
		if !room.IsAdmin(me.ID) {
			return errors.ErrNotAdmin
		}
		return fn(tx, room, me)
	})
	if err != nil {
		return errors.FromStore(op, err)
	}
	s.log.Debug("Admin action done", "op", op, "room", roomID)
	return nil
}

// announce appends a joined/left system message. Failures are logged only:
// the membership change it describes is already committed.
func (s *MembershipService) announce(ctx context.Context, roomID domain.RoomID, who domain.UserID, name string, action domain.SystemAction) {
	_, err := s.messages.Append(ctx, domain.Message{
		RoomID:       roomID,
		Text:         fmt.Sprintf("%s %s the room", name, action),
		AuthorID:     who,
		AuthorName:   name,
		Kind:         domain.KindSystem,
		SystemAction: action,
	})
	if err != nil {
		s.log.Warn("System message not written", "room", roomID, "action", action, "error", err)
	}
}
