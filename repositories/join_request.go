package repositories

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
)

func joinRequestsCollection(room domain.RoomID) string {
	return contract.Path(RoomPath(room), "joinRequests")
}

// pendingJoinPath is a marker holding the id of the user's pending request.
// It exists exactly while that request is pending.
func pendingJoinPath(room domain.RoomID, user domain.UserID) string {
	return contract.Path(RoomPath(room), "pendingJoins", string(user))
}

type JoinRequestRepository struct {
	store contract.DocumentStore
	log   *slog.Logger
}

func NewJoinRequestRepository(store contract.DocumentStore, log *slog.Logger) JoinRequestRepository {
	return JoinRequestRepository{store: store, log: log}
}

// PendingIDTx returns the id of the user's pending request, if any.
func (r JoinRequestRepository) PendingIDTx(tx contract.Tx, room domain.RoomID, user domain.UserID) (domain.JoinRequestID, bool, error) {
	doc, err := tx.Get(pendingJoinPath(room, user))
	if errors.Is(err, contract.ErrDocumentNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.JoinRequestID(str(doc.Fields, "requestId")), true, nil
}

// CreateTx files a pending request and its marker.
func (r JoinRequestRepository) CreateTx(tx contract.Tx, request domain.JoinRequest) (domain.JoinRequestID, error) {
	id, err := tx.Create(joinRequestsCollection(request.RoomID), contract.Fields{
		"roomId":      string(request.RoomID),
		"userId":      string(request.UserID),
		"displayName": request.DisplayName,
		"avatarUrl":   request.AvatarURL,
		"status":      string(domain.JoinPending),
		"requestedAt": contract.ServerTimestamp(),
		"decidedBy":   nil,
		"decidedAt":   nil,
	})
	if err != nil {
		return "", err
	}
	if err = tx.Set(pendingJoinPath(request.RoomID, request.UserID), contract.Fields{"requestId": id}); err != nil {
		return "", err
	}
	return domain.JoinRequestID(id), nil
}

func (r JoinRequestRepository) GetTx(tx contract.Tx, room domain.RoomID, id domain.JoinRequestID) (domain.JoinRequest, error) {
	doc, err := tx.Get(contract.Path(joinRequestsCollection(room), string(id)))
	if errors.Is(err, contract.ErrDocumentNotFound) {
		return domain.JoinRequest{}, errors.ErrJoinRequestNotFound
	}
	if err != nil {
		return domain.JoinRequest{}, err
	}
	return toJoinRequest(doc), nil
}

// DecideTx stores the terminal status and drops the pending marker.
func (r JoinRequestRepository) DecideTx(tx contract.Tx, request domain.JoinRequest) error {
	err := tx.Merge(contract.Path(joinRequestsCollection(request.RoomID), string(request.ID)), contract.Fields{
		"status":    string(request.Status),
		"decidedBy": string(request.DecidedBy),
		"decidedAt": contract.ServerTimestamp(),
	})
	if err != nil {
		return err
	}
	return tx.Delete(pendingJoinPath(request.RoomID, request.UserID))
}

// WatchPending streams the pending requests of a room, oldest first.
func (r JoinRequestRepository) WatchPending(ctx context.Context, room domain.RoomID, fn func([]domain.JoinRequest)) (contract.Subscription, error) {
	q := contract.NewQuery(joinRequestsCollection(room)).
		Where("status", contract.OpEqual, string(domain.JoinPending)).
		OrderBy("requestedAt", contract.Asc)
	sub, err := r.store.Watch(ctx, q, func(docs []contract.Document) {
		requests := make([]domain.JoinRequest, 0, len(docs))
		for _, doc := range docs {
			requests = append(requests, toJoinRequest(doc))
		}
		fn(requests)
	})
	return sub, errors.FromStore("watch join requests", err)
}

func (r JoinRequestRepository) FindByUser(ctx context.Context, room domain.RoomID, user domain.UserID) ([]domain.JoinRequest, error) {
	docs, err := r.store.Find(ctx, contract.NewQuery(joinRequestsCollection(room)).Where("userId", contract.OpEqual, string(user)))
	if err != nil {
		return nil, errors.Store("find join requests", err)
	}
	requests := make([]domain.JoinRequest, 0, len(docs))
	for _, doc := range docs {
		requests = append(requests, toJoinRequest(doc))
	}
	return requests, nil
}

func toJoinRequest(doc contract.Document) domain.JoinRequest {
	f := doc.Fields
	return domain.JoinRequest{
		ID:          domain.JoinRequestID(doc.ID),
		RoomID:      domain.RoomID(str(f, "roomId")),
		UserID:      domain.UserID(str(f, "userId")),
		DisplayName: str(f, "displayName"),
		AvatarURL:   str(f, "avatarUrl"),
		Status:      domain.JoinStatus(str(f, "status")),
		RequestedAt: timestamp(f, "requestedAt"),
		DecidedBy:   domain.UserID(str(f, "decidedBy")),
		DecidedAt:   timestamp(f, "decidedAt"),
	}
}
