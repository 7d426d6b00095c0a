package repositories

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJoinRequestRepository_Pending_Marker_Follows_Request(t *testing.T) {
	req := require.New(t)
	store := newStore(t)
	requests := NewJoinRequestRepository(store, slog.Default())
	ctx := context.Background()

	var id domain.JoinRequestID
	err := store.Transact(ctx, func(tx contract.Tx) error {
		var err error
		id, err = requests.CreateTx(tx, domain.JoinRequest{RoomID: "r1", UserID: "bob", DisplayName: "Bob"})
		return err
	})
	req.NoError(err)

	err = store.Transact(ctx, func(tx contract.Tx) error {
		pending, ok, err := requests.PendingIDTx(tx, "r1", "bob")
		req.True(ok)
		req.Equal(id, pending)
		return err
	})
	req.NoError(err)

	err = store.Transact(ctx, func(tx contract.Tx) error {
		request, err := requests.GetTx(tx, "r1", id)
		if err != nil {
			return err
		}
		req.True(request.IsPending())
		decided, err := request.Decide(domain.JoinRejected, "alice")
		if err != nil {
			return err
		}
		return requests.DecideTx(tx, decided)
	})
	req.NoError(err)

	err = store.Transact(ctx, func(tx contract.Tx) error {
		_, ok, err := requests.PendingIDTx(tx, "r1", "bob")
		req.False(ok)
		request, getErr := requests.GetTx(tx, "r1", id)
		req.NoError(getErr)
		req.Equal(domain.JoinRejected, request.Status)
		req.Equal(domain.UserID("alice"), request.DecidedBy)
		req.False(request.DecidedAt.IsZero())
		return err
	})
	req.NoError(err)
}

func TestJoinRequestRepository_Unknown_Request(t *testing.T) {
	store := newStore(t)
	requests := NewJoinRequestRepository(store, slog.Default())

	err := store.Transact(context.Background(), func(tx contract.Tx) error {
		_, err := requests.GetTx(tx, "r1", "nope")
		return err
	})
	require.ErrorIs(t, err, errors.ErrJoinRequestNotFound)
}

func TestJoinRequestRepository_WatchPending_Skips_Decided(t *testing.T) {
	req := require.New(t)
	store := newStore(t)
	requests := NewJoinRequestRepository(store, slog.Default())
	ctx := context.Background()

	for _, user := range []domain.UserID{"bob", "carol"} {
		err := store.Transact(ctx, func(tx contract.Tx) error {
			_, err := requests.CreateTx(tx, domain.JoinRequest{RoomID: "r1", UserID: user})
			return err
		})
		req.NoError(err)
	}

	got := make(chan []domain.JoinRequest, 8)
	sub, err := requests.WatchPending(ctx, "r1", func(r []domain.JoinRequest) { got <- r })
	req.NoError(err)
	defer sub.Cancel()
	req.Len(<-got, 2)

	bobs, err := requests.FindByUser(ctx, "r1", "bob")
	req.NoError(err)
	req.Len(bobs, 1)
	err = store.Transact(ctx, func(tx contract.Tx) error {
		decided, err := bobs[0].Decide(domain.JoinApproved, "alice")
		if err != nil {
			return err
		}
		return requests.DecideTx(tx, decided)
	})
	req.NoError(err)

	select {
	case snapshot := <-got:
		req.Len(snapshot, 1)
		req.Equal(domain.UserID("carol"), snapshot[0].UserID)
	case <-time.After(time.Second):
		req.Fail("no snapshot after decision")
	}
}
