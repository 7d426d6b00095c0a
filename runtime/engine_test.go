package runtime

import (
	"context"
	"roomsync/auth"
	"roomsync/domain/event"
	"roomsync/infrastructure/search"
	"roomsync/repositories"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEngine_Follows_Sign_In_And_Sign_Out(t *testing.T) {
	req := require.New(t)
	store, log := newTestStore(t)
	index, err := search.NewRoomIndex(log)
	req.NoError(err)
	defer func() { _ = index.Close() }()

	identity := auth.NewTokenIdentity(secret, log)
	engine := NewEngine(store, identity, index, index, Options{}, log)
	rec := &recorder{}
	engine.Subscribe("recorder", "", rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	// Given nobody is signed in, there is no session
	req.Nil(engine.Session())

	// When alice signs in
	token, err := auth.GenerateToken(secret, alice, time.Hour)
	req.NoError(err)
	_, err = identity.SignIn(token)
	req.NoError(err)

	// Then a session is started and she is online
	req.Eventually(func() bool { return engine.Session() != nil }, 2*time.Second, 5*time.Millisecond)
	users := repositories.NewUserRepository(store, log)
	user, err := users.Get(ctx, "alice")
	req.NoError(err)
	req.True(user.IsOnline)

	// Her new room reaches the sink and the search index
	roomID, err := engine.Membership().CreateRoom(ctx, "General", "everyone", false)
	req.NoError(err)
	req.Eventually(func() bool {
		rooms, ok := rec.last(event.RoomsUpdatedType).(event.RoomsUpdated)
		return ok && len(rooms.Rooms) == 1 && rooms.Rooms[0].Room.ID == roomID
	}, 2*time.Second, 5*time.Millisecond)
	req.Eventually(func() bool {
		ids, err := index.Search(ctx, "gene", "bob", 10)
		return err == nil && len(ids) == 1 && ids[0] == roomID
	}, 2*time.Second, 5*time.Millisecond)

	req.NoError(engine.Session().OpenRoom(ctx, roomID))
	req.Eventually(func() bool {
		_, ok := rec.last(event.MessagesUpdatedType).(event.MessagesUpdated)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// When she signs out the session ends and she is offline
	identity.SignOut()
	req.Nil(engine.Session())
	user, err = users.Get(ctx, "alice")
	req.NoError(err)
	req.False(user.IsOnline)
	requireLeft(t, store, roomID, "alice")

	// Stopping the engine returns
	cancel()
	select {
	case err = <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("engine did not stop")
	}
	req.Zero(store.Registry().Len())
}

func TestEngine_Shutdown_Ends_The_Session(t *testing.T) {
	req := require.New(t)
	store, log := newTestStore(t)
	index, err := search.NewRoomIndex(log)
	req.NoError(err)
	defer func() { _ = index.Close() }()

	// Given bob is already signed in when the engine starts
	identity := signedIn(t, bob, log)
	engine := NewEngine(store, identity, index, index, Options{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	req.Eventually(func() bool { return engine.Session() != nil }, 2*time.Second, 5*time.Millisecond)

	// A second sign-in of the same user keeps the session
	session := engine.Session()
	token, err := auth.GenerateToken(secret, bob, time.Hour)
	req.NoError(err)
	_, err = identity.SignIn(token)
	req.NoError(err)
	req.Same(session, engine.Session())

	// When the engine stops, bob is marked offline
	cancel()
	req.NoError(<-done)
	req.Nil(engine.Session())
	user, err := repositories.NewUserRepository(store, log).Get(context.Background(), "bob")
	req.NoError(err)
	req.False(user.IsOnline)
}
