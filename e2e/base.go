package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"roomsync/auth"
	"roomsync/domain"
	"roomsync/infrastructure/search"
	"roomsync/infrastructure/storage"
	"roomsync/projection"
	"roomsync/runtime"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

var secret = []byte("e2e-secret-0123456789")

// Client is one signed-in user: an engine of its own over the shared store,
// with a View standing in for the screen.
type Client struct {
	Name     string
	Identity *auth.TokenIdentity
	Engine   *runtime.Engine
	View     *projection.View

	cancel context.CancelFunc
	done   chan error
	index  *search.RoomIndex
}

func (c *Client) Session() *runtime.Session { return c.Engine.Session() }

type BaseSuite struct {
	suite.Suite
	Config  Config
	store   *storage.Store
	closeDB func() error
	log     *slog.Logger
	clients []*Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.log = logs.GetLoggerFromLevel(slog.LevelWarn)
}

// SetupTest gives every scenario a fresh store.
func (s *BaseSuite) SetupTest() {
	if s.Config.BadgerPath == "" {
		store, closeDB, err := storage.OpenInMemory(s.log)
		s.Require().NoError(err)
		s.store, s.closeDB = store, closeDB
		return
	}
	dir, err := os.MkdirTemp(s.Config.BadgerPath, "e2e-*")
	s.Require().NoError(err)
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	s.Require().NoError(err)
	s.store, s.closeDB = storage.NewStore(db, s.log), db.Close
}

func (s *BaseSuite) TearDownTest() {
	for _, client := range s.clients {
		client.cancel()
		s.Require().NoError(<-client.done)
		_ = client.index.Close()
	}
	s.clients = nil
	s.Require().Zero(s.store.Registry().Len(), "subscriptions left open")
	s.Require().NoError(s.closeDB())
}

// SignIn starts a client and signs it in.
func (s *BaseSuite) SignIn(id domain.UserID, name string) *Client {
	index, err := search.NewRoomIndex(s.log)
	s.Require().NoError(err)
	identity := auth.NewTokenIdentity(secret, s.log)
	engine := runtime.NewEngine(s.store, identity, index, index, runtime.Options{TypingDebounce: 200 * time.Millisecond}, s.log)

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{Name: name, Identity: identity, Engine: engine, View: projection.NewView(), cancel: cancel, done: make(chan error, 1), index: index}
	engine.Subscribe("view", "", client.View)
	go func() { client.done <- engine.Run(ctx) }()
	s.clients = append(s.clients, client)

	token, err := auth.GenerateToken(secret, domain.Identity{ID: id, DisplayName: name}, time.Hour)
	s.Require().NoError(err)
	_, err = identity.SignIn(token)
	s.Require().NoError(err)
	s.Await(func() bool { return client.Session() != nil }, name+" has no session")
	return client
}

// Step runs fn as a named sub-test with a colored header.
func (s *BaseSuite) Step(name string, fn func()) {
	s.Run(name, func() {
		header := fmt.Sprintf("  ====== %s ======", name)
		if s.Config.Colours {
			header = color.New(color.BgBlack, color.FgGreen).Render(header)
		}
		s.T().Log(header)
		fn()
		if s.Config.DebugJSON {
			s.dump()
		}
	})
}

func (s *BaseSuite) dump() {
	for _, client := range s.clients {
		body, err := json.MarshalIndent(map[string]any{
			"rooms":    client.View.Rooms(),
			"room":     client.View.Room(),
			"messages": client.View.Messages(),
			"presence": client.View.Presence(),
			"typing":   client.View.Typing(),
			"requests": client.View.JoinRequests(),
		}, "", "  ")
		s.Require().NoError(err)
		s.T().Logf("%s:\n%s", client.Name, body)
	}
}

// Await fails the step unless cond holds within the configured timeout.
func (s *BaseSuite) Await(cond func() bool, msg string) {
	s.Require().Eventually(cond, s.Config.Timeout, 5*time.Millisecond, msg)
}
