// Package runtime ties the services to the signed-in user and to the
// long-lived workers. It holds no business rule of its own.
package runtime

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/domain/event"
	"roomsync/runtime/workers"
	"roomsync/services"
	"sync"
	"time"
)

const restartNoticeTimeout = 100 * time.Millisecond

// Options tunes the engine. Zero values fall back to the defaults.
type Options struct {
	SeenEpsilon      time.Duration
	TypingDebounce   time.Duration
	TypingStaleAfter time.Duration
	EventBuffer      int
	SinkTimeout      time.Duration
	ShutdownTimeout  time.Duration

	// MetricInterval is how often the event buffer fill level is sampled.
	MetricInterval       time.Duration
	LowCapacityThreshold int
}

func (o Options) withDefaults() Options {
	if o.SeenEpsilon <= 0 {
		o.SeenEpsilon = services.DefaultSeenEpsilon
	}
	if o.TypingDebounce <= 0 {
		o.TypingDebounce = services.DefaultTypingDebounce
	}
	if o.TypingStaleAfter < 0 {
		o.TypingStaleAfter = 0
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.MetricInterval <= 0 {
		o.MetricInterval = 10 * time.Second
	}
	if o.LowCapacityThreshold <= 0 {
		o.LowCapacityThreshold = max(1, o.EventBuffer/8)
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	return o
}

// Engine follows the identity provider: a sign-in opens a Session and
// marks the user online, a sign-out closes it and marks the user offline.
// It also runs the event fan-out and the room indexer under a Supervisor.
type Engine struct {
	store    contract.DocumentStore
	identity contract.IdentityProvider
	opts     Options
	log      *slog.Logger

	registry   *Registry
	fanout     *workers.EventFanout
	supervisor *workers.Supervisor
	services   Services
	userStatus *services.UserStatus

	transition sync.Mutex // serialises identity transitions
	mu         sync.RWMutex
	session    *Session
}

func NewEngine(store contract.DocumentStore, identity contract.IdentityProvider, index workers.RoomReplacer,
	searcher services.RoomSearcher, opts Options, log *slog.Logger) *Engine {
	opts = opts.withDefaults()
	registry := NewRegistry()
	fanout := workers.NewEventFanout(log, registry, opts.EventBuffer, opts.SinkTimeout)

	e := &Engine{
		store:    store,
		identity: identity,
		opts:     opts,
		log:      log,
		registry: registry,
		fanout:   fanout,
		services: Services{
			Membership:   services.NewMembershipService(store, identity, searcher, log),
			Messages:     services.NewMessageService(store, identity, log),
			Presence:     services.NewPresenceTracker(store, log),
			Unread:       services.NewUnreadTracker(store, opts.SeenEpsilon, log),
			Typing:       services.NewTypingService(store, opts.TypingDebounce, opts.TypingStaleAfter, log),
			JoinRequests: services.NewJoinRequestService(store, identity, log),
		},
		userStatus: services.NewUserStatus(store, log),
	}

	// The fan-out may be the worker being restarted: never wait on it for long.
	sup := workers.NewSupervisor(log).OnRestart(func(name string) {
		ctx, cancel := context.WithTimeout(context.Background(), restartNoticeTimeout)
		defer cancel()
		fanout.Publish(ctx, event.WorkerRestartedAfterPanic{WorkerName: name})
	})
	sup.Add(
		fanout,
		workers.NewRoomIndexer(store, index, log),
		workers.NewChannelCapacityWorker(log, []workers.NamedBuffer{{Name: "events", Buffer: fanout}},
			opts.MetricInterval, opts.LowCapacityThreshold),
	)
	e.supervisor = sup
	return e
}

// Subscribe registers a presentation sink. An empty roomID receives every
// event.
func (e *Engine) Subscribe(name string, roomID domain.RoomID, sink contract.EventSink) {
	e.registry.Subscribe(name, roomID, sink)
}

func (e *Engine) Unsubscribe(name string, roomID domain.RoomID) {
	e.registry.Unsubscribe(name, roomID)
}

// Membership is the entry point for room creation, invite codes, search
// and admin actions.
func (e *Engine) Membership() *services.MembershipService { return e.services.Membership }

// Session is the signed-in user's session, nil when nobody is signed in.
func (e *Engine) Session() *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// Run blocks until ctx is done, then closes the session and stops the
// workers.
func (e *Engine) Run(ctx context.Context) error {
	// 1. Workers
	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		e.supervisor.Run(ctx)
	}()

	// 2. Identity transitions, then whoever is already signed in
	stopWatching := e.identity.Watch(func(identity *domain.Identity) {
		e.onIdentity(ctx, identity)
	})
	if current := e.identity.CurrentUser(); current != nil {
		e.onIdentity(ctx, current)
	}

	<-ctx.Done()
	e.log.Info("Engine shutting down")

	// 3. Session writes must outlive the cancelled ctx
	stopWatching()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ShutdownTimeout)
	defer cancel()
	e.endSession(shutdownCtx)

	<-supervised
	return nil
}

func (e *Engine) onIdentity(ctx context.Context, identity *domain.Identity) {
	e.transition.Lock()
	defer e.transition.Unlock()

	current := e.Session()
	if current != nil && identity != nil && current.Identity().ID == identity.ID {
		return
	}
	if current != nil {
		e.endSessionLocked(context.WithoutCancel(ctx))
	}
	if identity == nil || ctx.Err() != nil {
		return
	}

	if err := e.userStatus.SignedIn(ctx, *identity); err != nil {
		e.log.Warn("User status not updated", "user", identity.ID, "error", err)
	}
	session := NewSession(ctx, *identity, e.store, e.services, e.fanout.Publish, e.log)
	if err := session.Start(); err != nil {
		e.log.Error("Session not started", "user", identity.ID, "error", err)
		_ = session.Close(context.WithoutCancel(ctx))
		return
	}
	e.mu.Lock()
	e.session = session
	e.mu.Unlock()
	e.log.Info("Session started", "user", identity.ID)
}

func (e *Engine) endSession(ctx context.Context) {
	e.transition.Lock()
	defer e.transition.Unlock()
	e.endSessionLocked(ctx)
}

func (e *Engine) endSessionLocked(ctx context.Context) {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.mu.Unlock()
	if session == nil {
		return
	}

	if err := session.Close(ctx); err != nil {
		e.log.Warn("Session closed with errors", "user", session.Identity().ID, "error", err)
	}
	if err := e.userStatus.SignedOut(ctx, session.Identity().ID); err != nil {
		e.log.Warn("User status not updated", "user", session.Identity().ID, "error", err)
	}
	e.log.Info("Session ended", "user", session.Identity().ID)
}
