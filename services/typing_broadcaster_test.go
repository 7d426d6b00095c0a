package services

import (
	"context"
	"roomsync/domain"
	"roomsync/infrastructure/storage"
	"roomsync/repositories"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// typingLog records every snapshot a TypingWatch delivers.
type typingLog struct {
	mu        sync.Mutex
	snapshots [][]domain.TypingEntry
}

func (l *typingLog) record(entries []domain.TypingEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, entries)
}

func (l *typingLog) last() []domain.TypingEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snapshots) == 0 {
		return nil
	}
	return l.snapshots[len(l.snapshots)-1]
}

func (l *typingLog) lastUsers() []domain.UserID {
	var users []domain.UserID
	for _, e := range l.last() {
		users = append(users, e.UserID)
	}
	return users
}

func TestTypingBroadcaster_Debounce_Clears_After_Silence(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewTypingService(h.store, 100*time.Millisecond, 0, h.log)
	broadcaster := svc.Broadcaster(ctx, "r1", bob)

	seen := &typingLog{}
	watch, err := svc.Watch(ctx, "r1", "alice", seen.record)
	req.NoError(err)
	defer watch.Cancel()

	// Several keystrokes in one burst
	for i := 0; i < 3; i++ {
		req.NoError(broadcaster.Keystroke(ctx))
	}
	req.True(broadcaster.IsTyping())
	req.Eventually(func() bool {
		users := seen.lastUsers()
		return len(users) == 1 && users[0] == "bob"
	}, 2*time.Second, 5*time.Millisecond)

	// Silence clears the state
	req.Eventually(func() bool { return !broadcaster.IsTyping() }, 2*time.Second, 10*time.Millisecond)
	req.Eventually(func() bool { return len(seen.lastUsers()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestTypingBroadcaster_Stop_Is_Immediate(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	svc := NewTypingService(h.store, time.Hour, 0, h.log)
	broadcaster := svc.Broadcaster(ctx, "r1", bob)

	req.NoError(broadcaster.Keystroke(ctx))
	req.NoError(broadcaster.Stop(ctx))
	req.False(broadcaster.IsTyping())

	doc, err := h.store.Get(ctx, "rooms/r1/typing/bob")
	req.NoError(err)
	req.Nil(doc.Fields["typingSince"])
}

func TestTypingWatch_Excludes_Self_And_Stale_Entries(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The harness clock starts in 2026; this watch believes it is much later,
	// so every stored entry is stale.
	svc := NewTypingService(h.store, time.Hour, 10*time.Second, h.log)
	svc.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

	repo := repositories.NewTypingRepository(h.store, h.log)
	req.NoError(repo.Set(ctx, "r1", alice, true))
	req.NoError(repo.Set(ctx, "r1", bob, true))

	seen := &typingLog{}
	watch, err := svc.Watch(ctx, "r1", "alice", seen.record)
	req.NoError(err)
	defer watch.Cancel()

	req.Eventually(func() bool {
		seen.mu.Lock()
		defer seen.mu.Unlock()
		return len(seen.snapshots) > 0
	}, 2*time.Second, 5*time.Millisecond)
	req.Empty(seen.last())
	req.Empty(watch.Typing())

	// Without a stale limit bob shows up, alice never does
	fresh := NewTypingService(h.store, time.Hour, 0, h.log)
	other := &typingLog{}
	watch2, err := fresh.Watch(ctx, "r1", "alice", other.record)
	req.NoError(err)
	defer watch2.Cancel()
	req.Eventually(func() bool {
		users := other.lastUsers()
		return len(users) == 1 && users[0] == "bob"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTypingWatch_Reevaluates_When_Entry_Goes_Stale(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := repositories.NewTypingRepository(h.store, h.log)
	req.NoError(repo.Set(ctx, "r1", bob, true))
	doc, err := h.store.Get(ctx, "rooms/r1/typing/bob")
	req.NoError(err)
	since := doc.Fields["typingSince"].(time.Time)

	// The watch clock sits just before the entry goes stale
	var mu sync.Mutex
	now := since.Add(10*time.Second - 50*time.Millisecond)
	svc := NewTypingService(h.store, time.Hour, 10*time.Second, h.log)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	seen := &typingLog{}
	watch, err := svc.Watch(ctx, "r1", "alice", seen.record)
	req.NoError(err)
	defer watch.Cancel()
	req.Eventually(func() bool { return len(seen.lastUsers()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Time passes with no new write; the timer drops bob on its own
	mu.Lock()
	now = since.Add(time.Minute)
	mu.Unlock()
	req.Eventually(func() bool { return len(seen.lastUsers()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestTypingBroadcaster_Long_Burst_Stays_Visible(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Server time and watch time both follow the wall clock here
	store, closeDB, err := storage.OpenInMemory(h.log)
	req.NoError(err)
	defer func() { _ = closeDB() }()

	staleAfter := 400 * time.Millisecond
	svc := NewTypingService(store, 200*time.Millisecond, staleAfter, h.log)
	broadcaster := svc.Broadcaster(ctx, "r1", bob)

	seen := &typingLog{}
	watch, err := svc.Watch(ctx, "r1", "alice", seen.record)
	req.NoError(err)
	defer watch.Cancel()

	req.NoError(broadcaster.Keystroke(ctx))
	first, err := store.Get(ctx, "rooms/r1/typing/bob")
	req.NoError(err)
	firstSince := first.Fields["typingSince"].(time.Time)

	// Bob keeps typing for three times the stale limit
	deadline := time.Now().Add(3 * staleAfter)
	for time.Now().Before(deadline) {
		req.NoError(broadcaster.Keystroke(ctx))
		time.Sleep(20 * time.Millisecond)
	}

	req.True(broadcaster.IsTyping())
	req.Equal([]domain.UserID{"bob"}, seen.lastUsers())
	req.Len(watch.Typing(), 1)

	latest, err := store.Get(ctx, "rooms/r1/typing/bob")
	req.NoError(err)
	req.True(latest.Fields["typingSince"].(time.Time).After(firstSince))
}
