package services

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/repositories"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultTypingDebounce   = time.Second
	DefaultTypingStaleAfter = 10 * time.Second
)

// TypingService hands out broadcasters and watches for rooms.
type TypingService struct {
	repo       repositories.TypingRepository
	debounce   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func NewTypingService(store contract.DocumentStore, debounce, staleAfter time.Duration, log *slog.Logger) *TypingService {
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	return &TypingService{
		repo:       repositories.NewTypingRepository(store, log),
		debounce:   debounce,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log,
	}
}

// Broadcaster publishes identity's typing state in one room. ctx is used
// by writes fired from the debounce timer.
func (s *TypingService) Broadcaster(ctx context.Context, roomID domain.RoomID, identity domain.Identity) *TypingBroadcaster {
	return &TypingBroadcaster{
		repo:     s.repo,
		ctx:      ctx,
		roomID:   roomID,
		identity: identity,
		debounce: s.debounce,
		refresh:  s.staleAfter / 2,
		now:      s.now,
		log:      s.log,
	}
}

// TypingBroadcaster debounces keystrokes into one "typing" and one
// "stopped" write per burst. A burst longer than half the stale limit
// rewrites typingSince so watchers keep listing the user.
type TypingBroadcaster struct {
	repo     repositories.TypingRepository
	ctx      context.Context
	roomID   domain.RoomID
	identity domain.Identity
	debounce time.Duration
	refresh  time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	armed  uint64 // generation of the live timer

	writeMu     sync.Mutex
	published   bool
	publishedAt time.Time
}

// SetTyping writes the state directly, bypassing the debounce.
func (b *TypingBroadcaster) SetTyping(ctx context.Context, isTyping bool) error {
	b.mu.Lock()
	b.disarmLocked()
	b.typing = isTyping
	b.mu.Unlock()
	return b.publish(ctx)
}

// Keystroke marks the user typing and re-arms the timer that clears it.
func (b *TypingBroadcaster) Keystroke(ctx context.Context) error {
	b.mu.Lock()
	b.disarmLocked()
	generation := b.armed
	b.timer = time.AfterFunc(b.debounce, func() { b.expire(generation) })
	b.typing = true
	b.mu.Unlock()
	return b.publish(ctx)
}

// Stop clears the state at once, e.g. on send or room switch.
func (b *TypingBroadcaster) Stop(ctx context.Context) error {
	return b.SetTyping(ctx, false)
}

func (b *TypingBroadcaster) IsTyping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typing
}

func (b *TypingBroadcaster) expire(generation uint64) {
	b.mu.Lock()
	if generation != b.armed || !b.typing {
		b.mu.Unlock()
		return
	}
	b.typing = false
	b.timer = nil
	b.mu.Unlock()

	if err := b.publish(b.ctx); err != nil {
		b.log.Warn("Typing state not cleared", "room", b.roomID, "error", err)
	}
}

func (b *TypingBroadcaster) disarmLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.armed++
}

// publish writes the latest state if the store does not have it yet, or
// if a published "typing" is getting old. Writes are serialised so the
// last one always carries the latest state.
func (b *TypingBroadcaster) publish(ctx context.Context) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	want := b.typing
	b.mu.Unlock()
	now := b.now()
	if want == b.published && !(want && b.refreshDue(now)) {
		return nil
	}
	if err := b.repo.Set(ctx, b.roomID, b.identity, want); err != nil {
		return err
	}
	b.published = want
	b.publishedAt = now
	return nil
}

func (b *TypingBroadcaster) refreshDue(now time.Time) bool {
	return b.refresh > 0 && now.Sub(b.publishedAt) >= b.refresh
}

// TypingWatch follows who else is typing in a room.
type TypingWatch struct {
	service  *TypingService
	self     domain.UserID
	onChange func([]domain.TypingEntry)
	sub      contract.Subscription

	emitMu  sync.Mutex // keeps onChange calls ordered
	mu      sync.Mutex
	entries []domain.TypingEntry
	timer   *time.Timer
	closed  bool
}

// Watch reports the users typing in roomID, self excluded. Entries older
// than the stale limit are dropped, and a timer re-evaluates the list when
// the oldest visible entry goes stale.
func (s *TypingService) Watch(ctx context.Context, roomID domain.RoomID, self domain.UserID, onChange func([]domain.TypingEntry)) (*TypingWatch, error) {
	w := &TypingWatch{service: s, self: self, onChange: onChange}
	sub, err := s.repo.Watch(ctx, roomID, func(entries []domain.TypingEntry) {
		w.mu.Lock()
		w.entries = entries
		w.mu.Unlock()
		w.emit()
	})
	if err != nil {
		return nil, err
	}
	w.sub = sub
	return w, nil
}

func (w *TypingWatch) visibleLocked(now time.Time) []domain.TypingEntry {
	return lo.Filter(w.entries, func(e domain.TypingEntry, _ int) bool {
		return e.UserID != w.self && e.IsTypingAt(now, w.service.staleAfter)
	})
}

func (w *TypingWatch) emit() {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	now := w.service.now()
	visible := w.visibleLocked(now)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.service.staleAfter > 0 && len(visible) > 0 {
		oldest := lo.MinBy(visible, func(a, b domain.TypingEntry) bool { return a.TypingSince.Before(b.TypingSince) })
		wait := oldest.TypingSince.Add(w.service.staleAfter).Sub(now) + time.Millisecond
		w.timer = time.AfterFunc(wait, w.emit)
	}
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange(slices.Clone(visible))
	}
}

// Typing is the current list, self excluded.
func (w *TypingWatch) Typing() []domain.TypingEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visibleLocked(w.service.now())
}

func (w *TypingWatch) Cancel() {
	w.sub.Cancel()
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	// Wait for a timer driven emit that may be in flight.
	w.emitMu.Lock()
	w.emitMu.Unlock()
}
