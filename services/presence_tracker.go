package services

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/repositories"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// PresenceTracker records who is currently viewing a room.
type PresenceTracker struct {
	repo repositories.PresenceRepository
	log  *slog.Logger
}

func NewPresenceTracker(store contract.DocumentStore, log *slog.Logger) *PresenceTracker {
	return &PresenceTracker{repo: repositories.NewPresenceRepository(store, log), log: log}
}

// PresenceHandle is one user's presence in one room.
type PresenceHandle struct {
	repo     repositories.PresenceRepository
	log      *slog.Logger
	roomID   domain.RoomID
	userID   domain.UserID
	onChange func([]domain.PresenceEntry)
	sub      contract.Subscription

	mu     sync.Mutex
	active []domain.PresenceEntry

	detachOnce sync.Once
	detachErr  error
}

// Attach writes the caller's presence entry then follows the room's
// entries. ctx bounds the subscription, not just the call.
func (t *PresenceTracker) Attach(ctx context.Context, roomID domain.RoomID, identity domain.Identity,
	onChange func([]domain.PresenceEntry)) (*PresenceHandle, error) {
	if err := t.repo.Enter(ctx, roomID, identity); err != nil {
		return nil, err
	}
	h := &PresenceHandle{repo: t.repo, log: t.log, roomID: roomID, userID: identity.ID, onChange: onChange}
	sub, err := t.repo.Watch(ctx, roomID, h.update)
	if err != nil {
		if leaveErr := t.repo.Leave(context.WithoutCancel(ctx), roomID, identity.ID); leaveErr != nil {
			t.log.Warn("Presence entry left behind", "room", roomID, "error", leaveErr)
		}
		return nil, err
	}
	h.sub = sub
	return h, nil
}

func (h *PresenceHandle) update(entries []domain.PresenceEntry) {
	active := lo.Filter(entries, func(e domain.PresenceEntry, _ int) bool { return e.IsActive() })
	h.mu.Lock()
	h.active = active
	h.mu.Unlock()
	if h.onChange != nil {
		h.onChange(slices.Clone(active))
	}
}

// Active lists entries that have not left, most recent joiner first.
func (h *PresenceHandle) Active() []domain.PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.active)
}

// Detach stops following the room and stamps leftAt. Later calls return
// the first call's result.
func (h *PresenceHandle) Detach(ctx context.Context) error {
	h.detachOnce.Do(func() {
		h.sub.Cancel()
		h.detachErr = h.repo.Leave(ctx, h.roomID, h.userID)
		h.log.Debug("Presence detached", "room", h.roomID, "error", h.detachErr)
	})
	return h.detachErr
}
