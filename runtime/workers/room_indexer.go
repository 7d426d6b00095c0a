package workers

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/repositories"
)

// RoomReplacer is the index side of the room indexer.
type RoomReplacer interface {
	Replace(rooms []domain.Room) error
}

// RoomIndexer keeps the room search index in step with the rooms
// collection. Only the latest snapshot matters: one arriving while the
// index is busy replaces any snapshot still waiting.
type RoomIndexer struct {
	rooms repositories.RoomRepository
	index RoomReplacer
	log   *slog.Logger
}

func NewRoomIndexer(store contract.DocumentStore, index RoomReplacer, log *slog.Logger) *RoomIndexer {
	return &RoomIndexer{rooms: repositories.NewRoomRepository(store, log), index: index, log: log}
}

func (w *RoomIndexer) Run(ctx context.Context) error {
	latest := make(chan []domain.Room, 1)
	sub, err := w.rooms.WatchAll(ctx, func(rooms []domain.Room) {
		for {
			select {
			case latest <- rooms:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer sub.Cancel()

	for {
		select {
		case rooms := <-latest:
			if err := w.index.Replace(rooms); err != nil {
				return err
			}
			w.log.Debug("Room index refreshed", "rooms", len(rooms))
		case <-ctx.Done():
			return nil
		}
	}
}
