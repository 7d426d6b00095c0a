package workers

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain/event"
	"time"
)

// EventFanout hands engine events to the presentation sinks registered for
// their room.
//
// Events are delivered one at a time in publication order, to each sink in
// turn. A sink gets sinkTimeout to consume an event; an error or a timeout
// is logged and the next sink is served. Events carry full snapshots, so a
// sink that misses one catches up on the next.
type EventFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	events      chan event.Event
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		events:      make(chan event.Event, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

// Publish queues e for delivery. It blocks while the buffer is full and
// gives up when ctx is done.
func (w *EventFanout) Publish(ctx context.Context, e event.Event) {
	select {
	case w.events <- e:
	case <-ctx.Done():
		w.log.Debug("Event dropped, context done", "type", e.Type())
	}
}

// Len is the number of queued events.
func (w *EventFanout) Len() int { return len(w.events) }

func (w *EventFanout) Cap() int { return cap(w.events) }

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout delivers one event to every interested sink.
func (w *EventFanout) Fanout(ctx context.Context, e event.Event) {
	for _, sink := range w.registry.SinksFor(e.RoomID()) {
		if err := w.consume(ctx, sink, e); err != nil {
			w.log.Warn("Sink failed to consume event", "type", e.Type(), "room", e.RoomID(), "error", err)
		}
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, e event.Event) error {
	if w.sinkTimeout <= 0 {
		return sink.Consume(ctx, e)
	}
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, e)
}
