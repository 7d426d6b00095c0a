package sink

import (
	"context"
	"log/slog"
	"roomsync/domain/event"
)

// LogSink writes one structured line per event. It stands in for a UI in
// the headless client.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (s LogSink) Consume(ctx context.Context, e event.Event) error {
	attrs := []any{"type", string(e.Type())}
	if room := e.RoomID(); room != "" {
		attrs = append(attrs, "room", room)
	}

	switch evt := e.(type) {
	case event.RoomsUpdated:
		unread := 0
		for _, summary := range evt.Rooms {
			unread += summary.UnreadCount
		}
		attrs = append(attrs, "rooms", len(evt.Rooms), "unread", unread)
	case event.MessagesUpdated:
		attrs = append(attrs, "messages", len(evt.Messages))
		if n := len(evt.Messages); n > 0 {
			last := evt.Messages[n-1]
			attrs = append(attrs, "last_author", last.AuthorName, "last_text", last.Text)
		}
	case event.PresenceUpdated:
		attrs = append(attrs, "active", len(evt.Active))
	case event.TypingUpdated:
		names := make([]string, 0, len(evt.Typing))
		for _, entry := range evt.Typing {
			names = append(names, entry.DisplayName)
		}
		attrs = append(attrs, "typing", names)
	case event.JoinRequestsUpdated:
		attrs = append(attrs, "pending", len(evt.Requests))
	case event.WorkerRestartedAfterPanic:
		s.log.WarnContext(ctx, "Worker restarted", "name", evt.WorkerName)
		return nil
	}
	s.log.InfoContext(ctx, "Event", attrs...)
	return nil
}
