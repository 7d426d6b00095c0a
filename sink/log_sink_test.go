package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"roomsync/domain"
	"roomsync/domain/event"
	"testing"

	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestLogSink_Consume(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	req.NoError(sink.Consume(ctx, event.MessagesUpdated{Room: "r1", Messages: []domain.Message{
		{ID: "m1", AuthorName: "Bob", Text: "hi"},
		{ID: "m2", AuthorName: "Alice", Text: "hello"},
	}}))
	entry := lastLine(t, &buf)
	req.Equal("MESSAGES_UPDATED", entry["type"])
	req.Equal("r1", entry["room"])
	req.EqualValues(2, entry["messages"])
	req.Equal("hello", entry["last_text"])

	req.NoError(sink.Consume(ctx, event.RoomsUpdated{Rooms: []domain.RoomSummary{{UnreadCount: 2}, {UnreadCount: 1}}}))
	entry = lastLine(t, &buf)
	req.NotContains(entry, "room")
	req.EqualValues(3, entry["unread"])

	req.NoError(sink.Consume(ctx, event.WorkerRestartedAfterPanic{WorkerName: "RoomIndexer"}))
	entry = lastLine(t, &buf)
	req.Equal("WARN", entry["level"])
	req.Equal("RoomIndexer", entry["name"])
}
