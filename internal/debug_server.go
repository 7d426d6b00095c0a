package internal

import (
	"context"
	"fmt"
	"log/slog"
	"roomsync/infrastructure/storage"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/samber/lo"
)

const inspectEndpoint = "/inspect"

// StartInspector serves the Badger inspector when the logger is at debug
// level. It reports whether the server was started.
func StartInspector(ctx context.Context, log *slog.Logger, db *badger.DB, port int) bool {
	if !log.Enabled(ctx, slog.LevelDebug) {
		return false
	}
	url := fmt.Sprintf("http://localhost:%d%s", port, inspectEndpoint)
	log.Info("Debug Badger inspector available", "url", url)
	database.StartDebugServer(db, port, inspectEndpoint, DocumentMapper)
	return true
}

// DocumentMapper shows a stored document as its collection and its decoded
// fields. Keys outside the document layout keep the default rendering.
func DocumentMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	path, ok := storage.PathFromKey([]byte(key))
	if !ok {
		return row
	}
	collection := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		collection = path[:i]
	}
	row.Type = collection

	fields, err := storage.DecodeValue(val)
	if err != nil {
		row.Detail = "Error: decode failed"
		return row
	}
	row.Detail = FormatFields(fields)
	return row
}

// FormatFields renders fields as "key=value" pairs sorted by key.
func FormatFields(fields map[string]any) string {
	keys := lo.Keys(fields)
	slices.Sort(keys)
	return strings.Join(lo.Map(keys, func(k string, _ int) string {
		return fmt.Sprintf("%s=%v", k, fields[k])
	}), " ")
}
