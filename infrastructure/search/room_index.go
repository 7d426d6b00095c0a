// Package search keeps a bluge index of room names and descriptions.
package search

import (
	"context"
	"log/slog"
	"roomsync/domain"
	"slices"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"
)

const (
	nameField        = "name"
	descriptionField = "description"
	memberField      = "member"
)

// RoomIndex answers case-insensitive substring queries over rooms.
// Text fields are indexed as single lower-cased keywords so that a
// wildcard query "*term*" behaves like a substring match.
type RoomIndex struct {
	writer *bluge.Writer
	log    *slog.Logger

	mu      sync.Mutex
	indexed map[domain.RoomID]struct{}
}

func NewRoomIndex(log *slog.Logger) (*RoomIndex, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &RoomIndex{writer: writer, log: log, indexed: make(map[domain.RoomID]struct{})}, nil
}

// Replace makes the index mirror rooms exactly.
func (i *RoomIndex) Replace(rooms []domain.Room) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := bluge.NewBatch()
	next := make(map[domain.RoomID]struct{}, len(rooms))
	for _, room := range rooms {
		next[room.ID] = struct{}{}
		doc := toDocument(room)
		batch.Update(doc.ID(), doc)
	}
	for id := range i.indexed {
		if _, ok := next[id]; !ok {
			batch.Delete(bluge.Identifier(id))
		}
	}
	if err := i.writer.Batch(batch); err != nil {
		return err
	}
	i.indexed = next
	i.log.Debug("Room index refreshed", "rooms", len(rooms))
	return nil
}

// Search returns up to limit rooms whose name or description contains term,
// skipping rooms that exclude belongs to. Results are ordered by name then id.
func (i *RoomIndex) Search(ctx context.Context, term string, exclude domain.UserID, limit int) ([]domain.RoomID, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" || limit <= 0 {
		return nil, nil
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	total, err := reader.Count()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	// '*' and '?' cannot be escaped in a bluge wildcard; they are widened to
	// '?' and the stored values are checked again below.
	pattern := "*" + strings.NewReplacer("*", "?").Replace(needle) + "*"
	text := bluge.NewBooleanQuery().
		AddShould(bluge.NewWildcardQuery(pattern).SetField(nameField)).
		AddShould(bluge.NewWildcardQuery(pattern).SetField(descriptionField)).
		SetMinShould(1)
	query := bluge.NewBooleanQuery().AddMust(text)
	if exclude != "" {
		query.AddMustNot(bluge.NewTermQuery(string(exclude)).SetField(memberField))
	}

	request := bluge.NewTopNSearch(int(total), query).SortBy([]string{nameField, "_id"})
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var ids []domain.RoomID
	match, err := matches.Next()
	for err == nil && match != nil && len(ids) < limit {
		var id, name, description string
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				id = string(value)
			case nameField:
				name = string(value)
			case descriptionField:
				description = string(value)
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		if strings.Contains(name, needle) || strings.Contains(description, needle) {
			ids = append(ids, domain.RoomID(id))
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return slices.Clip(ids), nil
}

func (i *RoomIndex) Close() error {
	return i.writer.Close()
}

func toDocument(room domain.Room) *bluge.Document {
	doc := bluge.NewDocument(string(room.ID)).
		AddField(bluge.NewKeywordField(nameField, strings.ToLower(room.Name)).StoreValue().Sortable()).
		AddField(bluge.NewKeywordField(descriptionField, strings.ToLower(room.Description)).StoreValue())
	for _, member := range room.Members {
		doc.AddField(bluge.NewKeywordField(memberField, string(member)))
	}
	return doc
}
