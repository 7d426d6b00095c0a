package repositories

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
	"time"
)

func messagesCollection(room domain.RoomID) string {
	return contract.Path(RoomPath(room), "messages")
}

type MessageRepository struct {
	store contract.DocumentStore
	log   *slog.Logger
}

func NewMessageRepository(store contract.DocumentStore, log *slog.Logger) MessageRepository {
	return MessageRepository{store: store, log: log}
}

// AppendTx writes a message stamped with the commit time.
func (r MessageRepository) AppendTx(tx contract.Tx, message domain.Message) (domain.MessageID, error) {
	id, err := tx.Create(messagesCollection(message.RoomID), toMessageFields(message))
	return domain.MessageID(id), err
}

func (r MessageRepository) Append(ctx context.Context, message domain.Message) (domain.MessageID, error) {
	id, err := r.store.Create(ctx, messagesCollection(message.RoomID), toMessageFields(message))
	if err != nil {
		return "", errors.Store("append message", err)
	}
	return domain.MessageID(id), nil
}

func (r MessageRepository) GetTx(tx contract.Tx, room domain.RoomID, id domain.MessageID) (domain.Message, error) {
	doc, err := tx.Get(contract.Path(messagesCollection(room), string(id)))
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(room, doc), nil
}

// Watch streams the room log ordered by (createdAt, id).
func (r MessageRepository) Watch(ctx context.Context, room domain.RoomID, fn func([]domain.Message)) (contract.Subscription, error) {
	q := contract.NewQuery(messagesCollection(room)).OrderBy("createdAt", contract.Asc)
	sub, err := r.store.Watch(ctx, q, func(docs []contract.Document) { fn(toMessages(room, docs)) })
	return sub, errors.FromStore("watch messages", err)
}

// WatchAfter streams messages created strictly after since.
func (r MessageRepository) WatchAfter(ctx context.Context, room domain.RoomID, since time.Time, fn func([]domain.Message)) (contract.Subscription, error) {
	q := contract.NewQuery(messagesCollection(room)).
		Where("createdAt", contract.OpGreater, since).
		OrderBy("createdAt", contract.Asc)
	sub, err := r.store.Watch(ctx, q, func(docs []contract.Document) { fn(toMessages(room, docs)) })
	return sub, errors.FromStore("watch unread messages", err)
}

// FindAfter is the one-shot range read behind unread counts.
func (r MessageRepository) FindAfter(ctx context.Context, room domain.RoomID, since time.Time) ([]domain.Message, error) {
	q := contract.NewQuery(messagesCollection(room)).Where("createdAt", contract.OpGreater, since)
	docs, err := r.store.Find(ctx, q)
	if err != nil {
		return nil, errors.Store("find messages", err)
	}
	return toMessages(room, docs), nil
}

func toMessages(room domain.RoomID, docs []contract.Document) []domain.Message {
	messages := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, toMessage(room, doc))
	}
	return messages
}

func toMessage(room domain.RoomID, doc contract.Document) domain.Message {
	f := doc.Fields
	kind := domain.MessageKind(str(f, "kind"))
	if kind == "" {
		kind = domain.KindUser
	}
	return domain.Message{
		ID:           domain.MessageID(doc.ID),
		RoomID:       room,
		Text:         str(f, "text"),
		AuthorID:     domain.UserID(str(f, "authorId")),
		AuthorName:   str(f, "authorName"),
		AuthorAvatar: str(f, "authorAvatar"),
		CreatedAt:    timestamp(f, "createdAt"),
		Kind:         kind,
		SystemAction: domain.SystemAction(str(f, "systemAction")),
	}
}

func toMessageFields(m domain.Message) contract.Fields {
	fields := contract.Fields{
		"text":         m.Text,
		"authorId":     string(m.AuthorID),
		"authorName":   m.AuthorName,
		"authorAvatar": m.AuthorAvatar,
		"createdAt":    contract.ServerTimestamp(),
		"kind":         string(m.Kind),
	}
	if m.SystemAction != "" {
		fields["systemAction"] = string(m.SystemAction)
	}
	return fields
}
