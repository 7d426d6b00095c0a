package services

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/errors"
	"roomsync/repositories"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// MessageService reads and appends room logs.
type MessageService struct {
	store    contract.DocumentStore
	identity contract.IdentityProvider
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	log      *slog.Logger
}

func NewMessageService(store contract.DocumentStore, identity contract.IdentityProvider, log *slog.Logger) *MessageService {
	return &MessageService{
		store:    store,
		identity: identity,
		rooms:    repositories.NewRoomRepository(store, log),
		messages: repositories.NewMessageRepository(store, log),
		log:      log,
	}
}

// Send appends a user message. Membership and the admin-only rule are
// checked against the stored room in the same transaction as the append,
// so a message refused here is never written.
func (s *MessageService) Send(ctx context.Context, roomID domain.RoomID, text string) (domain.Message, error) {
	me, err := currentIdentity(s.identity)
	if err != nil {
		return domain.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, errors.ErrEmptyMessage
	}

	var sent domain.Message
	err = s.store.Transact(ctx, func(tx contract.Tx) error {
		// 1. Authoritative access check
		room, err := s.rooms.GetTx(tx, roomID)
		if err != nil {
			return err
		}
		if err = room.CanSend(me.ID); err != nil {
			return err
		}
		// 2. Append, then read back the commit timestamp
		id, err := s.messages.AppendTx(tx, domain.Message{
			RoomID:       roomID,
			Text:         text,
			AuthorID:     me.ID,
			AuthorName:   me.DisplayName,
			AuthorAvatar: me.AvatarURL,
			Kind:         domain.KindUser,
		})
		if err != nil {
			return err
		}
		sent, err = s.messages.GetTx(tx, roomID, id)
		return err
	})
	if err != nil {
		return domain.Message{}, errors.FromStore("send message", err)
	}

	// 3. Room list preview, best effort
	if err = s.rooms.SetLastMessage(ctx, roomID, domain.Preview(text), sent.CreatedAt, me.DisplayName); err != nil {
		s.log.Warn("Room preview not updated", "room", roomID, "error", err)
	}
	return sent, nil
}

// Subscribe follows the log of a room. onChange receives the full ordered
// log on the first snapshot and after every change.
func (s *MessageService) Subscribe(ctx context.Context, roomID domain.RoomID, onChange func([]domain.Message)) (*MessageStream, error) {
	stream := &MessageStream{roomID: roomID, onChange: onChange}
	sub, err := s.messages.Watch(ctx, roomID, stream.apply)
	if err != nil {
		return nil, err
	}
	stream.sub = sub
	return stream, nil
}

// MessageStream is the locally ordered view of one room log.
type MessageStream struct {
	roomID   domain.RoomID
	onChange func([]domain.Message)
	sub      contract.Subscription

	mu       sync.RWMutex
	messages []domain.Message
}

// apply replaces the view with a snapshot, deduplicated by id and sorted by
// (createdAt, id) whatever order the snapshot came in.
func (m *MessageStream) apply(snapshot []domain.Message) {
	messages := lo.UniqBy(snapshot, func(msg domain.Message) domain.MessageID { return msg.ID })
	domain.SortMessages(messages)

	m.mu.Lock()
	m.messages = messages
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(slices.Clone(messages))
	}
}

func (m *MessageStream) RoomID() domain.RoomID { return m.roomID }

func (m *MessageStream) Messages() []domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.messages)
}

// Newest is the last message of the log, if any.
func (m *MessageStream) Newest() (domain.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.messages) == 0 {
		return domain.Message{}, false
	}
	return m.messages[len(m.messages)-1], true
}

// Search filters the loaded log by a case-insensitive substring.
func (m *MessageStream) Search(term string) []domain.Message {
	needle := strings.ToLower(strings.TrimSpace(term))
	messages := m.Messages()
	if needle == "" {
		return messages
	}
	return lo.Filter(messages, func(msg domain.Message, _ int) bool {
		return strings.Contains(strings.ToLower(msg.Text), needle) ||
			strings.Contains(strings.ToLower(msg.AuthorName), needle)
	})
}

// Close stops the subscription. No onChange runs after it returns.
func (m *MessageStream) Close() {
	m.sub.Cancel()
}
