//go:generate go run go.uber.org/mock/mockgen -source=composer.go -destination=../mocks/mock_composer.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"roomsync/domain"
	"roomsync/errors"
	"strings"
	"sync"
)

// MessageSender is the remote half of sending.
type MessageSender interface {
	Send(ctx context.Context, roomID domain.RoomID, text string) (domain.Message, error)
}

// Composer is the input box of a room. Sending is optimistic: the input is
// cleared as soon as the send starts and restored if it fails.
type Composer struct {
	roomID domain.RoomID
	sender MessageSender
	typing *TypingBroadcaster
	log    *slog.Logger

	mu   sync.Mutex
	text string
}

// NewComposer builds a composer; typing may be nil.
func NewComposer(roomID domain.RoomID, sender MessageSender, typing *TypingBroadcaster, log *slog.Logger) *Composer {
	return &Composer{roomID: roomID, sender: sender, typing: typing, log: log}
}

// SetText replaces the draft and signals typing for non-blank drafts.
func (c *Composer) SetText(ctx context.Context, text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()

	if c.typing == nil {
		return
	}
	var err error
	if strings.TrimSpace(text) != "" {
		err = c.typing.Keystroke(ctx)
	} else {
		err = c.typing.Stop(ctx)
	}
	if err != nil {
		c.log.Warn("Typing signal failed", "room", c.roomID, "error", err)
	}
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// PendingSend is a send whose input has already been cleared.
type PendingSend struct {
	composer *Composer
	text     string
}

func (p *PendingSend) Text() string { return p.text }

// Begin validates the draft, clears the input and stops typing.
func (c *Composer) Begin(ctx context.Context) (*PendingSend, error) {
	c.mu.Lock()
	text := c.text
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return nil, errors.ErrEmptyMessage
	}
	c.text = ""
	c.mu.Unlock()

	if c.typing != nil {
		if err := c.typing.Stop(ctx); err != nil {
			c.log.Warn("Typing signal failed", "room", c.roomID, "error", err)
		}
	}
	return &PendingSend{composer: c, text: text}, nil
}

func (p *PendingSend) Commit(ctx context.Context) (domain.Message, error) {
	return p.composer.sender.Send(ctx, p.composer.roomID, p.text)
}

// Rollback puts the text back after a failed Commit, unless the room is
// admin-only for the caller or something new was typed meanwhile.
func (p *PendingSend) Rollback(err error) {
	if errors.Is(err, errors.ErrAdminOnlyChat) {
		return
	}
	c := p.composer
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.text == "" {
		c.text = p.text
	}
}

// Submit is Begin, Commit and Rollback on failure.
func (c *Composer) Submit(ctx context.Context) (domain.Message, error) {
	pending, err := c.Begin(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	message, err := pending.Commit(ctx)
	if err != nil {
		pending.Rollback(err)
		return domain.Message{}, err
	}
	return message, nil
}
