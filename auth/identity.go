package auth

import (
	"fmt"
	"log/slog"
	"roomsync/domain"
	"roomsync/errors"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// TokenIdentity is an IdentityProvider signed in from a JWT.
// Watchers run synchronously, in order, on the goroutine that signs in or
// out; they must not call SignIn or SignOut themselves.
type TokenIdentity struct {
	secret []byte
	log    *slog.Logger

	transition sync.Mutex // serialises sign-in/out and their notifications

	mu       sync.RWMutex
	current  *domain.Identity
	nextID   uint64
	watchers map[uint64]func(*domain.Identity)
}

func NewTokenIdentity(secret []byte, log *slog.Logger) *TokenIdentity {
	return &TokenIdentity{secret: secret, log: log, watchers: make(map[uint64]func(*domain.Identity))}
}

// SignIn validates token and makes its subject the current user.
// Signing in as the already signed-in user is a no-op.
func (p *TokenIdentity) SignIn(token string) (*domain.Identity, error) {
	claims, err := ValidateToken(p.secret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrNotAuthenticated, err)
	}
	if err = validateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrNotAuthenticated, err)
	}
	identity := &domain.Identity{
		ID:          domain.UserID(claims.Subject),
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	}

	p.transition.Lock()
	defer p.transition.Unlock()

	if current := p.CurrentUser(); current != nil {
		if current.ID == identity.ID {
			return current, nil
		}
		p.set(nil)
	}
	p.set(identity)
	p.log.Info("Signed in", "user", identity.ID)
	return identity, nil
}

func (p *TokenIdentity) SignOut() {
	p.transition.Lock()
	defer p.transition.Unlock()

	if p.CurrentUser() == nil {
		return
	}
	p.set(nil)
	p.log.Info("Signed out")
}

func (p *TokenIdentity) CurrentUser() *domain.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	identity := *p.current
	return &identity
}

func (p *TokenIdentity) Watch(fn func(identity *domain.Identity)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.watchers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, id)
	}
}

func (p *TokenIdentity) set(identity *domain.Identity) {
	p.mu.Lock()
	p.current = identity
	watchers := make([]func(*domain.Identity), 0, len(p.watchers))
	ids := lo.Keys(p.watchers)
	slices.Sort(ids)
	for _, id := range ids {
		watchers = append(watchers, p.watchers[id])
	}
	p.mu.Unlock()

	for _, fn := range watchers {
		if identity == nil {
			fn(nil)
			continue
		}
		copied := *identity
		fn(&copied)
	}
}
