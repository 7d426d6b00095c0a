package auth

import (
	"log/slog"
	"roomsync/domain"
	"roomsync/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret-for-tokens")

func TestToken_Generate_Then_Validate(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{ID: "alice", DisplayName: "Alice", AvatarURL: "https://example.com/a.png"}

	token, err := GenerateToken(secret, identity, time.Hour)
	req.NoError(err)

	claims, err := ValidateToken(secret, token)
	req.NoError(err)
	req.Equal("alice", claims.Subject)
	req.Equal("Alice", claims.Name)
	req.Equal("https://example.com/a.png", claims.Picture)
}

func TestToken_Rejects_Wrong_Secret_And_Expired(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{ID: "alice", DisplayName: "Alice"}

	token, err := GenerateToken(secret, identity, time.Hour)
	req.NoError(err)
	_, err = ValidateToken([]byte("another-secret"), token)
	req.Error(err)

	expired, err := GenerateToken(secret, identity, -time.Minute)
	req.NoError(err)
	_, err = ValidateToken(secret, expired)
	req.Error(err)
}

func TestTokenIdentity_SignIn_SignOut_Notifies_Watchers(t *testing.T) {
	req := require.New(t)
	provider := NewTokenIdentity(secret, slog.Default())

	var seen []*domain.Identity
	cancel := provider.Watch(func(identity *domain.Identity) { seen = append(seen, identity) })

	token, err := GenerateToken(secret, domain.Identity{ID: "alice", DisplayName: "Alice"}, time.Hour)
	req.NoError(err)

	identity, err := provider.SignIn(token)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), identity.ID)
	req.Equal(domain.UserID("alice"), provider.CurrentUser().ID)

	// Same user again: no transition.
	_, err = provider.SignIn(token)
	req.NoError(err)

	provider.SignOut()
	provider.SignOut()
	req.Nil(provider.CurrentUser())

	req.Len(seen, 2)
	req.Equal(domain.UserID("alice"), seen[0].ID)
	req.Nil(seen[1])

	cancel()
	_, err = provider.SignIn(token)
	req.NoError(err)
	req.Len(seen, 2)
}

func TestTokenIdentity_Switching_User_Signs_Out_First(t *testing.T) {
	req := require.New(t)
	provider := NewTokenIdentity(secret, slog.Default())

	var seen []string
	provider.Watch(func(identity *domain.Identity) {
		if identity == nil {
			seen = append(seen, "out")
			return
		}
		seen = append(seen, string(identity.ID))
	})

	for _, id := range []domain.UserID{"alice", "bob"} {
		token, err := GenerateToken(secret, domain.Identity{ID: id, DisplayName: strings.ToUpper(string(id))}, time.Hour)
		req.NoError(err)
		_, err = provider.SignIn(token)
		req.NoError(err)
	}

	req.Equal([]string{"alice", "out", "bob"}, seen)
}

func TestTokenIdentity_Rejects_Invalid_Claims(t *testing.T) {
	req := require.New(t)
	provider := NewTokenIdentity(secret, slog.Default())

	tests := []struct {
		name     string
		identity domain.Identity
	}{
		{"Missing name", domain.Identity{ID: "alice"}},
		{"Missing subject", domain.Identity{DisplayName: "Alice"}},
		{"Subject with a path separator", domain.Identity{ID: "a/b", DisplayName: "Alice"}},
		{"Invalid picture", domain.Identity{ID: "alice", DisplayName: "Alice", AvatarURL: "not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(secret, tt.identity, time.Hour)
			req.NoError(err)
			_, err = provider.SignIn(token)
			req.ErrorIs(err, errors.ErrNotAuthenticated)
		})
	}
	req.Nil(provider.CurrentUser())
}
