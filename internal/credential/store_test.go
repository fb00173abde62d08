package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Tandem/internal/domain"
)

func TestMemoryStore_LinkMerges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, &domain.User{ID: "u1", Name: "Alice"}))

	require.NoError(t, s.Link(ctx, "u1", domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "a", RefreshToken: "r",
	}))
	require.NoError(t, s.Link(ctx, "u1", domain.ProviderYouTube, domain.Credential{AccessToken: "b"}))

	u, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	c := u.Credential(domain.ProviderYouTube)
	assert.Equal(t, "yt-1", c.ClientID)
	assert.Equal(t, "b", c.AccessToken)
	assert.Equal(t, "r", c.RefreshToken)
}

func TestMemoryStore_UnlinkClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, &domain.User{ID: "u1", Name: "Alice"}))
	require.NoError(t, s.Link(ctx, "u1", domain.ProviderYouTube, domain.Credential{ClientID: "yt-1", AccessToken: "a"}))
	require.NoError(t, s.Link(ctx, "u1", domain.ProviderSoundCloud, domain.Credential{ClientID: "sc-1", AccessToken: "s"}))

	require.NoError(t, s.Unlink(ctx, "u1", domain.ProviderYouTube))

	u, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Credential{}, u.Credential(domain.ProviderYouTube))
	assert.True(t, u.Linked(domain.ProviderSoundCloud))
}

func TestMemoryStore_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, &domain.User{ID: "u1", Name: "Alice"}))
	require.NoError(t, s.Link(ctx, "u1", domain.ProviderYouTube, domain.Credential{ClientID: "yt-1", AccessToken: "a"}))
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := s.UpdateAccessToken(ctx, "u1", domain.ProviderYouTube, "stale", "x", exp)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdateAccessToken(ctx, "u1", domain.ProviderYouTube, "a", "b", exp)
	require.NoError(t, err)
	assert.True(t, ok)

	u, _ := s.Get(ctx, "u1")
	assert.Equal(t, "b", u.Credential(domain.ProviderYouTube).AccessToken)
	assert.True(t, exp.Equal(u.Credential(domain.ProviderYouTube).Expiry))

	_, err = s.UpdateAccessToken(ctx, "ghost", domain.ProviderYouTube, "a", "b", exp)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, &domain.User{ID: "u1", Name: "Alice"}))
	require.NoError(t, s.Link(ctx, "u1", domain.ProviderYouTube, domain.Credential{ClientID: "yt-1"}))

	u, _ := s.Get(ctx, "u1")
	u.Unlink(domain.ProviderYouTube)
	u.Name = "Mallory"

	again, _ := s.Get(ctx, "u1")
	assert.Equal(t, "Alice", again.Name)
	assert.True(t, again.Linked(domain.ProviderYouTube))
}
