package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

func sampleParty() *domain.WatchParty {
	id := int64(42)
	return &domain.WatchParty{
		ID:                   1,
		RoomCode:             "ABCDEF",
		Name:                 "movie night",
		OwnerUsername:        "alice",
		ParticipantUsernames: []string{"alice", "bob"},
		CurrentVideoID:       &id,
		Active:               true,
		CreatedAt:            time.Now().UTC().Truncate(time.Second),
	}
}

func exercise(t *testing.T, c PartyCache) {
	t.Helper()
	ctx := context.Background()
	key := c.BuildKeyByCode("ABCDEF")
	assert.Equal(t, "test:party:ABCDEF", key)

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, key, sampleParty(), time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerUsername)
	assert.Equal(t, []string{"alice", "bob"}, got.ParticipantUsernames)
	assert.Equal(t, int64(42), *got.CurrentVideoID)

	require.NoError(t, c.Delete(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Delete(ctx))
}

func TestMemoryPartyCache(t *testing.T) {
	c := NewMemoryPartyCache("test")
	exercise(t, c)
}

func TestMemoryPartyCacheExpiry(t *testing.T) {
	now := time.Now()
	c := NewMemoryPartyCache("test")
	c.now = func() time.Time { return now }
	ctx := context.Background()

	key := c.BuildKeyByCode("ABCDEF")
	require.NoError(t, c.Set(ctx, key, sampleParty(), time.Second))

	now = now.Add(999 * time.Millisecond)
	_, err := c.Get(ctx, key)
	require.NoError(t, err)

	now = now.Add(time.Millisecond)
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryPartyCacheCopies(t *testing.T) {
	c := NewMemoryPartyCache("test")
	ctx := context.Background()
	key := c.BuildKeyByCode("ABCDEF")

	p := sampleParty()
	require.NoError(t, c.Set(ctx, key, p, 0))
	p.ParticipantUsernames[0] = "mallory"

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ParticipantUsernames[0])
}

func TestRedisPartyCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisPartyCache(config.RedisConfig{Address: mr.Addr()}, "test")
	require.NoError(t, err)
	defer c.Close()

	exercise(t, c)

	ctx := context.Background()
	key := c.BuildKeyByCode("ABCDEF")
	require.NoError(t, c.Set(ctx, key, sampleParty(), time.Second))
	mr.FastForward(2 * time.Second)
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewSelectsDriver(t *testing.T) {
	c, err := New(config.CacheConfig{Driver: "memory", Prefix: "test"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryPartyCache{}, c)

	_, err = New(config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)
}
