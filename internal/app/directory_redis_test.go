package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Tandem/internal/domain"
)

func newRedisDirectory(t *testing.T) (*RedisDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisDirectory(rdb), mr
}

func TestRedisDirectory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	d, mr := newRedisDirectory(t)
	created := time.Date(2026, 1, 1, 10, 0, 0, 123, time.UTC)

	require.NoError(t, d.Put(ctx, domain.Room{ID: "b", Private: true, CreatedAt: created.Add(time.Second)}))
	require.NoError(t, d.Put(ctx, domain.Room{ID: "a", CreatedAt: created}))

	got, err := d.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, got.Private)
	assert.True(t, created.Add(time.Second).Equal(got.CreatedAt))

	rooms, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.RoomID("a"), rooms[0].ID)
	assert.Equal(t, "true", mr.HGet("tandem:room:b", "private"))

	require.NoError(t, d.Delete(ctx, "b"))
	_, err = d.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.False(t, mr.Exists("tandem:room:b"))
	members, err := mr.Members("tandem:rooms")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)
}

func TestRedisDirectory_SkipsBrokenRecords(t *testing.T) {
	ctx := context.Background()
	d, mr := newRedisDirectory(t)
	require.NoError(t, d.Put(ctx, domain.Room{ID: "ok", CreatedAt: time.Now()}))
	_, err := mr.SetAdd("tandem:rooms", "ghost")
	require.NoError(t, err)
	mr.HSet("tandem:room:bad", "private", "maybe")
	_, err = mr.SetAdd("tandem:rooms", "bad")
	require.NoError(t, err)

	rooms, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.RoomID("ok"), rooms[0].ID)
}

func TestRegistry_WithRedisDirectory(t *testing.T) {
	ctx := context.Background()
	d, _ := newRedisDirectory(t)
	r, _ := newTestRegistry(t, d)

	room, err := r.Create(ctx, false)
	require.NoError(t, err)

	// a second instance sharing the directory
	other, _ := newTestRegistry(t, d)
	got, err := other.Get(ctx, room.ID())
	require.NoError(t, err)
	assert.Equal(t, room.ID(), got.ID())
}
