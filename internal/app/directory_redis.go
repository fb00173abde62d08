package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Tandem/internal/domain"
)

const (
	redisRoomsKey  = "tandem:rooms"
	redisRoomKeyFn = "tandem:room:%s"
)

// RedisDirectory stores each room as a hash and indexes ids in a set, so
// rooms survive a restart and several instances see the same list.
type RedisDirectory struct {
	rdb *redis.Client
}

func NewRedisDirectory(rdb *redis.Client) *RedisDirectory {
	return &RedisDirectory{rdb: rdb}
}

func roomKey(id domain.RoomID) string { return fmt.Sprintf(redisRoomKeyFn, id) }

func (d *RedisDirectory) Put(ctx context.Context, room domain.Room) error {
	_, err := d.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, roomKey(room.ID),
			"private", strconv.FormatBool(room.Private),
			"created_at", room.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		p.SAdd(ctx, redisRoomsKey, string(room.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put room %s: %w", room.ID, err)
	}
	return nil
}

func (d *RedisDirectory) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	fields, err := d.rdb.HGetAll(ctx, roomKey(id)).Result()
	if err != nil {
		return domain.Room{}, fmt.Errorf("redis get room %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Room{}, ErrRoomNotFound
	}
	return decodeRoom(id, fields)
}

func (d *RedisDirectory) List(ctx context.Context) ([]domain.Room, error) {
	ids, err := d.rdb.SMembers(ctx, redisRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list rooms: %w", err)
	}
	cmds, err := d.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.HGetAll(ctx, roomKey(domain.RoomID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis list rooms: %w", err)
	}
	out := make([]domain.Room, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		room, err := decodeRoom(domain.RoomID(ids[i]), fields)
		if err != nil {
			continue
		}
		out = append(out, room)
	}
	sortRooms(out)
	return out, nil
}

func (d *RedisDirectory) Delete(ctx context.Context, id domain.RoomID) error {
	_, err := d.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, roomKey(id))
		p.SRem(ctx, redisRoomsKey, string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete room %s: %w", id, err)
	}
	return nil
}

func decodeRoom(id domain.RoomID, fields map[string]string) (domain.Room, error) {
	private, err := strconv.ParseBool(fields["private"])
	if err != nil {
		return domain.Room{}, fmt.Errorf("room %s: bad private flag: %w", id, err)
	}
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return domain.Room{}, fmt.Errorf("room %s: bad created_at: %w", id, err)
	}
	return domain.Room{ID: id, Private: private, CreatedAt: created}, nil
}
