package app

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/Tandem/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// Directory keeps the durable room records, independent of whether a
// room is currently running.
type Directory interface {
	Put(ctx context.Context, room domain.Room) error
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
	List(ctx context.Context) ([]domain.Room, error)
	Delete(ctx context.Context, id domain.RoomID) error
}

type MemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{rooms: make(map[domain.RoomID]domain.Room)}
}

func (d *MemoryDirectory) Put(_ context.Context, room domain.Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[room.ID] = room
	return nil
}

func (d *MemoryDirectory) Get(_ context.Context, id domain.RoomID) (domain.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[id]
	if !ok {
		return domain.Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (d *MemoryDirectory) List(_ context.Context) ([]domain.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		out = append(out, room)
	}
	sortRooms(out)
	return out, nil
}

func (d *MemoryDirectory) Delete(_ context.Context, id domain.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, id)
	return nil
}

func sortRooms(rooms []domain.Room) {
	slices.SortFunc(rooms, func(a, b domain.Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
