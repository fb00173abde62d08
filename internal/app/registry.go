package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/metrics"
)

// Registry maps room ids to running rooms. Rooms known to the directory
// are started on first use and stopped again once they stay empty.
type Registry struct {
	ctx   context.Context
	dir   Directory
	opts  []core.Option
	now   func() time.Time
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
}

func NewRegistry(ctx context.Context, dir Directory, opts ...core.Option) *Registry {
	return &Registry{
		ctx:   ctx,
		dir:   dir,
		opts:  opts,
		now:   time.Now,
		rooms: make(map[domain.RoomID]*core.Room),
	}
}

func (r *Registry) Create(ctx context.Context, private bool) (*core.Room, error) {
	meta := domain.Room{
		ID:        domain.RoomID(uuid.NewString()),
		Private:   private,
		CreatedAt: r.now().UTC(),
	}
	if err := r.dir.Put(ctx, meta); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.startLocked(meta)
	log.Info().Str("module", "app.registry").Str("room", string(meta.ID)).Bool("private", private).Msg("room created")
	return room, nil
}

// Get returns the running room, starting it if the directory knows it.
func (r *Registry) Get(ctx context.Context, id domain.RoomID) (*core.Room, error) {
	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return room, nil
	}

	meta, err := r.dir.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok = r.rooms[id]; ok {
		return room, nil
	}
	return r.startLocked(meta), nil
}

func (r *Registry) startLocked(meta domain.Room) *core.Room {
	room := core.NewRoom(r.ctx, meta, r.opts...)
	r.rooms[meta.ID] = room
	metrics.Rooms.Set(float64(len(r.rooms)))
	go room.Run()
	return room
}

// List reports every room in the directory; running rooms carry their
// live member count. Private rooms are left out unless asked for.
func (r *Registry) List(ctx context.Context, includePrivate bool) ([]core.RoomInfo, error) {
	metas, err := r.dir.List(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(metas))
	for _, m := range metas {
		info := core.RoomInfo{ID: m.ID, Private: m.Private, CreatedAt: m.CreatedAt}
		if room, ok := r.rooms[m.ID]; ok {
			info = room.Info()
		}
		if info.Private && !includePrivate {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func (r *Registry) Update(ctx context.Context, id domain.RoomID, private bool) (core.RoomInfo, error) {
	meta, err := r.dir.Get(ctx, id)
	if err != nil {
		return core.RoomInfo{}, err
	}
	meta.Private = private
	if err := r.dir.Put(ctx, meta); err != nil {
		return core.RoomInfo{}, err
	}

	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		room.SetPrivate(private)
		return room.Info(), nil
	}
	return core.RoomInfo{ID: meta.ID, Private: meta.Private, CreatedAt: meta.CreatedAt}, nil
}

// Delete stops the room, disconnecting its members, and forgets it.
func (r *Registry) Delete(ctx context.Context, id domain.RoomID) error {
	if _, err := r.dir.Get(ctx, id); err != nil {
		return err
	}
	r.stop(id)
	if err := r.dir.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room deleted")
	return nil
}

func (r *Registry) stop(id domain.RoomID) {
	r.mu.Lock()
	room, ok := r.rooms[id]
	delete(r.rooms, id)
	metrics.Rooms.Set(float64(len(r.rooms)))
	r.mu.Unlock()
	if ok {
		room.Stop()
		<-room.Done()
	}
}

// Evict removes rooms that have had no members for at least grace.
func (r *Registry) Evict(ctx context.Context, grace time.Duration) []domain.RoomID {
	now := r.now()
	r.mu.RLock()
	var idle []domain.RoomID
	for id, room := range r.rooms {
		if since, empty := room.EmptySince(); empty && now.Sub(since) >= grace {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	evicted := idle[:0]
	for _, id := range idle {
		if !r.stopIfIdle(id, now, grace) {
			continue
		}
		evicted = append(evicted, id)
		if err := r.dir.Delete(ctx, id); err != nil && !errors.Is(err, ErrRoomNotFound) {
			log.Error().Err(err).Str("module", "app.registry").Str("room", string(id)).Msg("evict from directory")
		}
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("evicted empty room")
	}
	return evicted
}

// stopIfIdle checks again under the write lock so a member who joined
// since the scan keeps the room.
func (r *Registry) stopIfIdle(id domain.RoomID, now time.Time, grace time.Duration) bool {
	r.mu.Lock()
	room, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if since, empty := room.EmptySince(); !empty || now.Sub(since) < grace {
		r.mu.Unlock()
		return false
	}
	delete(r.rooms, id)
	metrics.Rooms.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	room.Stop()
	<-room.Done()
	return true
}

// StartCleanupWorker evicts idle rooms every interval until ctx is done.
func (r *Registry) StartCleanupWorker(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict(ctx, grace)
		}
	}
}

// StopAll stops every running room; the directory is left as is.
func (r *Registry) StopAll() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[domain.RoomID]*core.Room)
	metrics.Rooms.Set(0)
	r.mu.Unlock()
	for _, room := range rooms {
		room.Stop()
		<-room.Done()
	}
}
