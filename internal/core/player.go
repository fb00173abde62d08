package core

import (
	"time"

	"github.com/dkeye/Tandem/internal/domain"
)

const (
	DefaultVolume = 100
	MaxVolume     = 100
)

// Order decides which item plays after the current one.
type Order string

const (
	OrderSequential Order = "sequential"
	OrderShuffle    Order = "shuffle"
)

func (o Order) Valid() bool { return o == OrderSequential || o == OrderShuffle }

// Player is the playback part of a room. Elapsed is the position at
// updatedAt; the room clock moves it forward while an item is current.
type Player struct {
	Current   domain.ItemID
	Elapsed   float64
	Volume    int
	Muted     bool
	Order     Order
	updatedAt time.Time
}

func (s *State) current() (int, *domain.PlaylistItem) {
	idx := s.indexOf(s.player.Current)
	if idx < 0 {
		return -1, nil
	}
	return idx, &s.items[idx]
}

// elapsedAt is the playback position at now, never behind the stored
// position and never past the item's end.
func (s *State) elapsedAt(now time.Time) float64 {
	_, item := s.current()
	if item == nil {
		return 0
	}
	e := s.player.Elapsed
	if d := now.Sub(s.player.updatedAt).Seconds(); d > 0 {
		e += d
	}
	if e > item.Duration {
		e = item.Duration
	}
	return e
}

// pickNext returns the index that follows from, or -1 to stop.
func (s *State) pickNext(from int) int {
	switch s.player.Order {
	case OrderShuffle:
		n := len(s.items)
		if from >= 0 {
			n--
		}
		if n <= 0 {
			return -1
		}
		k := s.intn(n)
		if from >= 0 && k >= from {
			k++
		}
		return k
	default:
		if from+1 < len(s.items) {
			return from + 1
		}
		return -1
	}
}

// play makes items[idx] current from the start; idx < 0 stops the player.
func (s *State) play(idx int, now time.Time) Event {
	s.player.Elapsed = 0
	s.player.updatedAt = now
	if idx < 0 || idx >= len(s.items) {
		s.player.Current = ""
		return newEvent(PlayerReceiveItem, CurrentItemPayload{})
	}
	it := s.items[idx]
	s.player.Current = it.ID
	return newEvent(PlayerReceiveItem, CurrentItemPayload{Item: &it})
}

// TickMessage is the room clock's authoritative elapsed-time update.
func (s *State) TickMessage(now time.Time) (Message, bool) {
	if _, item := s.current(); item == nil {
		return Message{}, false
	}
	e := s.elapsedAt(now)
	return newServerMessage(PlayerSetElapsedTime, ElapsedPayload{Elapsed: &e}), true
}
