package core

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/Tandem/internal/domain"
)

// Limits bounds what a room keeps and accepts.
type Limits struct {
	ChatHistory   int
	ChatMaxLength int
}

var DefaultLimits = Limits{ChatHistory: 200, ChatMaxLength: 1000}

type presence struct {
	member domain.Member
	conns  int
}

// State is the authoritative model of one room. It is not safe for
// concurrent use; Room serializes every access to it.
type State struct {
	limits Limits

	items  []domain.PlaylistItem
	player Player

	users     map[domain.UserID]*presence
	userOrder []domain.UserID

	chat    []ChatMessage
	chatSeq uint64

	newID func() string
	intn  func(int) int
}

func NewState(limits Limits) *State {
	if limits.ChatHistory <= 0 {
		limits.ChatHistory = DefaultLimits.ChatHistory
	}
	if limits.ChatMaxLength <= 0 {
		limits.ChatMaxLength = DefaultLimits.ChatMaxLength
	}
	return &State{
		limits: limits,
		player: Player{Volume: DefaultVolume, Order: OrderSequential},
		users:  make(map[domain.UserID]*presence),
		newID:  uuid.NewString,
		intn:   rand.IntN,
	}
}

// Join adds one connection of m to the presence set. The event is only
// meaningful when the user was not present before.
func (s *State) Join(m domain.Member) (Event, bool) {
	if p, ok := s.users[m.ID]; ok {
		p.conns++
		p.member = m
		return Event{}, false
	}
	s.users[m.ID] = &presence{member: m, conns: 1}
	s.userOrder = append(s.userOrder, m.ID)
	return newEvent(UsersReceiveJoin, JoinPayload{User: m}), true
}

// Leave drops one connection of the user; the user leaves with the last one.
func (s *State) Leave(id domain.UserID) (Event, bool) {
	p, ok := s.users[id]
	if !ok {
		return Event{}, false
	}
	p.conns--
	if p.conns > 0 {
		return Event{}, false
	}
	delete(s.users, id)
	if i := slices.Index(s.userOrder, id); i >= 0 {
		s.userOrder = slices.Delete(s.userOrder, i, i+1)
	}
	return newEvent(UsersReceiveLeave, LeavePayload{ID: id}), true
}

// Snapshot is the full state sent once to a newly admitted client.
func (s *State) Snapshot(now time.Time) []Event {
	return []Event{
		newEvent(PlaylistReceiveState, PlaylistState{Items: s.Items()}),
		newEvent(PlayerReceiveState, s.PlayerState(now)),
		newEvent(UsersReceiveState, UsersState{Users: s.Users()}),
		newEvent(ChatReceiveState, ChatState{Messages: slices.Clone(s.chat)}),
	}
}

func (s *State) Items() []domain.PlaylistItem {
	out := make([]domain.PlaylistItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *State) Users() []domain.Member {
	out := make([]domain.Member, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		out = append(out, s.users[id].member)
	}
	return out
}

func (s *State) Chat() []ChatMessage { return slices.Clone(s.chat) }

func (s *State) PlayerState(now time.Time) PlayerState {
	st := PlayerState{
		Volume: s.player.Volume,
		Mute:   s.player.Muted,
		Order:  s.player.Order,
	}
	if _, item := s.current(); item != nil {
		it := *item
		st.Item = &it
		st.Elapsed = s.elapsedAt(now)
	}
	return st
}

func (s *State) indexOf(id domain.ItemID) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(it domain.PlaylistItem) bool { return it.ID == id })
}

func (s *State) userName(id domain.UserID) string {
	if p, ok := s.users[id]; ok {
		return p.member.Name
	}
	return ""
}

func (s *State) clone() *State {
	c := *s
	c.items = slices.Clone(s.items)
	c.userOrder = slices.Clone(s.userOrder)
	c.chat = slices.Clone(s.chat)
	c.users = make(map[domain.UserID]*presence, len(s.users))
	for id, p := range s.users {
		cp := *p
		c.users[id] = &cp
	}
	return &c
}
