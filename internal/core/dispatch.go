package core

import (
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dkeye/Tandem/internal/domain"
)

// Apply validates msg against the current state and, when accepted,
// mutates the state and returns the events to broadcast in order. A
// rejected message leaves the state untouched.
func (s *State) Apply(msg Message, now time.Time) ([]Event, error) {
	info, ok := actionTypes[msg.Type]
	if !ok {
		return nil, invalid(msg.Type, CodeUnknownType, "unknown action type %q", msg.Type)
	}
	switch msg.Origin {
	case OriginClient, OriginServer:
	default:
		return nil, invalid(msg.Type, CodeForgedOrigin, "unknown origin %q", msg.Origin)
	}
	if info.receive {
		if msg.Origin == OriginClient {
			return nil, invalid(msg.Type, CodeForgedOrigin, "%s is server-only", msg.Type)
		}
		return nil, invalid(msg.Type, CodeUnknownType, "%s is an event, not an action", msg.Type)
	}

	switch msg.Type {
	case PlaylistAddItem:
		return s.addItem(msg, now)
	case PlaylistAddItemFromURL:
		return nil, invalid(msg.Type, CodeUnresolved, "url must be resolved to an item first")
	case PlaylistRemoveItem:
		return s.removeItem(msg, now)
	case PlaylistMoveItem:
		return s.moveItem(msg)
	case PlayerSetElapsedTime:
		return s.setElapsed(msg, now)
	case PlayerSkipItem:
		return s.skip(msg, now)
	case PlayerLikeItem:
		return s.like(msg)
	case PlayerSetOrder:
		return s.setOrder(msg)
	case PlayerSetVolume:
		return s.setVolume(msg)
	case PlayerSetMute:
		return s.setMute(msg)
	case ChatAddMessage:
		return s.addChat(msg, now)
	}
	return nil, invalid(msg.Type, CodeUnknownType, "no handler for %s", msg.Type)
}

func decode[T any](msg Message) (T, error) {
	var p T
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return p, invalid(msg.Type, CodeBadPayload, "missing payload")
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return p, invalid(msg.Type, CodeBadPayload, "%v", err)
	}
	return p, nil
}

func (s *State) addItem(msg Message, now time.Time) ([]Event, error) {
	p, err := decode[AddItemPayload](msg)
	if err != nil {
		return nil, err
	}
	item := p.Item
	if err := item.Validate(); err != nil {
		return nil, invalid(msg.Type, CodeBadPayload, "%v", err)
	}
	idx := len(s.items)
	if p.Index != nil {
		if *p.Index < 0 || *p.Index > len(s.items) {
			return nil, invalid(msg.Type, CodeOutOfRange, "index %d outside [0,%d]", *p.Index, len(s.items))
		}
		idx = *p.Index
	}
	item.ID = domain.ItemID(s.newID())
	item.UserID = msg.UserID

	s.items = slices.Insert(s.items, idx, item)
	events := []Event{newEvent(PlaylistReceiveAddItem, ItemAddedPayload{Item: item, Index: idx})}
	if s.player.Current == "" {
		events = append(events, s.play(idx, now))
	}
	return events, nil
}

func (s *State) removeItem(msg Message, now time.Time) ([]Event, error) {
	p, err := decode[RemoveItemPayload](msg)
	if err != nil {
		return nil, err
	}
	idx := s.indexOf(p.ID)
	if idx < 0 {
		return nil, invalid(msg.Type, CodeNotFound, "no item %q", p.ID)
	}

	wasCurrent := s.player.Current == p.ID
	var next domain.ItemID
	if wasCurrent {
		if n := s.pickNext(idx); n >= 0 {
			next = s.items[n].ID
		}
	}
	s.items = slices.Delete(s.items, idx, idx+1)

	events := []Event{newEvent(PlaylistReceiveRemoveItem, ItemRemovedPayload{ID: p.ID})}
	if wasCurrent {
		events = append(events, s.play(s.indexOf(next), now))
	}
	return events, nil
}

func (s *State) moveItem(msg Message) ([]Event, error) {
	p, err := decode[MoveItemPayload](msg)
	if err != nil {
		return nil, err
	}
	if p.Index == nil {
		return nil, invalid(msg.Type, CodeBadPayload, "missing index")
	}
	from := s.indexOf(p.ID)
	if from < 0 {
		return nil, invalid(msg.Type, CodeNotFound, "no item %q", p.ID)
	}
	to := *p.Index
	if to < 0 || to >= len(s.items) {
		return nil, invalid(msg.Type, CodeOutOfRange, "index %d outside [0,%d)", to, len(s.items))
	}
	if to == from {
		return nil, nil
	}
	item := s.items[from]
	s.items = slices.Delete(s.items, from, from+1)
	s.items = slices.Insert(s.items, to, item)
	return []Event{newEvent(PlaylistReceiveMoveItem, ItemMovedPayload{ID: p.ID, Index: to})}, nil
}

// setElapsed handles both the room clock (server origin) and seeks
// (client origin). Reaching the end of the item advances the player.
func (s *State) setElapsed(msg Message, now time.Time) ([]Event, error) {
	p, err := decode[ElapsedPayload](msg)
	if err != nil {
		return nil, err
	}
	if p.Elapsed == nil || math.IsNaN(*p.Elapsed) || math.IsInf(*p.Elapsed, 0) {
		return nil, invalid(msg.Type, CodeBadPayload, "elapsed must be a finite number")
	}
	idx, item := s.current()
	if item == nil {
		return nil, invalid(msg.Type, CodeNoCurrentItem, "nothing is playing")
	}

	v := *p.Elapsed
	if msg.Origin == OriginClient {
		if v < 0 || v > item.Duration {
			return nil, invalid(msg.Type, CodeOutOfRange, "elapsed %.3f outside [0,%.3f]", v, item.Duration)
		}
	} else {
		v = max(v, s.player.Elapsed)
		v = min(v, item.Duration)
	}

	s.player.Elapsed = v
	s.player.updatedAt = now
	if v >= item.Duration {
		return []Event{s.play(s.pickNext(idx), now)}, nil
	}
	return []Event{newEvent(PlayerReceiveElapsedTime, ElapsedTimePayload{ItemID: item.ID, Elapsed: v})}, nil
}

func (s *State) skip(msg Message, now time.Time) ([]Event, error) {
	idx, item := s.current()
	if item == nil {
		return nil, invalid(msg.Type, CodeNoCurrentItem, "nothing to skip")
	}
	skipped := newEvent(PlayerReceiveSkip, SkipPayload{UserID: msg.UserID, ItemID: item.ID})
	return []Event{skipped, s.play(s.pickNext(idx), now)}, nil
}

func (s *State) like(msg Message) ([]Event, error) {
	_, item := s.current()
	if item == nil {
		return nil, invalid(msg.Type, CodeNoCurrentItem, "nothing to like")
	}
	return []Event{newEvent(PlayerReceiveLikeItem, LikePayload{UserID: msg.UserID, Item: *item})}, nil
}

func (s *State) setOrder(msg Message) ([]Event, error) {
	p, err := decode[OrderPayload](msg)
	if err != nil {
		return nil, err
	}
	if !p.Order.Valid() {
		return nil, invalid(msg.Type, CodeBadPayload, "unknown order %q", p.Order)
	}
	if p.Order == s.player.Order {
		return nil, nil
	}
	s.player.Order = p.Order
	return []Event{newEvent(PlayerReceiveOrder, OrderChangedPayload{Order: p.Order})}, nil
}

func (s *State) setVolume(msg Message) ([]Event, error) {
	p, err := decode[VolumePayload](msg)
	if err != nil {
		return nil, err
	}
	if p.Volume == nil {
		return nil, invalid(msg.Type, CodeBadPayload, "missing volume")
	}
	if *p.Volume < 0 || *p.Volume > MaxVolume {
		return nil, invalid(msg.Type, CodeOutOfRange, "volume %d outside [0,%d]", *p.Volume, MaxVolume)
	}
	if *p.Volume == s.player.Volume {
		return nil, nil
	}
	s.player.Volume = *p.Volume
	return []Event{newEvent(PlayerReceiveVolume, VolumeChangedPayload{Volume: *p.Volume})}, nil
}

func (s *State) setMute(msg Message) ([]Event, error) {
	p, err := decode[MutePayload](msg)
	if err != nil {
		return nil, err
	}
	if p.Mute == nil {
		return nil, invalid(msg.Type, CodeBadPayload, "missing mute")
	}
	if *p.Mute == s.player.Muted {
		return nil, nil
	}
	s.player.Muted = *p.Mute
	return []Event{newEvent(PlayerReceiveMute, MuteChangedPayload{Mute: *p.Mute})}, nil
}

func (s *State) addChat(msg Message, now time.Time) ([]Event, error) {
	p, err := decode[ChatPayload](msg)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, invalid(msg.Type, CodeEmpty, "empty message")
	}
	if n := utf8.RuneCountInString(text); n > s.limits.ChatMaxLength {
		return nil, invalid(msg.Type, CodeTooLong, "message has %d characters, max %d", n, s.limits.ChatMaxLength)
	}

	s.chatSeq++
	cm := ChatMessage{
		Seq:    s.chatSeq,
		UserID: msg.UserID,
		Name:   s.userName(msg.UserID),
		Text:   text,
		Time:   now.UTC(),
	}
	s.chat = append(s.chat, cm)
	if over := len(s.chat) - s.limits.ChatHistory; over > 0 {
		s.chat = slices.Delete(s.chat, 0, over)
	}
	return []Event{newEvent(ChatReceiveMessage, cm)}, nil
}
