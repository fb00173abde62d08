package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Tandem/internal/domain"
)

// ActionType is the closed set of messages exchanged with clients.
type ActionType string

const (
	PlaylistAddItem           ActionType = "PLAYLIST_ADD_ITEM"
	PlaylistAddItemFromURL    ActionType = "PLAYLIST_ADD_ITEM_FROM_URL"
	PlaylistRemoveItem        ActionType = "PLAYLIST_REMOVE_ITEM"
	PlaylistMoveItem          ActionType = "PLAYLIST_MOVE_ITEM"
	PlaylistReceiveState      ActionType = "PLAYLIST_RECEIVE_STATE"
	PlaylistReceiveAddItem    ActionType = "PLAYLIST_RECEIVE_ADD_ITEM"
	PlaylistReceiveRemoveItem ActionType = "PLAYLIST_RECEIVE_REMOVE_ITEM"
	PlaylistReceiveMoveItem   ActionType = "PLAYLIST_RECEIVE_MOVE_ITEM"

	PlayerSetElapsedTime     ActionType = "PLAYER_SET_ELAPSED_TIME"
	PlayerSkipItem           ActionType = "PLAYER_SKIP_ITEM"
	PlayerLikeItem           ActionType = "PLAYER_LIKE_ITEM"
	PlayerSetOrder           ActionType = "PLAYER_SET_ORDER"
	PlayerSetVolume          ActionType = "PLAYER_SET_VOLUME"
	PlayerSetMute            ActionType = "PLAYER_SET_MUTE"
	PlayerReceiveState       ActionType = "PLAYER_RECEIVE_STATE"
	PlayerReceiveElapsedTime ActionType = "PLAYER_RECEIVE_ELAPSED_TIME"
	PlayerReceiveSkip        ActionType = "PLAYER_RECEIVE_SKIP"
	PlayerReceiveItem        ActionType = "PLAYER_RECEIVE_ITEM"
	PlayerReceiveLikeItem    ActionType = "PLAYER_RECEIVE_LIKE_ITEM"
	PlayerReceiveOrder       ActionType = "PLAYER_RECEIVE_ORDER"
	PlayerReceiveVolume      ActionType = "PLAYER_RECEIVE_VOLUME"
	PlayerReceiveMute        ActionType = "PLAYER_RECEIVE_MUTE"

	UsersReceiveState ActionType = "USERS_RECEIVE_STATE"
	UsersReceiveJoin  ActionType = "USERS_RECEIVE_JOIN"
	UsersReceiveLeave ActionType = "USERS_RECEIVE_LEAVE"

	ChatAddMessage     ActionType = "CHAT_ADD_MESSAGE"
	ChatReceiveMessage ActionType = "CHAT_RECEIVE_MESSAGE"
	ChatReceiveState   ActionType = "CHAT_RECEIVE_STATE"

	// ErrorNotice is sent to a single client whose action was rejected.
	ErrorNotice ActionType = "ERROR"
)

type Domain string

const (
	DomainPlaylist Domain = "playlist"
	DomainPlayer   Domain = "player"
	DomainUsers    Domain = "users"
	DomainChat     Domain = "chat"
)

type actionInfo struct {
	domain  Domain
	receive bool
}

var actionTypes = map[ActionType]actionInfo{
	PlaylistAddItem:           {DomainPlaylist, false},
	PlaylistAddItemFromURL:    {DomainPlaylist, false},
	PlaylistRemoveItem:        {DomainPlaylist, false},
	PlaylistMoveItem:          {DomainPlaylist, false},
	PlaylistReceiveState:      {DomainPlaylist, true},
	PlaylistReceiveAddItem:    {DomainPlaylist, true},
	PlaylistReceiveRemoveItem: {DomainPlaylist, true},
	PlaylistReceiveMoveItem:   {DomainPlaylist, true},

	PlayerSetElapsedTime:     {DomainPlayer, false},
	PlayerSkipItem:           {DomainPlayer, false},
	PlayerLikeItem:           {DomainPlayer, false},
	PlayerSetOrder:           {DomainPlayer, false},
	PlayerSetVolume:          {DomainPlayer, false},
	PlayerSetMute:            {DomainPlayer, false},
	PlayerReceiveState:       {DomainPlayer, true},
	PlayerReceiveElapsedTime: {DomainPlayer, true},
	PlayerReceiveSkip:        {DomainPlayer, true},
	PlayerReceiveItem:        {DomainPlayer, true},
	PlayerReceiveLikeItem:    {DomainPlayer, true},
	PlayerReceiveOrder:       {DomainPlayer, true},
	PlayerReceiveVolume:      {DomainPlayer, true},
	PlayerReceiveMute:        {DomainPlayer, true},

	UsersReceiveState: {DomainUsers, true},
	UsersReceiveJoin:  {DomainUsers, true},
	UsersReceiveLeave: {DomainUsers, true},

	ChatAddMessage:     {DomainChat, false},
	ChatReceiveMessage: {DomainChat, true},
	ChatReceiveState:   {DomainChat, true},
}

func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if _, ok := actionTypes[t]; !ok {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return t, nil
}

func (t ActionType) Domain() Domain { return actionTypes[t].domain }

// ServerOnly reports whether only the server may produce this type.
func (t ActionType) ServerOnly() bool { return actionTypes[t].receive }

// Origin tags who produced a message.
type Origin string

const (
	OriginClient Origin = "VIEW_ACTION"
	OriginServer Origin = "SERVER_ACTION"
)

// Message is an action request. UserID is the acting user and is never
// taken from the wire.
type Message struct {
	Type    ActionType      `json:"type"`
	Origin  Origin          `json:"origin"`
	Payload json.RawMessage `json:"payload,omitempty"`
	UserID  domain.UserID   `json:"-"`
}

// NewClientMessage builds a client-origin message; used by the connection
// layer after it resolved something on the client's behalf.
func NewClientMessage(t ActionType, user domain.UserID, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Origin: OriginClient, Payload: raw, UserID: user}, nil
}

func newServerMessage(t ActionType, payload any) Message {
	raw, _ := json.Marshal(payload)
	return Message{Type: t, Origin: OriginServer, Payload: raw}
}

// DecodeClientMessage parses a socket frame. Frames that claim server
// origin or carry a server-only type are rejected here, before they can
// reach a room.
func DecodeClientMessage(data []byte, user domain.UserID) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, invalid("", CodeBadPayload, "malformed frame: %v", err)
	}
	t, err := ParseActionType(string(msg.Type))
	if err != nil {
		return Message{}, invalid(msg.Type, CodeUnknownType, "%v", err)
	}
	switch msg.Origin {
	case "", OriginClient:
		msg.Origin = OriginClient
	default:
		return Message{}, invalid(t, CodeForgedOrigin, "origin %q not accepted from a client", msg.Origin)
	}
	if t.ServerOnly() {
		return Message{}, invalid(t, CodeForgedOrigin, "%s is server-only", t)
	}
	msg.Type = t
	msg.UserID = user
	return msg, nil
}

// Event is a state change as clients receive it.
type Event struct {
	Type    ActionType `json:"type"`
	Origin  Origin     `json:"origin"`
	Payload any        `json:"payload"`
}

func newEvent(t ActionType, payload any) Event {
	return Event{Type: t, Origin: OriginServer, Payload: payload}
}

func (e Event) Frame() (Frame, error) {
	return json.Marshal(e)
}

// ErrorEvent wraps a rejection for the client that caused it.
func ErrorEvent(err error) Event {
	p := ErrorPayload{Code: CodeInternal, Message: err.Error()}
	if ve, ok := AsValidationError(err); ok {
		p.Code = ve.Code
		p.Action = ve.Type
		p.Message = ve.Reason
	}
	return newEvent(ErrorNotice, p)
}
