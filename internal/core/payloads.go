package core

import (
	"time"

	"github.com/dkeye/Tandem/internal/domain"
)

// Client payloads. Pointers mark required scalars so a missing field is
// not confused with a zero value.

type AddItemPayload struct {
	Item  domain.PlaylistItem `json:"item"`
	Index *int                `json:"index,omitempty"`
}

type AddItemFromURLPayload struct {
	URL   string `json:"url"`
	Index *int   `json:"index,omitempty"`
}

type RemoveItemPayload struct {
	ID domain.ItemID `json:"id"`
}

type MoveItemPayload struct {
	ID    domain.ItemID `json:"id"`
	Index *int          `json:"index"`
}

type ElapsedPayload struct {
	Elapsed *float64 `json:"elapsed"`
}

type OrderPayload struct {
	Order Order `json:"order"`
}

type VolumePayload struct {
	Volume *int `json:"volume"`
}

type MutePayload struct {
	Mute *bool `json:"mute"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

// Broadcast payloads.

type ItemAddedPayload struct {
	Item  domain.PlaylistItem `json:"item"`
	Index int                 `json:"index"`
}

type ItemRemovedPayload struct {
	ID domain.ItemID `json:"id"`
}

type ItemMovedPayload struct {
	ID    domain.ItemID `json:"id"`
	Index int           `json:"index"`
}

type CurrentItemPayload struct {
	Item    *domain.PlaylistItem `json:"item"`
	Elapsed float64              `json:"elapsed"`
}

type ElapsedTimePayload struct {
	ItemID  domain.ItemID `json:"item_id"`
	Elapsed float64       `json:"elapsed"`
}

type SkipPayload struct {
	UserID domain.UserID `json:"user_id"`
	ItemID domain.ItemID `json:"item_id"`
}

type LikePayload struct {
	UserID domain.UserID       `json:"user_id"`
	Item   domain.PlaylistItem `json:"item"`
}

type OrderChangedPayload struct {
	Order Order `json:"order"`
}

type VolumeChangedPayload struct {
	Volume int `json:"volume"`
}

type MuteChangedPayload struct {
	Mute bool `json:"mute"`
}

type JoinPayload struct {
	User domain.Member `json:"user"`
}

type LeavePayload struct {
	ID domain.UserID `json:"id"`
}

type ChatMessage struct {
	Seq    uint64        `json:"seq"`
	UserID domain.UserID `json:"user_id"`
	Name   string        `json:"name"`
	Text   string        `json:"text"`
	Time   time.Time     `json:"time"`
}

type PlaylistState struct {
	Items []domain.PlaylistItem `json:"items"`
}

type PlayerState struct {
	Item    *domain.PlaylistItem `json:"item"`
	Elapsed float64              `json:"elapsed"`
	Volume  int                  `json:"volume"`
	Mute    bool                 `json:"mute"`
	Order   Order                `json:"order"`
}

type UsersState struct {
	Users []domain.Member `json:"users"`
}

type ChatState struct {
	Messages []ChatMessage `json:"messages"`
}
