package core

import (
	"time"

	"github.com/dkeye/Tandem/internal/domain"
)

// PublishResult reports delivery of one frame to the room's sessions.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	Private   bool          `json:"private"`
	Members   int           `json:"member_count"`
	CreatedAt time.Time     `json:"created_at"`
}

// RoomView is the full state of a room as the HTTP API reports it.
type RoomView struct {
	RoomInfo
	Items  []domain.PlaylistItem `json:"items"`
	Player PlayerState           `json:"player"`
	Users  []domain.Member       `json:"users"`
}
