package domain

import "time"

type RoomID string

// Room is the durable part of a room: what the directory stores.
type Room struct {
	ID        RoomID    `json:"id"`
	Private   bool      `json:"private"`
	CreatedAt time.Time `json:"created_at"`
}
