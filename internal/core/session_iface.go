package core

import "github.com/dkeye/Tandem/internal/domain"

type SessionID string

// Frame is one encoded message on a signal connection.
type Frame []byte

// SignalConnection is the outbound half of a client socket.
// Owned by the adapter; the room only closes it when it shuts down or kicks.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a user to one of their connections.
// This is what a room stores and fans out to.
type MemberSession interface {
	User() *domain.User
	Member() domain.Member
	Signal() SignalConnection
}
