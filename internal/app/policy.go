package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/metrics"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room *core.Room, sid core.SessionID, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks every member that cannot keep up.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Room, core.SessionID, core.MemberSession) BackpressureAction {
	return KickMember
}

// DropHandler adapts a Policy to the room's drop hook.
func DropHandler(p Policy) core.DropHandler {
	return func(room *core.Room, sid core.SessionID, ms core.MemberSession) {
		switch p.OnBackPressure(room, sid, ms) {
		case KickMember:
			metrics.Kicks.Inc()
			core.KickSession(room, sid, ms)
		case MarkSlow:
			log.Warn().Str("module", "app.policy").Str("room", string(room.ID())).Str("sid", string(sid)).Msg("slow member")
		case DropFrame, NoAction:
		}
	}
}
