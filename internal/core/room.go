package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/domain"
)

const (
	DefaultTickInterval = time.Second
	inboxSize           = 64
)

// DropHandler decides what happens to a session whose send buffer is full.
// It runs on the room goroutine.
type DropHandler func(room *Room, sid SessionID, ms MemberSession)

type Option func(*Room)

func WithClock(now func() time.Time) Option { return func(r *Room) { r.now = now } }

// WithTickInterval sets how often elapsed time is broadcast; zero disables the clock.
func WithTickInterval(d time.Duration) Option { return func(r *Room) { r.tick = d } }

func WithLimits(l Limits) Option { return func(r *Room) { r.state = NewState(l) } }

func WithDropHandler(h DropHandler) Option { return func(r *Room) { r.onDrop = h } }

// Room owns one State and the sessions subscribed to it. Every mutation
// runs on the Run goroutine, so actions are applied and broadcast in a
// single total order.
type Room struct {
	id        domain.RoomID
	createdAt time.Time
	private   atomic.Bool

	state    *State
	sessions map[SessionID]MemberSession

	inbox  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	members    atomic.Int32
	emptySince atomic.Int64

	now    func() time.Time
	tick   time.Duration
	onDrop DropHandler
}

func NewRoom(parent context.Context, meta domain.Room, opts ...Option) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:        meta.ID,
		createdAt: meta.CreatedAt,
		state:     NewState(DefaultLimits),
		sessions:  make(map[SessionID]MemberSession),
		inbox:     make(chan func(), inboxSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		now:       time.Now,
		tick:      DefaultTickInterval,
		onDrop:    KickSession,
	}
	for _, o := range opts {
		o(r)
	}
	if r.createdAt.IsZero() {
		r.createdAt = r.now()
	}
	r.private.Store(meta.Private)
	r.emptySince.Store(r.now().UnixNano())
	return r
}

// KickSession closes the connection; its read loop then leaves the room.
func KickSession(room *Room, sid SessionID, ms MemberSession) {
	log.Warn().Str("module", "core.room").Str("room", string(room.id)).Str("sid", string(sid)).Msg("kicking slow session")
	ms.Signal().Close()
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Run() {
	defer close(r.done)
	var tickC <-chan time.Time
	if r.tick > 0 {
		t := time.NewTicker(r.tick)
		defer t.Stop()
		tickC = t.C
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room started")
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return
		case fn := <-r.inbox:
			fn()
		case <-tickC:
			if msg, ok := r.state.TickMessage(r.now()); ok {
				_, _ = r.apply(msg)
			}
		}
	}
}

func (r *Room) Stop() { r.cancel() }

func (r *Room) Done() <-chan struct{} { return r.done }

// do runs fn on the room goroutine and waits for it.
func (r *Room) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}
	select {
	case r.inbox <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	}
}

// Join subscribes ms. Others learn about a new user first, then the new
// session receives the full state.
func (r *Room) Join(ctx context.Context, sid SessionID, ms MemberSession) error {
	return r.do(ctx, func() {
		r.sessions[sid] = ms
		r.updateCount()
		if ev, joined := r.state.Join(ms.Member()); joined {
			r.broadcast(ev, sid)
		}
		for _, ev := range r.state.Snapshot(r.now()) {
			r.sendTo(sid, ms, ev)
		}
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).
			Str("user", string(ms.User().ID)).Msg("member joined")
	})
}

func (r *Room) Leave(sid SessionID) {
	err := r.do(context.Background(), func() {
		ms, ok := r.sessions[sid]
		if !ok {
			return
		}
		delete(r.sessions, sid)
		r.updateCount()
		if ev, left := r.state.Leave(ms.User().ID); left {
			r.broadcast(ev, "")
		}
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("member left")
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "core.room").Str("room", string(r.id)).Msg("leave after close")
	}
}

// Submit applies a client action and broadcasts the resulting events to
// every session, the sender included. The accepted events are returned.
func (r *Room) Submit(ctx context.Context, msg Message) ([]Event, error) {
	if msg.Origin != OriginClient {
		return nil, invalid(msg.Type, CodeForgedOrigin, "origin %q not accepted from a client", msg.Origin)
	}
	var (
		events []Event
		err    error
	)
	if derr := r.do(ctx, func() { events, err = r.apply(msg) }); derr != nil {
		return nil, derr
	}
	return events, err
}

// Notify sends ev to one session only.
func (r *Room) Notify(ctx context.Context, sid SessionID, ev Event) error {
	return r.do(ctx, func() {
		if ms, ok := r.sessions[sid]; ok {
			r.sendTo(sid, ms, ev)
		}
	})
}

func (r *Room) View(ctx context.Context) (RoomView, error) {
	var v RoomView
	err := r.do(ctx, func() {
		v = RoomView{
			RoomInfo: r.Info(),
			Items:    r.state.Items(),
			Player:   r.state.PlayerState(r.now()),
			Users:    r.state.Users(),
		}
	})
	return v, err
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{
		ID:        r.id,
		Private:   r.private.Load(),
		Members:   r.MemberCount(),
		CreatedAt: r.createdAt,
	}
}

func (r *Room) SetPrivate(private bool) { r.private.Store(private) }

func (r *Room) MemberCount() int { return int(r.members.Load()) }

// EmptySince reports when the last session left; ok is false while occupied.
func (r *Room) EmptySince() (time.Time, bool) {
	ns := r.emptySince.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func (r *Room) updateCount() {
	r.members.Store(int32(len(r.sessions)))
	if len(r.sessions) == 0 {
		r.emptySince.Store(r.now().UnixNano())
	} else {
		r.emptySince.Store(0)
	}
}

// apply runs the dispatcher and rolls the state back if it panics.
func (r *Room) apply(msg Message) (events []Event, err error) {
	prev := r.state.clone()
	defer func() {
		if p := recover(); p != nil {
			r.state = prev
			events = nil
			err = &InternalError{Type: msg.Type, Cause: p}
			log.Error().Str("module", "core.room").Str("room", string(r.id)).Str("type", string(msg.Type)).
				Interface("panic", p).Msg("action panicked, state restored")
		}
	}()
	events, err = r.state.Apply(msg, r.now())
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		r.broadcast(ev, "")
	}
	return events, nil
}

// broadcast sends ev to every session except skip.
func (r *Room) broadcast(ev Event, skip SessionID) PublishResult {
	res := PublishResult{}
	frame, err := ev.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("type", string(ev.Type)).Msg("encode event")
		return res
	}
	for sid, ms := range r.sessions {
		if sid == skip {
			continue
		}
		if err := ms.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SentTo++
	}
	for _, sid := range res.Dropped {
		r.onDrop(r, sid, r.sessions[sid])
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("type", string(ev.Type)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Room) sendTo(sid SessionID, ms MemberSession, ev Event) {
	frame, err := ev.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("type", string(ev.Type)).Msg("encode event")
		return
	}
	if err := ms.Signal().TrySend(frame); err != nil {
		r.onDrop(r, sid, ms)
	}
}

func (r *Room) shutdown() {
	for sid, ms := range r.sessions {
		ms.Signal().Close()
		delete(r.sessions, sid)
	}
	r.updateCount()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room stopped")
}
