package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/metrics"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.cfg.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(
	ctx context.Context,
	cancel context.CancelFunc,
	room *core.Room,
	sid core.SessionID,
	user *domain.User,
	c *WsSignalConn,
) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		room.Leave(sid)
		cancel()
		c.Close()
		metrics.Connections.Dec()
		ctl.limiter.Prune()
	}()

	if wait := ctl.pongWait(); wait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, room, sid, user, data)
		}
	}
}

// handleSignal runs one client frame to completion before the next is
// read, so a client's own actions reach the room in the order it sent them.
func (ctl *SignalWSController) handleSignal(ctx context.Context, room *core.Room, sid core.SessionID, user *domain.User, data []byte) {
	msg, err := core.DecodeClientMessage(data, user.ID)
	if err != nil {
		metrics.Actions.WithLabelValues("invalid", "rejected").Inc()
		ctl.notify(ctx, room, sid, core.ErrorEvent(err))
		return
	}
	if !ctl.limiter.Allow(user.ID) {
		metrics.Actions.WithLabelValues(string(msg.Type), "rate_limited").Inc()
		ctl.notify(ctx, room, sid, core.NewErrorEvent(core.CodeRateLimited, msg.Type, "too many actions, slow down"))
		return
	}

	if msg.Type == core.PlaylistAddItemFromURL && ctl.catalog != nil {
		resolved, ev, ok := ctl.resolveURL(ctx, msg)
		if !ok {
			metrics.Actions.WithLabelValues(string(msg.Type), "rejected").Inc()
			ctl.notify(ctx, room, sid, ev)
			return
		}
		msg = resolved
	}

	events, err := room.Submit(ctx, msg)
	if err != nil {
		metrics.Actions.WithLabelValues(string(msg.Type), "rejected").Inc()
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(msg.Type)).Msg("action rejected")
		ctl.notify(ctx, room, sid, core.ErrorEvent(err))
		return
	}
	metrics.Actions.WithLabelValues(string(msg.Type), "applied").Inc()

	if msg.Type == core.PlayerLikeItem && ctl.catalog != nil {
		for _, ev := range events {
			if p, ok := ev.Payload.(core.LikePayload); ok {
				go ctl.like(ctx, room, sid, user.ID, p.Item)
			}
		}
	}
}

func (ctl *SignalWSController) notify(ctx context.Context, room *core.Room, sid core.SessionID, ev core.Event) {
	if err := room.Notify(ctx, sid, ev); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("notify")
	}
}
