package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/auth"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/metrics"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Rooms looks up a running room, starting it when it is known.
type Rooms interface {
	Get(ctx context.Context, id domain.RoomID) (*core.Room, error)
}

// Users records the identity a socket was admitted with.
type Users interface {
	Save(ctx context.Context, u *domain.User) error
}

// Catalog resolves links into items and forwards likes.
type Catalog interface {
	Resolve(ctx context.Context, userID domain.UserID, raw string) (domain.PlaylistItem, error)
	Like(ctx context.Context, userID domain.UserID, item domain.PlaylistItem) error
}

type SignalWSController struct {
	rooms   Rooms
	users   Users
	catalog Catalog
	signer  *auth.Signer
	cfg     config.WS
	limiter *RateLimiter
}

func NewSignalWSController(rooms Rooms, users Users, catalog Catalog, signer *auth.Signer, cfg config.WS) *SignalWSController {
	return &SignalWSController{
		rooms:   rooms,
		users:   users,
		catalog: catalog,
		signer:  signer,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
	}
}

// WsSignalConn is the outbound queue of one socket. The write pump
// drains it; the room only ever calls TrySend and Close.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal admits a socket into a room. The identity is checked
// before the upgrade so a bad token never reaches the room.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := auth.Identity{
		ID:     domain.UserID(c.Query("id")),
		Name:   c.Query("name"),
		Avatar: c.Query("avatar"),
	}
	if err := ctl.signer.Verify(id, c.Query("token")); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(id.ID)).Msg("handshake rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
		return
	}

	room, err := ctl.rooms.Get(c.Request.Context(), domain.RoomID(c.Query("room")))
	if errors.Is(err, app.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "room_not_found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("room lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "room lookup failed", "code": "internal"})
		return
	}

	user := &domain.User{ID: id.ID, Name: id.Name, Avatar: id.Avatar}
	if err := ctl.users.Save(c.Request.Context(), user); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user.ID)).Msg("save user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record user", "code": "internal"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	sid := core.SessionID(uuid.NewString())
	conn := newWsSignalConn(ws, ctl.cfg.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	if err := joinRoom(ctx, room, sid, core.NewMemberSession(user, conn)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(room.ID())).Msg("join failed")
		cancel()
		conn.Close()
		return
	}
	metrics.Connections.Inc()
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room.ID())).
		Str("user", string(user.ID)).Msg("new WS connection")

	go ctl.readPump(ctx, cancel, room, sid, user, conn)
}

// joinRoom leaves again when Join gives up, since the join may already be queued.
func joinRoom(ctx context.Context, room *core.Room, sid core.SessionID, ms core.MemberSession) error {
	if err := room.Join(ctx, sid, ms); err != nil {
		room.Leave(sid)
		return err
	}
	return nil
}

func (ctl *SignalWSController) pongWait() time.Duration {
	if ctl.cfg.PingPeriod <= 0 {
		return 0
	}
	return ctl.cfg.PingPeriod * 10 / 9
}
