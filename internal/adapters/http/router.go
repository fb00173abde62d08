package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/auth"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/metrics"
)

const (
	sessionName   = "TandemSession"
	sessionUserID = "uid"
	ctxUser       = "user"
)

// Rooms is the room registry as the HTTP surface uses it.
type Rooms interface {
	Create(ctx context.Context, private bool) (*core.Room, error)
	Get(ctx context.Context, id domain.RoomID) (*core.Room, error)
	List(ctx context.Context, includePrivate bool) ([]core.RoomInfo, error)
	Update(ctx context.Context, id domain.RoomID, private bool) (core.RoomInfo, error)
	Delete(ctx context.Context, id domain.RoomID) error
}

// Invoker sends a provider request on a user's behalf.
type Invoker interface {
	Invoke(ctx context.Context, userID domain.UserID, req credential.Request) (*http.Response, error)
}

// SocketHandler admits room sockets.
type SocketHandler interface {
	HandleSignal(ctx context.Context, c *gin.Context)
}

type Services struct {
	Rooms  Rooms
	Users  credential.Store
	Proxy  Invoker
	Signer *auth.Signer
	Signal SocketHandler
}

// SessionMiddleware loads the user behind the session cookie, if any.
func SessionMiddleware(users credential.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := sessions.Default(c).Get(sessionUserID).(string)
		if ok && id != "" {
			u, err := users.Get(c.Request.Context(), domain.UserID(id))
			if err == nil {
				c.Set(ctxUser, u)
			} else {
				log.Debug().Err(err).Str("module", "adapters.http").Str("user", id).Msg("session user not found")
			}
		}
		c.Next()
	}
}

// GuestMiddleware creates a guest for a browser without a known user.
// Only the page and the session endpoint use it.
func GuestMiddleware(users credential.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) != nil {
			c.Next()
			return
		}
		u := domain.NewGuest()
		if err := users.Save(c.Request.Context(), u); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save guest")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not create session", "code": "internal"})
			return
		}
		sess := sessions.Default(c)
		sess.Set(sessionUserID, string(u.ID))
		if err := sess.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		}
		c.Set(ctxUser, u)
		c.Next()
	}
}

// RequireUser rejects requests without a session user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session", "code": "no_session"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*domain.User)
	return u
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc Services) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = cfg.CORSOrigins
		cc.AllowCredentials = true
		cc.MaxAge = 12 * time.Hour
		r.Use(cors.New(cc))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/ws", func(c *gin.Context) {
		svc.Signal.HandleSignal(ctx, c)
	})

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 30, HttpOnly: true, SameSite: http.SameSiteLaxMode})

	r.Static("/static", cfg.StaticPath)

	web := r.Group("/")
	web.Use(sessions.Sessions(sessionName, store), SessionMiddleware(svc.Users))

	guest := GuestMiddleware(svc.Users)
	web.GET("/", guest, func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	h := &handlers{svc: svc}
	web.GET("/auth/:provider/unlink", RequireUser(), h.unlink)

	api := web.Group("/api/v1")
	api.GET("/session", guest, h.session)

	api.POST("/rooms", h.createRoom)
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:id", h.getRoom)
	api.PUT("/rooms/:id", h.updateRoom)
	api.DELETE("/rooms/:id", h.deleteRoom)

	api.Any("/proxy/:provider/*endpoint", RequireUser(), h.proxy)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Strs("cors", cfg.CORSOrigins).Msg("router setup")
	return r
}
