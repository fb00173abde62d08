package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/auth"
	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/domain"
)

// passHeaders are copied from a provider response to the client.
var passHeaders = []string{"Cache-Control", "Content-Range", "ETag", "Last-Modified", "Accept-Ranges"}

type handlers struct {
	svc Services
}

type sessionResponse struct {
	ID     domain.UserID            `json:"id"`
	Name   string                   `json:"name"`
	Avatar string                   `json:"avatar,omitempty"`
	Token  string                   `json:"token"`
	Linked map[domain.Provider]bool `json:"linked"`
}

type roomRequest struct {
	Private bool `json:"private"`
}

func abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}

// session hands the client the identity and token it presents when
// opening a room socket.
func (h *handlers) session(c *gin.Context) {
	u := currentUser(c)
	id := auth.Identity{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
	c.JSON(http.StatusOK, sessionResponse{
		ID:     u.ID,
		Name:   u.Name,
		Avatar: u.Avatar,
		Token:  h.svc.Signer.Token(id),
		Linked: map[domain.Provider]bool{
			domain.ProviderYouTube:    u.Linked(domain.ProviderYouTube),
			domain.ProviderSoundCloud: u.Linked(domain.ProviderSoundCloud),
		},
	})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req roomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, "bad_request", err)
			return
		}
	}
	room, err := h.svc.Rooms.Create(c.Request.Context(), req.Private)
	if err != nil {
		h.roomError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room.Info())
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms, err := h.svc.Rooms.List(c.Request.Context(), false)
	if err != nil {
		h.roomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) getRoom(c *gin.Context) {
	room, err := h.svc.Rooms.Get(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		h.roomError(c, err)
		return
	}
	view, err := room.View(c.Request.Context())
	if err != nil {
		h.roomError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) updateRoom(c *gin.Context) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	info, err := h.svc.Rooms.Update(c.Request.Context(), domain.RoomID(c.Param("id")), req.Private)
	if err != nil {
		h.roomError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handlers) deleteRoom(c *gin.Context) {
	if err := h.svc.Rooms.Delete(c.Request.Context(), domain.RoomID(c.Param("id"))); err != nil {
		h.roomError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) roomError(c *gin.Context, err error) {
	if errors.Is(err, app.ErrRoomNotFound) {
		abortError(c, http.StatusNotFound, "room_not_found", err)
		return
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("room request")
	abortError(c, http.StatusInternalServerError, "internal", errors.New("room request failed"))
}

// proxy forwards the request to the provider as the session user and
// streams the provider's answer back.
func (h *handlers) proxy(c *gin.Context) {
	p, err := domain.ParseProvider(c.Param("provider"))
	if err != nil {
		abortError(c, http.StatusNotFound, "unknown_provider", err)
		return
	}
	u := currentUser(c)
	resp, err := h.svc.Proxy.Invoke(c.Request.Context(), u.ID, credential.Request{
		Provider: p,
		Method:   c.Request.Method,
		Endpoint: c.Param("endpoint"),
		Query:    c.Request.URL.Query(),
		Header:   c.Request.Header,
		Body:     c.Request.Body,
	})
	if err != nil {
		h.proxyError(c, err)
		return
	}
	defer resp.Body.Close()

	extra := make(map[string]string)
	for _, k := range passHeaders {
		if v := resp.Header.Get(k); v != "" {
			extra[k] = v
		}
	}
	c.DataFromReader(resp.StatusCode, resp.ContentLength, resp.Header.Get("Content-Type"), resp.Body, extra)
}

func (h *handlers) proxyError(c *gin.Context, err error) {
	var ce *credential.CredentialError
	if errors.As(err, &ce) {
		abortError(c, http.StatusUnauthorized, ce.Code(), err)
		return
	}
	var pe *credential.ProviderError
	if errors.As(err, &pe) {
		ct := pe.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		c.Data(pe.Status, ct, pe.Body)
		c.Abort()
		return
	}
	if errors.Is(err, domain.ErrUnknownProvider) {
		abortError(c, http.StatusNotFound, "unknown_provider", err)
		return
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("provider", c.Param("provider")).Msg("proxy request")
	abortError(c, http.StatusBadGateway, "provider_unreachable", err)
}

func (h *handlers) unlink(c *gin.Context) {
	p, err := domain.ParseProvider(c.Param("provider"))
	if err != nil {
		abortError(c, http.StatusNotFound, "unknown_provider", err)
		return
	}
	u := currentUser(c)
	if err := h.svc.Users.Unlink(c.Request.Context(), u.ID, p); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("user", string(u.ID)).Msg("unlink")
		abortError(c, http.StatusInternalServerError, "internal", errors.New("unlink failed"))
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", string(u.ID)).Str("provider", string(p)).Msg("provider unlinked")
	c.Redirect(http.StatusFound, "/")
}
