package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/catalog"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/domain"
)

const codeProvider = "provider_error"

// resolveURL turns a link into a PLAYLIST_ADD_ITEM for the same user.
// Resolution talks to the provider, so it runs here and not in the room.
func (ctl *SignalWSController) resolveURL(ctx context.Context, msg core.Message) (core.Message, core.Event, bool) {
	var p core.AddItemFromURLPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.URL == "" {
		return core.Message{}, core.NewErrorEvent(core.CodeBadPayload, msg.Type, "payload needs a url"), false
	}
	item, err := ctl.catalog.Resolve(ctx, msg.UserID, p.URL)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("user", string(msg.UserID)).Str("url", p.URL).Msg("resolve failed")
		return core.Message{}, catalogErrorEvent(msg.Type, err), false
	}
	add, err := core.NewClientMessage(core.PlaylistAddItem, msg.UserID, core.AddItemPayload{Item: item, Index: p.Index})
	if err != nil {
		return core.Message{}, core.ErrorEvent(err), false
	}
	return add, core.Event{}, true
}

// like forwards an accepted like to the provider. The room already
// broadcast it; only the liker hears about a provider failure.
func (ctl *SignalWSController) like(ctx context.Context, room *core.Room, sid core.SessionID, userID domain.UserID, item domain.PlaylistItem) {
	if err := ctl.catalog.Like(ctx, userID, item); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Info().Err(err).Str("module", "signal").Str("user", string(userID)).Str("item", string(item.ID)).Msg("like failed")
		ctl.notify(ctx, room, sid, catalogErrorEvent(core.PlayerLikeItem, err))
	}
}

func catalogErrorEvent(action core.ActionType, err error) core.Event {
	var ce *credential.CredentialError
	if errors.As(err, &ce) {
		return core.NewErrorEvent(ce.Code(), action, ce.Error())
	}
	var pe *credential.ProviderError
	if errors.As(err, &pe) {
		return core.NewErrorEvent(codeProvider, action, pe.Error())
	}
	switch {
	case errors.Is(err, catalog.ErrUnsupportedURL):
		return core.NewErrorEvent(core.CodeUnresolved, action, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		return core.NewErrorEvent(core.CodeNotFound, action, err.Error())
	case errors.Is(err, domain.ErrUnknownProvider):
		return core.NewErrorEvent(core.CodeUnresolved, action, err.Error())
	}
	return core.NewErrorEvent(codeProvider, action, err.Error())
}
