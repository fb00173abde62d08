package domain

import (
	"errors"
	"net/url"
	"strings"
)

type ItemID string

// MaxItemDuration caps the length, in seconds, a client may claim for an item.
const MaxItemDuration = 24 * 60 * 60

var (
	ErrItemURL      = errors.New("item url must be an absolute http(s) url")
	ErrItemDuration = errors.New("item duration must be positive and at most a day")
	ErrItemTitle    = errors.New("item title empty")
)

// PlaylistItem is immutable once created; its position is the index
// in the room's playlist.
type PlaylistItem struct {
	ID       ItemID   `json:"id"`
	Source   Provider `json:"source"`
	SourceID string   `json:"source_id,omitempty"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Image    string   `json:"image,omitempty"`
	Duration float64  `json:"duration"`
	UserID   UserID   `json:"user_id"`
}

// Validate checks the fields a client is allowed to supply.
func (it PlaylistItem) Validate() error {
	if _, err := ParseProvider(string(it.Source)); err != nil {
		return err
	}
	if strings.TrimSpace(it.Title) == "" {
		return ErrItemTitle
	}
	if !(it.Duration > 0 && it.Duration <= MaxItemDuration) {
		return ErrItemDuration
	}
	u, err := url.Parse(it.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrItemURL
	}
	return nil
}
