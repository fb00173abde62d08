// Package catalog turns provider URLs into playlist items and forwards
// likes to the provider a user linked.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/domain"
)

var (
	ErrUnsupportedURL = errors.New("url is not a known provider link")
	ErrNotFound       = errors.New("item not found")
)

// Invoker sends an authorized request on a user's behalf.
type Invoker interface {
	Invoke(ctx context.Context, userID domain.UserID, req credential.Request) (*http.Response, error)
}

// Source resolves and likes items of one provider.
type Source interface {
	Provider() domain.Provider
	Matches(u *url.URL) bool
	Resolve(ctx context.Context, userID domain.UserID, u *url.URL) (domain.PlaylistItem, error)
	Like(ctx context.Context, userID domain.UserID, item domain.PlaylistItem) error
}

type Catalog struct {
	sources []Source
}

func New(sources ...Source) *Catalog {
	return &Catalog{sources: sources}
}

// Resolve returns an item without id or user; the room assigns those.
func (c *Catalog) Resolve(ctx context.Context, userID domain.UserID, raw string) (domain.PlaylistItem, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.PlaylistItem{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
	}
	for _, s := range c.sources {
		if s.Matches(u) {
			return s.Resolve(ctx, userID, u)
		}
	}
	return domain.PlaylistItem{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
}

func (c *Catalog) Like(ctx context.Context, userID domain.UserID, item domain.PlaylistItem) error {
	for _, s := range c.sources {
		if s.Provider() == item.Source {
			return s.Like(ctx, userID, item)
		}
	}
	return fmt.Errorf("like: %w: %q", domain.ErrUnknownProvider, item.Source)
}

func hostIs(u *url.URL, hosts ...string) bool {
	h := strings.ToLower(u.Hostname())
	for _, want := range hosts {
		if h == want {
			return true
		}
	}
	return false
}
