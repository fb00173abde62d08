package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/domain"
)

type soundCloudTrack struct {
	Kind         string `json:"kind"`
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	PermalinkURL string `json:"permalink_url"`
	ArtworkURL   string `json:"artwork_url"`
	Duration     int64  `json:"duration"` // milliseconds
}

// SoundCloud looks tracks up with the application's client_id so any room
// member can add them. Likes go through the user's linked account.
type SoundCloud struct {
	apiBase  string
	clientID string
	client   *http.Client
	proxy    Invoker
}

// NewSoundCloud falls back to the user's account for lookups when clientID is empty.
func NewSoundCloud(apiBase, clientID string, client *http.Client, proxy Invoker) *SoundCloud {
	if client == nil {
		client = http.DefaultClient
	}
	return &SoundCloud{apiBase: strings.TrimRight(apiBase, "/"), clientID: clientID, client: client, proxy: proxy}
}

func (s *SoundCloud) Provider() domain.Provider { return domain.ProviderSoundCloud }

func (s *SoundCloud) Matches(u *url.URL) bool {
	return hostIs(u, "soundcloud.com", "www.soundcloud.com", "m.soundcloud.com") && strings.Trim(u.Path, "/") != ""
}

func (s *SoundCloud) Resolve(ctx context.Context, userID domain.UserID, u *url.URL) (domain.PlaylistItem, error) {
	var (
		resp *http.Response
		err  error
	)
	if s.clientID != "" {
		resp, err = s.lookup(ctx, u)
	} else {
		resp, err = s.proxy.Invoke(ctx, userID, credential.Request{
			Provider: domain.ProviderSoundCloud,
			Endpoint: "/resolve",
			Query:    url.Values{"url": {u.String()}},
			Header:   http.Header{"Accept": {"application/json"}},
		})
	}
	if err != nil {
		return domain.PlaylistItem{}, err
	}
	defer resp.Body.Close()

	var tr soundCloudTrack
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.PlaylistItem{}, fmt.Errorf("soundcloud resolve: %w", err)
	}
	if tr.Kind != "track" || tr.ID == 0 {
		return domain.PlaylistItem{}, fmt.Errorf("soundcloud %s: %w", u, ErrNotFound)
	}

	link := tr.PermalinkURL
	if link == "" {
		link = u.String()
	}
	return domain.PlaylistItem{
		Source:   domain.ProviderSoundCloud,
		SourceID: strconv.FormatInt(tr.ID, 10),
		Title:    tr.Title,
		URL:      link,
		Image:    tr.ArtworkURL,
		Duration: float64(tr.Duration) / 1000,
	}, nil
}

// lookup calls /resolve as the application.
func (s *SoundCloud) lookup(ctx context.Context, u *url.URL) (*http.Response, error) {
	q := url.Values{"url": {u.String()}, "client_id": {s.clientID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/resolve?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("soundcloud resolve: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("soundcloud %s: %w", u, ErrNotFound)
	case resp.StatusCode >= http.StatusBadRequest:
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &credential.ProviderError{Provider: domain.ProviderSoundCloud, Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	}
	return resp, nil
}

func (s *SoundCloud) Like(ctx context.Context, userID domain.UserID, item domain.PlaylistItem) error {
	resp, err := s.proxy.Invoke(ctx, userID, credential.Request{
		Provider: domain.ProviderSoundCloud,
		Method:   http.MethodPut,
		Endpoint: "/me/favorites/" + url.PathEscape(item.SourceID),
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
