package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sosodev/duration"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/domain"
)

var youtubeParts = []string{"snippet", "contentDetails"}

// YouTube looks videos up with the application's API key and rates them
// through the user's linked account.
type YouTube struct {
	svc   *youtube.Service
	proxy Invoker
}

func NewYouTube(ctx context.Context, apiKey string, proxy Invoker, opts ...option.ClientOption) (*YouTube, error) {
	auth := option.WithoutAuthentication()
	if apiKey != "" {
		auth = option.WithAPIKey(apiKey)
	}
	opts = append([]option.ClientOption{auth}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &YouTube{svc: svc, proxy: proxy}, nil
}

func (y *YouTube) Provider() domain.Provider { return domain.ProviderYouTube }

func (y *YouTube) Matches(u *url.URL) bool {
	_, ok := VideoID(u)
	return ok
}

// VideoID extracts the id from watch, short, embed and youtu.be links.
func VideoID(u *url.URL) (string, bool) {
	path := strings.Trim(u.Path, "/")
	var id string
	switch {
	case hostIs(u, "youtu.be"):
		id = path
	case hostIs(u, "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com"):
		switch {
		case path == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "embed/"):
			id = path[strings.Index(path, "/")+1:]
		}
	}
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (y *YouTube) Resolve(ctx context.Context, _ domain.UserID, u *url.URL) (domain.PlaylistItem, error) {
	id, ok := VideoID(u)
	if !ok {
		return domain.PlaylistItem{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, u)
	}
	resp, err := y.svc.Videos.List(youtubeParts).Id(id).Context(ctx).Do()
	if err != nil {
		return domain.PlaylistItem{}, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil || resp.Items[0].ContentDetails == nil {
		return domain.PlaylistItem{}, fmt.Errorf("youtube %s: %w", id, ErrNotFound)
	}
	v := resp.Items[0]

	d, err := duration.Parse(v.ContentDetails.Duration)
	if err != nil {
		return domain.PlaylistItem{}, fmt.Errorf("youtube %s duration %q: %w", id, v.ContentDetails.Duration, err)
	}

	return domain.PlaylistItem{
		Source:   domain.ProviderYouTube,
		SourceID: v.Id,
		Title:    v.Snippet.Title,
		URL:      fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.Id),
		Image:    thumbnail(v.Snippet.Thumbnails),
		Duration: durationSeconds(d),
	}, nil
}

func (y *YouTube) Like(ctx context.Context, userID domain.UserID, item domain.PlaylistItem) error {
	resp, err := y.proxy.Invoke(ctx, userID, credential.Request{
		Provider: domain.ProviderYouTube,
		Method:   http.MethodPost,
		Endpoint: "/videos/rate",
		Query:    url.Values{"id": {item.SourceID}, "rating": {"like"}},
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func durationSeconds(d *duration.Duration) float64 {
	return d.Seconds + d.Minutes*60 + d.Hours*3600 + (d.Days+d.Weeks*7)*86400
}

func thumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
