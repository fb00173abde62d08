package credential

import (
	"net/http"
	"net/url"

	"github.com/dkeye/Tandem/internal/domain"
)

// Provider describes how requests to one catalog API are authorized.
type Provider struct {
	Name    domain.Provider
	BaseURL string
	// Expiring providers issue access tokens that need refreshing.
	Expiring bool
	// APIKey is sent with every YouTube request.
	APIKey string
}

// Only these caller headers reach the provider.
var forwardHeaders = []string{"Accept", "Content-Type", "If-None-Match", "Range"}

var credentialParams = []string{"oauth_token", "access_token", "key", "client_id", "client_secret"}

func (p Provider) endpointURL(endpoint string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	u.Path = joinPath(u.Path, ref.Path)

	q := url.Values{}
	for k, vs := range ref.Query() {
		q[k] = append(q[k], vs...)
	}
	for k, vs := range query {
		q[k] = append(q[k], vs...)
	}
	for _, k := range credentialParams {
		q.Del(k)
	}
	u.RawQuery = q.Encode()
	return u, nil
}

func (p Provider) authorize(req *http.Request, token string) {
	q := req.URL.Query()
	switch p.Name {
	case domain.ProviderYouTube:
		req.Header.Set("Authorization", "Bearer "+token)
		if p.APIKey != "" {
			q.Set("key", p.APIKey)
		}
	case domain.ProviderSoundCloud:
		q.Set("oauth_token", token)
	}
	req.URL.RawQuery = q.Encode()
}

func joinPath(base, rel string) string {
	switch {
	case base == "" || base == "/":
		if rel == "" || rel[0] != '/' {
			return "/" + rel
		}
		return rel
	case rel == "":
		return base
	}
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if rel[0] != '/' {
		rel = "/" + rel
	}
	return base + rel
}
