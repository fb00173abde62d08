package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dkeye/Tandem/internal/domain"
)

// Token is a freshly issued access token. RefreshToken is set when the
// provider rotated it.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, p domain.Provider, c domain.Credential) (Token, error)
}

// OAuthEndpoint is an application's registration with a provider.
type OAuthEndpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// OAuthRefresher runs the OAuth2 refresh_token grant.
type OAuthRefresher struct {
	client  *http.Client
	configs map[domain.Provider]*oauth2.Config
}

func NewOAuthRefresher(client *http.Client, endpoints map[domain.Provider]OAuthEndpoint) *OAuthRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	configs := make(map[domain.Provider]*oauth2.Config, len(endpoints))
	for p, ep := range endpoints {
		if ep.TokenURL == "" {
			continue
		}
		configs[p] = &oauth2.Config{
			ClientID:     ep.ClientID,
			ClientSecret: ep.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  ep.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
	return &OAuthRefresher{client: client, configs: configs}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, p domain.Provider, c domain.Credential) (Token, error) {
	cfg, ok := r.configs[p]
	if !ok {
		return Token{}, fmt.Errorf("no token endpoint for %s", p)
	}
	if c.RefreshToken == "" {
		return Token{}, fmt.Errorf("no refresh token for %s", p)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return Token{}, fmt.Errorf("token endpoint %d: %s %s", status, re.ErrorCode, re.ErrorDescription)
		}
		return Token{}, fmt.Errorf("token request: %w", err)
	}

	t := Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}
	if tok.RefreshToken != c.RefreshToken {
		t.RefreshToken = tok.RefreshToken
	}
	return t, nil
}
