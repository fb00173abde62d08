// Package credential forwards requests to third-party catalogs on a
// user's behalf and keeps the user's access tokens fresh.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/metrics"
)

const (
	DefaultRefreshTimeout = 10 * time.Second
	DefaultExpirySkew     = 30 * time.Second
	// DefaultTokenLifetime applies when an expiring provider omits expires_in.
	DefaultTokenLifetime  = time.Hour
	maxErrorBody          = 64 << 10
)

// Request is a provider call as the caller describes it. Endpoint is a
// path relative to the provider's API base.
type Request struct {
	Provider domain.Provider
	Method   string
	Endpoint string
	Query    url.Values
	Header   http.Header
	Body     io.Reader
}

type ProxyOption func(*Proxy)

func WithHTTPClient(c *http.Client) ProxyOption {
	return func(p *Proxy) { p.client = c }
}

func WithRefreshTimeout(d time.Duration) ProxyOption {
	return func(p *Proxy) { p.timeout = d }
}

func WithExpirySkew(d time.Duration) ProxyOption {
	return func(p *Proxy) { p.skew = d }
}

func WithNow(now func() time.Time) ProxyOption {
	return func(p *Proxy) { p.now = now }
}

type Proxy struct {
	store     Store
	refresher Refresher
	providers map[domain.Provider]Provider
	client    *http.Client
	group     singleflight.Group
	timeout   time.Duration
	skew      time.Duration
	now       func() time.Time
}

func NewProxy(store Store, refresher Refresher, providers []Provider, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		store:     store,
		refresher: refresher,
		providers: make(map[domain.Provider]Provider, len(providers)),
		client:    http.DefaultClient,
		timeout:   DefaultRefreshTimeout,
		skew:      DefaultExpirySkew,
		now:       time.Now,
	}
	for _, pr := range providers {
		p.providers[pr.Name] = pr
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Invoke authorizes and forwards req. On success the caller owns the
// response body. A status of 400 or above comes back as *ProviderError.
func (p *Proxy) Invoke(ctx context.Context, userID domain.UserID, req Request) (*http.Response, error) {
	pr, ok := p.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("proxy: %w: %q", domain.ErrUnknownProvider, req.Provider)
	}

	token, err := p.accessToken(ctx, userID, pr)
	if err != nil {
		return nil, err
	}

	out, err := p.buildRequest(ctx, pr, req, token)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.client.Do(out)
	metrics.ProxyDuration.WithLabelValues(string(pr.Name)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProxyRequests.WithLabelValues(string(pr.Name), "error").Inc()
		return nil, fmt.Errorf("proxy %s: %w", pr.Name, err)
	}
	metrics.ProxyRequests.WithLabelValues(string(pr.Name), metrics.StatusClass(resp.StatusCode)).Inc()

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProviderError{Provider: pr.Name, Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	}
	return resp, nil
}

// accessToken returns a token that is valid now, refreshing it first if needed.
func (p *Proxy) accessToken(ctx context.Context, userID domain.UserID, pr Provider) (string, error) {
	u, err := p.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return "", &CredentialError{Provider: pr.Name, Err: err}
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	c := u.Credential(pr.Name)
	if !c.Linked() {
		return "", &CredentialError{Provider: pr.Name, Err: ErrNotLinked}
	}
	if c.AccessToken == "" {
		return "", &CredentialError{Provider: pr.Name, Err: ErrMissingToken}
	}
	if !pr.Expiring || !c.Expired(p.now(), p.skew) {
		return c.AccessToken, nil
	}
	return p.refresh(ctx, userID, pr)
}

// refresh runs at most one refresh per user and provider; concurrent
// callers share its result. The refresh is detached from the caller so
// one caller giving up does not fail the others.
func (p *Proxy) refresh(ctx context.Context, userID domain.UserID, pr Provider) (string, error) {
	key := string(userID) + "/" + string(pr.Name)
	ch := p.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.doRefresh(fctx, userID, pr)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Proxy) doRefresh(ctx context.Context, userID domain.UserID, pr Provider) (string, error) {
	l := log.With().Str("module", "credential.proxy").Str("user", string(userID)).Str("provider", string(pr.Name)).Logger()

	// Another flight may have finished between the caller's read and this one.
	u, err := p.store.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reload user: %w", err)
	}
	c := u.Credential(pr.Name)
	if !c.Linked() {
		return "", &CredentialError{Provider: pr.Name, Err: ErrNotLinked}
	}
	if c.AccessToken != "" && !c.Expired(p.now(), p.skew) {
		return c.AccessToken, nil
	}

	tok, err := p.refresher.Refresh(ctx, pr.Name, c)
	if err != nil {
		metrics.Refreshes.WithLabelValues(string(pr.Name), "failed").Inc()
		l.Warn().Err(err).Msg("token refresh failed")
		return "", &CredentialError{Provider: pr.Name, Err: fmt.Errorf("%w: %w", ErrRefreshFailed, err)}
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = p.now().Add(DefaultTokenLifetime)
	}

	ok, err := p.store.UpdateAccessToken(ctx, userID, pr.Name, c.AccessToken, tok.AccessToken, tok.Expiry)
	if err != nil {
		metrics.Refreshes.WithLabelValues(string(pr.Name), "failed").Inc()
		return "", fmt.Errorf("store refreshed token: %w", err)
	}
	if !ok {
		// Someone else wrote a token first; theirs wins.
		u, err := p.store.Get(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("reload user: %w", err)
		}
		cur := u.Credential(pr.Name)
		if cur.AccessToken == "" {
			return "", &CredentialError{Provider: pr.Name, Err: ErrMissingToken}
		}
		metrics.Refreshes.WithLabelValues(string(pr.Name), "superseded").Inc()
		l.Debug().Msg("refreshed token superseded by concurrent write")
		return cur.AccessToken, nil
	}
	if tok.RefreshToken != "" {
		if err := p.store.Link(ctx, userID, pr.Name, domain.Credential{RefreshToken: tok.RefreshToken}); err != nil {
			l.Warn().Err(err).Msg("store rotated refresh token")
		}
	}
	metrics.Refreshes.WithLabelValues(string(pr.Name), "ok").Inc()
	l.Info().Time("expiry", tok.Expiry).Msg("token refreshed")
	return tok.AccessToken, nil
}

func (p *Proxy) buildRequest(ctx context.Context, pr Provider, req Request, token string) (*http.Request, error) {
	u, err := pr.endpointURL(req.Endpoint, req.Query)
	if err != nil {
		return nil, fmt.Errorf("proxy endpoint %q: %w", req.Endpoint, err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	out, err := http.NewRequestWithContext(ctx, method, u.String(), req.Body)
	if err != nil {
		return nil, err
	}
	for _, h := range forwardHeaders {
		if v := req.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}
	pr.authorize(out, token)
	return out, nil
}
