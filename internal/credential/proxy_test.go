package credential

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Tandem/internal/domain"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, c domain.Credential) (Token, error)
}

func (f *fakeRefresher) Refresh(ctx context.Context, _ domain.Provider, c domain.Credential) (Token, error) {
	f.calls.Add(1)
	return f.fn(ctx, c)
}

type recorded struct {
	mu   sync.Mutex
	reqs []*http.Request
}

func (r *recorded) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func (r *recorded) last() *http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[len(r.reqs)-1]
}

func (r *recorded) all() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*http.Request(nil), r.reqs...)
}

func providerServer(t *testing.T, status int, body string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, r.Clone(context.Background()))
		rec.mu.Unlock()
		w.Header().Set("X-Provider", "yes")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func seedUser(t *testing.T, store Store, p domain.Provider, c domain.Credential) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.User{ID: "u1", Name: "Alice"}))
	if c.ClientID != "" {
		require.NoError(t, store.Link(ctx, "u1", p, c))
	}
}

func newTestProxy(store Store, ref Refresher, ytBase, scBase string) *Proxy {
	return NewProxy(store, ref, []Provider{
		{Name: domain.ProviderYouTube, BaseURL: ytBase + "/youtube/v3", Expiring: true, APIKey: "app-key"},
		{Name: domain.ProviderSoundCloud, BaseURL: scBase},
	}, WithNow(func() time.Time { return now }), WithExpirySkew(0), WithRefreshTimeout(time.Second))
}

func TestProxy_ExpiredTokenRefreshedOnceForConcurrentCallers(t *testing.T) {
	srv, rec := providerServer(t, http.StatusOK, `{"items":[]}`)
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "old", RefreshToken: "r1", Expiry: now.Add(-time.Second),
	})

	release := make(chan struct{})
	ref := &fakeRefresher{fn: func(ctx context.Context, c domain.Credential) (Token, error) {
		assert.Equal(t, "r1", c.RefreshToken)
		<-release
		return Token{AccessToken: "new", Expiry: now.Add(time.Hour)}, nil
	}}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := proxy.Invoke(context.Background(), "u1", Request{
				Provider: domain.ProviderYouTube,
				Endpoint: "/videos",
				Query:    url.Values{"id": {"abc"}, "key": {"client-key"}},
			})
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Equal(t, callers, rec.count())

	for _, r := range rec.all() {
		assert.Equal(t, "/youtube/v3/videos", r.URL.Path)
		assert.Equal(t, "Bearer new", r.Header.Get("Authorization"))
		assert.Equal(t, "app-key", r.URL.Query().Get("key"))
		assert.Equal(t, "abc", r.URL.Query().Get("id"))
	}

	u, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", u.Credential(domain.ProviderYouTube).AccessToken)
}

func TestProxy_ValidTokenIsNotRefreshed(t *testing.T) {
	srv, rec := providerServer(t, http.StatusOK, "ok")
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "good", Expiry: now.Add(time.Hour),
	})
	ref := &fakeRefresher{fn: func(context.Context, domain.Credential) (Token, error) {
		return Token{}, errors.New("should not be called")
	}}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	resp, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "videos"})
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(0), ref.calls.Load())
	assert.Equal(t, "Bearer good", rec.last().Header.Get("Authorization"))
}

func TestProxy_SoundCloudUsesQueryToken(t *testing.T) {
	srv, rec := providerServer(t, http.StatusOK, "{}")
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderSoundCloud, domain.Credential{
		ClientID: "sc-1", AccessToken: "sc-token", Expiry: now.Add(-time.Hour),
	})
	ref := &fakeRefresher{fn: func(context.Context, domain.Credential) (Token, error) { return Token{}, nil }}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	resp, err := proxy.Invoke(context.Background(), "u1", Request{
		Provider: domain.ProviderSoundCloud,
		Method:   http.MethodPut,
		Endpoint: "/me/favorites/42",
		Query:    url.Values{"oauth_token": {"forged"}},
		Header:   http.Header{"Authorization": {"Bearer forged"}, "Accept": {"application/json"}},
	})
	require.NoError(t, err)
	resp.Body.Close()

	last := rec.last()
	assert.Equal(t, http.MethodPut, last.Method)
	assert.Equal(t, "/me/favorites/42", last.URL.Path)
	assert.Equal(t, "sc-token", last.URL.Query().Get("oauth_token"))
	assert.Empty(t, last.Header.Get("Authorization"))
	assert.Equal(t, "application/json", last.Header.Get("Accept"))
	assert.Equal(t, int32(0), ref.calls.Load(), "soundcloud tokens do not expire")
}

func TestProxy_CredentialErrors(t *testing.T) {
	tests := []struct {
		name string
		cred domain.Credential
		user domain.UserID
		want error
		code string
	}{
		{"not linked", domain.Credential{}, "u1", ErrNotLinked, "not_linked"},
		{"missing token", domain.Credential{ClientID: "yt-1", RefreshToken: "r"}, "u1", ErrMissingToken, "missing_token"},
		{"unknown user", domain.Credential{}, "ghost", ErrUnknownUser, "unknown_user"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, rec := providerServer(t, http.StatusOK, "")
			store := NewMemoryStore()
			seedUser(t, store, domain.ProviderYouTube, tc.cred)
			ref := &fakeRefresher{fn: func(context.Context, domain.Credential) (Token, error) { return Token{}, nil }}
			proxy := newTestProxy(store, ref, srv.URL, srv.URL)

			_, err := proxy.Invoke(context.Background(), tc.user, Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
			var ce *CredentialError
			require.ErrorAs(t, err, &ce)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.code, ce.Code())
			assert.Equal(t, 0, rec.count())
		})
	}
}

func TestProxy_RefreshFailure(t *testing.T) {
	srv, rec := providerServer(t, http.StatusOK, "")
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "old", RefreshToken: "revoked", Expiry: now.Add(-time.Minute),
	})
	ref := &fakeRefresher{fn: func(context.Context, domain.Credential) (Token, error) {
		return Token{}, errors.New("invalid_grant")
	}}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	_, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, 0, rec.count())

	u, _ := store.Get(context.Background(), "u1")
	assert.Equal(t, "old", u.Credential(domain.ProviderYouTube).AccessToken)
}

func TestProxy_RefreshTimeout(t *testing.T) {
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "old", RefreshToken: "r", Expiry: now.Add(-time.Minute),
	})
	ref := &fakeRefresher{fn: func(ctx context.Context, _ domain.Credential) (Token, error) {
		<-ctx.Done()
		return Token{}, ctx.Err()
	}}
	proxy := NewProxy(store, ref, []Provider{{Name: domain.ProviderYouTube, BaseURL: "http://127.0.0.1:1", Expiring: true}},
		WithNow(func() time.Time { return now }), WithRefreshTimeout(20*time.Millisecond))

	_, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProxy_AbandonedCallerDoesNotCancelRefresh(t *testing.T) {
	srv, _ := providerServer(t, http.StatusOK, "")
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "old", RefreshToken: "r", Expiry: now.Add(-time.Minute),
	})
	release := make(chan struct{})
	ref := &fakeRefresher{fn: func(ctx context.Context, _ domain.Credential) (Token, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return Token{}, ctx.Err()
		}
		return Token{AccessToken: "new"}, nil
	}}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	impatient, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := proxy.Invoke(impatient, "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
		done <- err
	}()
	patient := make(chan error, 1)
	go func() {
		resp, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
		if err == nil {
			resp.Body.Close()
		}
		patient <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(release)
	assert.NoError(t, <-patient)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestProxy_LostCompareAndSetAdoptsStoredToken(t *testing.T) {
	srv, rec := providerServer(t, http.StatusOK, "")
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "old", RefreshToken: "r", Expiry: now.Add(-time.Minute),
	})
	ref := &fakeRefresher{fn: func(ctx context.Context, _ domain.Credential) (Token, error) {
		// another server instance refreshes first
		_, err := store.UpdateAccessToken(ctx, "u1", domain.ProviderYouTube, "old", "theirs", now.Add(time.Hour))
		assert.NoError(t, err)
		return Token{AccessToken: "mine", Expiry: now.Add(time.Hour)}, nil
	}}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	resp, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer theirs", rec.last().Header.Get("Authorization"))
}

func TestProxy_ProviderErrorIsRelayed(t *testing.T) {
	srv, _ := providerServer(t, http.StatusForbidden, `{"error":"quotaExceeded"}`)
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{ClientID: "yt-1", AccessToken: "good"})
	ref := &fakeRefresher{fn: func(context.Context, domain.Credential) (Token, error) { return Token{}, nil }}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	_, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.Status)
	assert.JSONEq(t, `{"error":"quotaExceeded"}`, string(pe.Body))
	assert.Equal(t, "yes", pe.Header.Get("X-Provider"))
}

func TestProxy_UnknownProvider(t *testing.T) {
	proxy := NewProxy(NewMemoryStore(), nil, nil)
	_, err := proxy.Invoke(context.Background(), "u1", Request{Provider: "vimeo"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestProxy_RefreshWithoutExpiryGetsDefaultLifetime(t *testing.T) {
	srv, _ := providerServer(t, http.StatusOK, "ok")
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "old", RefreshToken: "r1", Expiry: now.Add(-time.Second),
	})
	ref := &fakeRefresher{fn: func(context.Context, domain.Credential) (Token, error) {
		return Token{AccessToken: "new"}, nil
	}}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	resp, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
	require.NoError(t, err)
	resp.Body.Close()

	u, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	c := u.Credential(domain.ProviderYouTube)
	assert.True(t, now.Add(DefaultTokenLifetime).Equal(c.Expiry))
	assert.False(t, c.Expired(now, 0))
}

func TestProxy_RotatedRefreshTokenIsStored(t *testing.T) {
	srv, _ := providerServer(t, http.StatusOK, "ok")
	store := NewMemoryStore()
	seedUser(t, store, domain.ProviderYouTube, domain.Credential{
		ClientID: "yt-1", AccessToken: "old", RefreshToken: "r1", Expiry: now.Add(-time.Second),
	})
	ref := &fakeRefresher{fn: func(context.Context, domain.Credential) (Token, error) {
		return Token{AccessToken: "new", RefreshToken: "r2", Expiry: now.Add(time.Hour)}, nil
	}}
	proxy := newTestProxy(store, ref, srv.URL, srv.URL)

	resp, err := proxy.Invoke(context.Background(), "u1", Request{Provider: domain.ProviderYouTube, Endpoint: "/videos"})
	require.NoError(t, err)
	resp.Body.Close()

	u, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	c := u.Credential(domain.ProviderYouTube)
	assert.Equal(t, "new", c.AccessToken)
	assert.Equal(t, "r2", c.RefreshToken)
}
