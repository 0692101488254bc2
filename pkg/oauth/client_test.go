package oauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauth2client/pkg/oauth"
	"github.com/dmitrymomot/oauth2client/pkg/state"
)

// recordingStore wraps a Memory store and records writes.
type recordingStore struct {
	*state.Memory
	mu   sync.Mutex
	puts map[string]time.Duration
	err  error
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	m := state.NewMemory(state.WithCleanupInterval(0))
	t.Cleanup(func() { _ = m.Close() })
	return &recordingStore{Memory: m, puts: make(map[string]time.Duration)}
}

func (s *recordingStore) Put(ctx context.Context, key string, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.puts[key] = ttl
	s.mu.Unlock()
	return s.Memory.Put(ctx, key, ttl)
}

func (s *recordingStore) Forget(ctx context.Context, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.Memory.Forget(ctx, key)
}

type fakeProvider struct {
	*httptest.Server
	tokenCalls    atomic.Int32
	userInfoCalls atomic.Int32

	mu         sync.Mutex
	lastForm   url.Values
	lastAccept string
	lastAuth   string

	tokenStatus    int
	tokenBody      string
	userInfoStatus int
	userInfoBody   string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{
		tokenStatus:    http.StatusOK,
		tokenBody:      `{"access_token":"at-1","refresh_token":"rt-1","token_type":"bearer","expires_in":3600}`,
		userInfoStatus: http.StatusOK,
		userInfoBody:   `{"id":"oauth-123","email":"test@example.com","name":"John Doe"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		_ = r.ParseForm()
		p.mu.Lock()
		p.lastForm = r.PostForm
		p.lastAccept = r.Header.Get("Accept")
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		_, _ = w.Write([]byte(p.tokenBody))
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		p.userInfoCalls.Add(1)
		p.mu.Lock()
		p.lastAuth = r.Header.Get("Authorization")
		p.lastAccept = r.Header.Get("Accept")
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.userInfoStatus)
		_, _ = w.Write([]byte(p.userInfoBody))
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) config() oauth.Config {
	return oauth.Config{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURI:      "/oauth2/callback",
		BaseURL:          "https://app.example.com",
		AuthorizationURL: p.URL + "/authorize",
		TokenURL:         p.URL + "/token",
		UserInfoURL:      p.URL + "/user",
		Scopes:           []string{"openid", "profile", "email"},
	}
}

func newTestClient(t *testing.T, p *fakeProvider) (*oauth.Client, *recordingStore) {
	t.Helper()

	states := newRecordingStore(t)
	c, err := oauth.New(p.config(), states, oauth.WithHTTPClient(p.Client()))
	require.NoError(t, err)
	return c, states
}

func TestNew(t *testing.T) {
	t.Parallel()

	valid := oauth.Config{
		ClientID:         "id",
		ClientSecret:     "secret",
		AuthorizationURL: "https://id.example.com/authorize",
		TokenURL:         "https://id.example.com/token",
		UserInfoURL:      "https://id.example.com/user",
	}
	states := state.NewMemory(state.WithCleanupInterval(0))
	t.Cleanup(func() { _ = states.Close() })

	tests := []struct {
		name    string
		mutate  func(*oauth.Config)
		states  state.Store
		wantErr error
	}{
		{name: "missing client id", mutate: func(c *oauth.Config) { c.ClientID = "" }, states: states, wantErr: oauth.ErrMissingClientID},
		{name: "missing client secret", mutate: func(c *oauth.Config) { c.ClientSecret = "" }, states: states, wantErr: oauth.ErrMissingClientSecret},
		{name: "missing token url", mutate: func(c *oauth.Config) { c.TokenURL = "" }, states: states, wantErr: oauth.ErrMissingEndpoint},
		{name: "missing user info url", mutate: func(c *oauth.Config) { c.UserInfoURL = "" }, states: states, wantErr: oauth.ErrMissingEndpoint},
		{name: "missing state store", mutate: func(*oauth.Config) {}, states: nil, wantErr: oauth.ErrMissingStateStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.mutate(&cfg)

			c, err := oauth.New(cfg, tt.states)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, c)
		})
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		cfg := valid
		cfg.BaseURL = "https://app.example.com/"
		cfg.RedirectURI = "/oauth2/callback"

		c, err := oauth.New(cfg, states)
		require.NoError(t, err)
		assert.Equal(t, "https://app.example.com/oauth2/callback", c.RedirectURI())
	})
}

func TestNormalizeRedirectURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw, base, want string
	}{
		{raw: "https://other.example.com/cb", base: "https://app.example.com", want: "https://other.example.com/cb"},
		{raw: "http://localhost/cb", base: "https://app.example.com", want: "http://localhost/cb"},
		{raw: "/oauth2/callback", base: "https://app.example.com", want: "https://app.example.com/oauth2/callback"},
		{raw: "/oauth2/callback", base: "https://app.example.com/", want: "https://app.example.com/oauth2/callback"},
		{raw: "oauth2/callback", base: "https://app.example.com", want: "https://app.example.com/oauth2/callback"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, oauth.NormalizeRedirectURI(tt.raw, tt.base))
		})
	}
}

func TestClient_AuthorizationURL(t *testing.T) {
	t.Parallel()

	t.Run("generated state is registered once with ten minute ttl", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, states := newTestClient(t, p)

		raw, err := c.AuthorizationURL(context.Background(), "")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		q := u.Query()

		st := q.Get("state")
		require.Len(t, st, 43)
		require.Len(t, states.puts, 1)
		assert.Equal(t, 600*time.Second, states.puts[state.Key(st)])

		assert.Equal(t, p.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "https://app.example.com/oauth2/callback", q.Get("redirect_uri"))
		assert.Equal(t, "openid profile email", q.Get("scope"))
		assert.Zero(t, p.tokenCalls.Load()+p.userInfoCalls.Load())
	})

	t.Run("explicit state is used verbatim", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, states := newTestClient(t, p)

		raw, err := c.AuthorizationURL(context.Background(), "given-state")
		require.NoError(t, err)
		assert.Contains(t, raw, "state=given-state")

		ok, err := states.Has(context.Background(), state.Key("given-state"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("generated states differ", func(t *testing.T) {
		t.Parallel()

		a, err := oauth.GenerateState()
		require.NoError(t, err)
		b, err := oauth.GenerateState()
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, states := newTestClient(t, p)
		states.err = errors.New("connection refused")

		_, err := c.AuthorizationURL(context.Background(), "")
		require.ErrorIs(t, err, oauth.ErrStateStore)
	})
}

func TestClient_ExchangeCode(t *testing.T) {
	t.Parallel()

	issue := func(t *testing.T, c *oauth.Client) string {
		t.Helper()
		raw, err := c.AuthorizationURL(context.Background(), "")
		require.NoError(t, err)
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u.Query().Get("state")
	}

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, _ := newTestClient(t, p)
		st := issue(t, c)

		before := time.Now()
		tokens, err := c.ExchangeCode(context.Background(), "auth-code", st)
		require.NoError(t, err)

		assert.Equal(t, "at-1", tokens.AccessToken)
		assert.Equal(t, "rt-1", tokens.RefreshToken)
		assert.Equal(t, "Bearer", tokens.TokenType)
		assert.Equal(t, int64(3600), tokens.ExpiresIn)
		require.NotNil(t, tokens.ExpiresAt)
		assert.WithinDuration(t, before.Add(time.Hour), *tokens.ExpiresAt, 5*time.Second)

		p.mu.Lock()
		defer p.mu.Unlock()
		assert.Equal(t, "authorization_code", p.lastForm.Get("grant_type"))
		assert.Equal(t, "auth-code", p.lastForm.Get("code"))
		assert.Equal(t, "https://app.example.com/oauth2/callback", p.lastForm.Get("redirect_uri"))
		assert.Equal(t, "client-id", p.lastForm.Get("client_id"))
		assert.Equal(t, "client-secret", p.lastForm.Get("client_secret"))
		assert.Equal(t, "application/json", p.lastAccept)
	})

	t.Run("second use of the same state fails", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, _ := newTestClient(t, p)
		st := issue(t, c)

		_, err := c.ExchangeCode(context.Background(), "code", st)
		require.NoError(t, err)

		_, err = c.ExchangeCode(context.Background(), "code", st)
		require.ErrorIs(t, err, oauth.ErrInvalidState)
		assert.Equal(t, int32(1), p.tokenCalls.Load())
	})

	t.Run("unknown state makes no network call", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, _ := newTestClient(t, p)

		for _, st := range []string{"never-issued", ""} {
			_, err := c.ExchangeCode(context.Background(), "code", st)
			require.ErrorIs(t, err, oauth.ErrInvalidState)
		}
		assert.Zero(t, p.tokenCalls.Load())
	})

	t.Run("expired state makes no network call", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		now := time.Now()
		states := state.NewMemory(state.WithCleanupInterval(0), state.WithClock(func() time.Time { return now }))
		t.Cleanup(func() { _ = states.Close() })

		c, err := oauth.New(p.config(), states, oauth.WithHTTPClient(p.Client()))
		require.NoError(t, err)

		st := issue(t, c)
		now = now.Add(601 * time.Second)

		_, err = c.ExchangeCode(context.Background(), "code", st)
		require.ErrorIs(t, err, oauth.ErrInvalidState)
		assert.Zero(t, p.tokenCalls.Load())
	})

	t.Run("state is consumed even when exchange fails", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		p.tokenStatus = http.StatusBadRequest
		p.tokenBody = `{"error":"invalid_grant"}`
		c, _ := newTestClient(t, p)
		st := issue(t, c)

		_, err := c.ExchangeCode(context.Background(), "code", st)
		require.ErrorIs(t, err, oauth.ErrTokenExchangeFailed)

		_, err = c.ExchangeCode(context.Background(), "code", st)
		require.ErrorIs(t, err, oauth.ErrInvalidState)
		assert.Equal(t, int32(1), p.tokenCalls.Load())
	})

	t.Run("missing access token", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		p.tokenBody = `{"token_type":"bearer"}`
		c, _ := newTestClient(t, p)

		_, err := c.ExchangeCode(context.Background(), "code", issue(t, c))
		require.ErrorIs(t, err, oauth.ErrTokenExchangeFailed)
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		p.tokenStatus = http.StatusInternalServerError
		p.tokenBody = `oops`
		c, _ := newTestClient(t, p)

		_, err := c.ExchangeCode(context.Background(), "code", issue(t, c))
		require.ErrorIs(t, err, oauth.ErrTokenExchangeFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		t.Cleanup(slow.Close)

		p := newFakeProvider(t)
		cfg := p.config()
		cfg.TokenURL = slow.URL
		states := newRecordingStore(t)
		c, err := oauth.New(cfg, states, oauth.WithTimeout(50*time.Millisecond))
		require.NoError(t, err)

		_, err = c.ExchangeCode(context.Background(), "code", issue(t, c))
		require.ErrorIs(t, err, oauth.ErrTokenExchangeFailed)
	})

	t.Run("concurrent callbacks exchange once", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, _ := newTestClient(t, p)
		st := issue(t, c)

		var ok, invalid atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Go(func() {
				_, err := c.ExchangeCode(context.Background(), "code", st)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, oauth.ErrInvalidState):
					invalid.Add(1)
				}
			})
		}
		wg.Wait()

		assert.Equal(t, int32(1), ok.Load())
		assert.Equal(t, int32(7), invalid.Load())
		assert.Equal(t, int32(1), p.tokenCalls.Load())
	})

	t.Run("state store failure", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, states := newTestClient(t, p)
		st := issue(t, c)
		states.err = errors.New("down")

		_, err := c.ExchangeCode(context.Background(), "code", st)
		require.ErrorIs(t, err, oauth.ErrStateStore)
		assert.Zero(t, p.tokenCalls.Load())
	})
}

func TestClient_RefreshToken(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		p.tokenBody = `{"access_token":"at-2","refresh_token":"rt-2","expires_in":60}`
		c, _ := newTestClient(t, p)

		tokens, err := c.RefreshToken(context.Background(), "rt-1")
		require.NoError(t, err)
		assert.Equal(t, "at-2", tokens.AccessToken)
		assert.Equal(t, "rt-2", tokens.RefreshToken)
		assert.Equal(t, "Bearer", tokens.TokenType)

		p.mu.Lock()
		defer p.mu.Unlock()
		assert.Equal(t, "refresh_token", p.lastForm.Get("grant_type"))
		assert.Equal(t, "rt-1", p.lastForm.Get("refresh_token"))
		assert.Equal(t, "client-id", p.lastForm.Get("client_id"))
		assert.Equal(t, "client-secret", p.lastForm.Get("client_secret"))
	})

	t.Run("empty refresh token", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, _ := newTestClient(t, p)

		_, err := c.RefreshToken(context.Background(), "")
		require.ErrorIs(t, err, oauth.ErrTokenRefreshFailed)
		assert.Zero(t, p.tokenCalls.Load())
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		p.tokenStatus = http.StatusUnauthorized
		p.tokenBody = `{"error":"invalid_grant"}`
		c, _ := newTestClient(t, p)

		_, err := c.RefreshToken(context.Background(), "rt-1")
		require.ErrorIs(t, err, oauth.ErrTokenRefreshFailed)
		require.NotErrorIs(t, err, oauth.ErrTokenExchangeFailed)
	})
}

func TestClient_FetchUserInfo(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		p.userInfoBody = `{"id":12345678901234567890,"email":"test@example.com","name":"John Doe","email_verified":true,"avatar":null}`
		c, _ := newTestClient(t, p)

		profile, err := c.FetchUserInfo(context.Background(), "at-1")
		require.NoError(t, err)

		assert.Equal(t, "12345678901234567890", profile.ID())
		assert.Equal(t, "test@example.com", profile.Email())
		assert.True(t, profile.Bool("email_verified"))
		assert.False(t, profile.Has("avatar"))
		assert.IsType(t, json.Number(""), profile["id"])

		p.mu.Lock()
		defer p.mu.Unlock()
		assert.Equal(t, "Bearer at-1", p.lastAuth)
		assert.Equal(t, "application/json", p.lastAccept)
	})

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "non-2xx", status: http.StatusUnauthorized, body: `{"error":"invalid_token"}`},
		{name: "not json", status: http.StatusOK, body: `<html></html>`},
		{name: "json array", status: http.StatusOK, body: `[1,2,3]`},
		{name: "json string", status: http.StatusOK, body: `"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newFakeProvider(t)
			p.userInfoStatus = tt.status
			p.userInfoBody = tt.body
			c, _ := newTestClient(t, p)

			_, err := c.FetchUserInfo(context.Background(), "at-1")
			require.ErrorIs(t, err, oauth.ErrUserInfoFetchFailed)
		})
	}

	t.Run("empty access token", func(t *testing.T) {
		t.Parallel()

		p := newFakeProvider(t)
		c, _ := newTestClient(t, p)

		_, err := c.FetchUserInfo(context.Background(), "")
		require.ErrorIs(t, err, oauth.ErrUserInfoFetchFailed)
		assert.Zero(t, p.userInfoCalls.Load())
	})
}
