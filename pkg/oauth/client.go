package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/oauth2client/pkg/instrumentation"
	"github.com/dmitrymomot/oauth2client/pkg/logger"
	"github.com/dmitrymomot/oauth2client/pkg/state"
)

const (
	stateBytes = 32

	opExchange = "token_exchange"
	opRefresh  = "token_refresh"
	opUserInfo = "user_info"
)

// Client runs the authorization code grant against a single provider.
// It is safe for concurrent use.
type Client struct {
	config      *oauth2.Config
	userInfoURL string
	states      state.Store
	httpClient  *http.Client
	inst        *instrumentation.Instrumentation
	logger      *slog.Logger
	timeout     time.Duration
}

// New validates cfg and returns a Client. RedirectURI is normalized against BaseURL.
func New(cfg Config, states state.Store, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if states == nil {
		return nil, ErrMissingStateStore
	}

	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	if o.inst == nil {
		o.inst = instrumentation.Noop()
	}
	if o.logger == nil {
		o.logger = logger.NewNope()
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  NormalizeRedirectURI(cfg.RedirectURI, cfg.BaseURL),
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		states:      states,
		httpClient:  withAcceptJSON(o.httpClient),
		inst:        o.inst,
		logger:      o.logger,
		timeout:     o.timeout,
	}, nil
}

// RedirectURI returns the absolute callback URL sent to the provider.
func (c *Client) RedirectURI() string {
	return c.config.RedirectURL
}

// AuthorizationURL registers state in the state store and returns the provider's
// authorization URL. An empty state is replaced by a freshly generated one.
func (c *Client) AuthorizationURL(ctx context.Context, st string) (string, error) {
	if st == "" {
		var err error
		if st, err = GenerateState(); err != nil {
			return "", errors.Join(ErrStateStore, err)
		}
	}

	if err := c.states.Put(ctx, state.Key(st), state.DefaultTTL); err != nil {
		return "", errors.Join(ErrStateStore, err)
	}

	return c.config.AuthCodeURL(st), nil
}

// ExchangeCode consumes st and trades code for tokens.
// The state is removed before any network call, so a replayed callback fails with
// ErrInvalidState even when the first exchange attempt failed.
func (c *Client) ExchangeCode(ctx context.Context, code, st string) (*TokenSet, error) {
	if st == "" {
		return nil, ErrInvalidState
	}

	existed, err := c.states.Forget(ctx, state.Key(st))
	if err != nil {
		return nil, errors.Join(ErrStateStore, err)
	}
	if !existed {
		return nil, ErrInvalidState
	}

	ctx, span := c.inst.StartSpan(ctx, "provider", "oauth.ExchangeCode",
		attribute.String(instrumentation.AttrGrantType, "authorization_code"))
	defer span.End()

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	start := time.Now()
	tok, err := c.config.Exchange(ctx, code)
	c.recordCall(ctx, opExchange, start, err)
	if err != nil {
		instrumentation.RecordError(span, err)
		c.logProviderError(ctx, opExchange, err)
		return nil, errors.Join(ErrTokenExchangeFailed, err)
	}

	ts := newTokenSet(tok)
	span.SetAttributes(
		attribute.String(instrumentation.AttrTokenType, ts.TokenType),
		attribute.Bool(instrumentation.AttrRefreshIssued, ts.HasRefreshToken()),
	)
	instrumentation.SetOK(span)

	return ts, nil
}

// RefreshToken redeems a refresh token for a new token set.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, errors.Join(ErrTokenRefreshFailed, errors.New("empty refresh token"))
	}

	ctx, span := c.inst.StartSpan(ctx, "provider", "oauth.RefreshToken",
		attribute.String(instrumentation.AttrGrantType, "refresh_token"))
	defer span.End()

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	start := time.Now()
	tok, err := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	c.recordCall(ctx, opRefresh, start, err)
	if err != nil {
		instrumentation.RecordError(span, err)
		c.logProviderError(ctx, opRefresh, err)
		return nil, errors.Join(ErrTokenRefreshFailed, err)
	}

	instrumentation.SetOK(span)
	return newTokenSet(tok), nil
}

// FetchUserInfo retrieves the profile of the token's owner.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (Profile, error) {
	if accessToken == "" {
		return nil, errors.Join(ErrUserInfoFetchFailed, errors.New("empty access token"))
	}

	ctx, span := c.inst.StartSpan(ctx, "provider", "oauth.FetchUserInfo")
	defer span.End()

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	start := time.Now()
	profile, status, err := c.fetchUserInfo(ctx, accessToken)
	c.inst.Metrics().RecordProviderCall(ctx, opUserInfo, status, msSince(start), err)
	span.SetAttributes(attribute.Int(instrumentation.AttrStatusCode, status))
	if err != nil {
		instrumentation.RecordError(span, err)
		c.logger.WarnContext(ctx, "oauth2 user info request failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		return nil, errors.Join(ErrUserInfoFetchFailed, err)
	}

	instrumentation.SetOK(span)
	return profile, nil
}

func (c *Client) fetchUserInfo(ctx context.Context, accessToken string) (Profile, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, resp.StatusCode, fmt.Errorf("userinfo request failed: status=%d body=%s", resp.StatusCode, body)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode userinfo: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, resp.StatusCode, fmt.Errorf("decode userinfo: expected JSON object, got %T", raw)
	}

	return Profile(obj), resp.StatusCode, nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) recordCall(ctx context.Context, op string, start time.Time, err error) {
	status := http.StatusOK
	if err != nil {
		status = 0
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status = re.Response.StatusCode
		}
	}
	c.inst.Metrics().RecordProviderCall(ctx, op, status, msSince(start), err)
}

func (c *Client) logProviderError(ctx context.Context, op string, err error) {
	attrs := []any{slog.String("operation", op)}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		attrs = append(attrs, slog.String("provider_error", re.ErrorCode))
		if re.Response != nil {
			attrs = append(attrs, slog.Int("status", re.Response.StatusCode))
		}
	} else {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	c.logger.WarnContext(ctx, "oauth2 token request failed", attrs...)
}

// GenerateState returns 32 random bytes encoded as unpadded base64url (43 characters).
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
