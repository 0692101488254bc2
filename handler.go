package oauth2client

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dmitrymomot/oauth2client/internal/httpx"
	"github.com/dmitrymomot/oauth2client/internal/ratelimit"
	"github.com/dmitrymomot/oauth2client/pkg/identity"
	"github.com/dmitrymomot/oauth2client/pkg/instrumentation"
	"github.com/dmitrymomot/oauth2client/pkg/logger"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
	"github.com/dmitrymomot/oauth2client/pkg/session"
)

const (
	// IntendedURLKey is the session key holding the post-login destination.
	IntendedURLKey = "oauth2_intended_url"

	// CSRFHeader and CSRFField carry the anti-forgery token on logout.
	CSRFHeader = "X-CSRF-Token"
	CSRFField  = "_token"

	msgLoginSuccess  = "Successfully authenticated via SSO"
	msgLogoutSuccess = "Successfully logged out"

	tracerScope = "handler"
)

// ProtocolClient is the provider-facing part of the flow, implemented by *oauth.Client.
type ProtocolClient interface {
	AuthorizationURL(ctx context.Context, state string) (string, error)
	ExchangeCode(ctx context.Context, code, state string) (*oauth.TokenSet, error)
	FetchUserInfo(ctx context.Context, accessToken string) (oauth.Profile, error)
}

// IdentityReconciler resolves a provider profile to a local user, implemented by *identity.Reconciler.
type IdentityReconciler interface {
	Reconcile(ctx context.Context, profile oauth.Profile) (identity.User, error)
}

// TokenKeeper persists provider tokens, implemented by *identity.TokenService.
type TokenKeeper interface {
	StoreTokens(ctx context.Context, userID string, ts *oauth.TokenSet) error
	RevokeTokens(ctx context.Context, userID string) error
}

// Dependencies are the collaborators a Handler drives. Tokens is optional.
type Dependencies struct {
	Client     ProtocolClient
	Reconciler IdentityReconciler
	Tokens     TokenKeeper
	Sessions   *session.Manager
}

// Handler serves the authorization start, callback and logout endpoints.
type Handler struct {
	cfg        Config
	client     ProtocolClient
	reconciler IdentityReconciler
	tokens     TokenKeeper
	sessions   *session.Manager
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	inst       *instrumentation.Instrumentation
}

// New creates a Handler.
func New(cfg Config, deps Dependencies, opts ...Option) (*Handler, error) {
	switch {
	case deps.Client == nil:
		return nil, fmt.Errorf("%w: protocol client", ErrMissingDependency)
	case deps.Reconciler == nil:
		return nil, fmt.Errorf("%w: identity reconciler", ErrMissingDependency)
	case deps.Sessions == nil:
		return nil, fmt.Errorf("%w: session manager", ErrMissingDependency)
	}

	h := &Handler{
		cfg:        cfg,
		client:     deps.Client,
		reconciler: deps.Reconciler,
		tokens:     deps.Tokens,
		sessions:   deps.Sessions,
		logger:     logger.NewNope(),
		inst:       instrumentation.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if cfg.StartRateLimit > 0 {
		h.limiter = ratelimit.New(cfg.StartRateLimit, cfg.StartRateBurst, ratelimit.WithLogger(h.logger))
	}

	return h, nil
}

// Routes mounts the login endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.sessions.Middleware)

		r.Get(h.cfg.startPath(), h.Start)
		r.Get(h.cfg.callbackPath(), h.Callback)
		r.With(h.RequireAuth).Post(h.cfg.logoutPath(), h.Logout)

		if h.cfg.SSOLoginEnabled && h.cfg.SSOLoginRoute != "" {
			r.Get(h.cfg.SSOLoginRoute, h.SSOLogin)
		}
	})
}

// RunLimiterCleanup evicts idle rate limiter buckets until ctx is done.
func (h *Handler) RunLimiterCleanup(ctx context.Context) {
	if h.limiter == nil {
		return
	}
	h.limiter.Run(ctx, ratelimit.DefaultIdleTTL/6, ratelimit.DefaultIdleTTL)
}

// Start remembers where the caller wants to end up and redirects to the provider.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.inst.StartSpan(r.Context(), tracerScope, "oauth2client.Start")
	defer span.End()

	if h.limiter != nil && !h.limiter.Allow(httpx.ClientIP(r)) {
		h.inst.Metrics().RecordRateLimitExceeded(ctx, "authorization_start")
		h.logger.WarnContext(ctx, "authorization start rate limited", slog.String("ip", httpx.ClientIP(r)))
		w.Header().Set("Retry-After", "1")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	sess, err := h.currentSession(r)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if target := r.URL.Query().Get("redirect"); target != "" {
		if safe := httpx.SafeRedirect(target, r.Host); safe != "" {
			sess.SetValue(IntendedURLKey, safe)
		}
	} else if !sess.IsAuthenticated() {
		if safe := httpx.SafeRedirect(r.Referer(), r.Host); safe != "" {
			sess.SetValue(IntendedURLKey, safe)
		}
	}

	authURL, err := h.client.AuthorizationURL(ctx, "")
	if err != nil {
		instrumentation.RecordError(span, err)
		h.fail(ctx, w, r, sess, &Failure{Kind: FailureInternal, Err: err})
		return
	}

	if err := h.sessions.Commit(ctx, w, sess); err != nil {
		h.logger.WarnContext(ctx, "failed to save intended url", slog.Any("error", err))
	}

	h.inst.Metrics().RecordAuthorizationStarted(ctx)
	instrumentation.SetOK(span)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// SSOLogin redirects to Start, keeping the redirect parameter.
func (h *Handler) SSOLogin(w http.ResponseWriter, r *http.Request) {
	target := h.cfg.startPath()
	if redirect := r.URL.Query().Get("redirect"); redirect != "" {
		target += "?" + url.Values{"redirect": {redirect}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback completes the authorization code flow and logs the user in.
// Every failure ends in a redirect to the login route with a flashed message.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.inst.StartSpan(r.Context(), tracerScope, "oauth2client.Callback")
	defer span.End()

	sess, err := h.currentSession(r)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
		http.Redirect(w, r, h.cfg.loginRoute(), http.StatusFound)
		return
	}

	res := h.Process(ctx, sess, r.URL.Query())
	if !res.OK() {
		span.SetAttributes(attribute.String(instrumentation.AttrOutcome, res.Failure.Kind.String()))
		instrumentation.RecordError(span, res.Failure)
		h.inst.Metrics().RecordCallback(ctx, res.Failure.Kind.String())
		h.fail(ctx, w, r, sess, res.Failure)
		return
	}

	target := h.cfg.homeRoute()
	if v, ok := sess.Pull(IntendedURLKey); ok {
		if s, ok := v.(string); ok && httpx.SafeRedirect(s, r.Host) != "" {
			target = s
		}
	}
	sess.Flash(session.FlashSuccess, msgLoginSuccess)

	if err := h.sessions.Commit(ctx, w, sess); err != nil {
		sess.Authenticate("", false)
		instrumentation.RecordError(span, err)
		h.inst.Metrics().RecordCallback(ctx, FailureInternal.String())
		h.fail(ctx, w, r, sess, &Failure{Kind: FailureInternal, Err: errors.Join(ErrSessionFailed, err)})
		return
	}

	ctx = logger.WithUserID(ctx, res.User.UserID())
	h.inst.Metrics().RecordCallback(ctx, "success")
	span.SetAttributes(attribute.String(instrumentation.AttrOutcome, "success"))
	instrumentation.SetOK(span)
	h.logger.InfoContext(ctx, "user authenticated via oauth2")

	http.Redirect(w, r, target, http.StatusFound)
}

// Process runs the callback chain against sess: exchange, user info,
// reconciliation, session establishment and best-effort token storage.
// The session is modified but not committed.
func (h *Handler) Process(ctx context.Context, sess *session.Session, q url.Values) Result {
	if providerErr := q.Get("error"); providerErr != "" {
		return Result{Failure: &Failure{Kind: FailureProviderError, Detail: providerErr, Err: ErrProviderError}}
	}

	code, st := q.Get("code"), q.Get("state")
	if code == "" || st == "" {
		return failed(FailureMissingParameters, ErrMissingCallbackParameters)
	}

	tokens, err := h.client.ExchangeCode(ctx, code, st)
	if err != nil {
		return failed(classify(err), err)
	}

	profile, err := h.client.FetchUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return failed(classify(err), err)
	}

	user, err := h.reconciler.Reconcile(ctx, profile)
	if err != nil {
		return failed(classify(err), err)
	}

	if err := h.sessions.RotateToken(sess); err != nil {
		return failed(FailureInternal, errors.Join(ErrSessionFailed, err))
	}
	sess.Authenticate(user.UserID(), h.cfg.RememberMe)

	if h.tokens != nil {
		if err := h.tokens.StoreTokens(ctx, user.UserID(), tokens); err != nil {
			h.logger.ErrorContext(logger.WithUserID(ctx, user.UserID()), "failed to store oauth2 tokens",
				slog.Any("error", err),
			)
		}
	}

	return Result{User: user, Tokens: tokens}
}

// Logout revokes stored tokens when configured, destroys the session and
// starts a fresh anonymous one with a new anti-forgery token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.currentSession(r)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
		http.Redirect(w, r, h.cfg.loginRoute(), http.StatusFound)
		return
	}

	if !validCSRF(r, sess) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	if h.cfg.RevokeOnLogout && h.tokens != nil && sess.IsAuthenticated() {
		if err := h.tokens.RevokeTokens(ctx, sess.UserID); err != nil {
			h.logger.WarnContext(ctx, "failed to revoke oauth2 tokens", slog.Any("error", err))
		}
	}

	if err := h.sessions.Destroy(ctx, w, sess); err != nil {
		h.logger.ErrorContext(ctx, "failed to destroy session", slog.Any("error", err))
	}

	fresh, err := h.sessions.New(r)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to start session", slog.Any("error", err))
		http.Redirect(w, r, h.cfg.loginRoute(), http.StatusFound)
		return
	}
	fresh.Flash(session.FlashSuccess, msgLogoutSuccess)
	if err := h.sessions.Commit(ctx, w, fresh); err != nil {
		h.logger.ErrorContext(ctx, "failed to save session", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "user logged out")
	http.Redirect(w, r, h.cfg.loginRoute(), http.StatusFound)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *session.Session, f *Failure) {
	attrs := []any{slog.String("kind", f.Kind.String()), slog.Any("error", f.Err)}
	if f.Kind.Internal() {
		h.logger.ErrorContext(ctx, "oauth2 login failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "oauth2 login failed", attrs...)
	}

	sess.Flash(session.FlashError, f.Message())
	if err := h.sessions.Commit(ctx, w, sess); err != nil {
		h.logger.ErrorContext(ctx, "failed to save session", slog.Any("error", err))
	}

	http.Redirect(w, r, h.cfg.loginRoute(), http.StatusFound)
}

// currentSession returns the session attached by the session middleware,
// loading or starting one when the handler is mounted without it.
func (h *Handler) currentSession(r *http.Request) (*session.Session, error) {
	if sess, ok := session.FromContext(r.Context()); ok {
		return sess, nil
	}

	sess, err := h.sessions.Load(r.Context(), r)
	switch {
	case err == nil && sess != nil:
		return sess, nil
	case err == nil,
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrInvalidToken):
		return h.sessions.New(r)
	default:
		return nil, errors.Join(ErrSessionFailed, err)
	}
}

func validCSRF(r *http.Request, sess *session.Session) bool {
	token := r.Header.Get(CSRFHeader)
	if token == "" {
		token = r.PostFormValue(CSRFField)
	}
	if token == "" || sess.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(sess.CSRFToken)) == 1
}
