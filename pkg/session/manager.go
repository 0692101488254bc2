package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauth2client/pkg/cookie"
)

// Default session configuration.
const (
	DefaultCookieName = "__sid"
	DefaultMaxAge     = 30 * 24 * time.Hour
)

// Config holds the cookie and lifetime settings for a Manager.
type Config struct {
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"__sid"`
	Domain     string        `env:"SESSION_DOMAIN"`
	Path       string        `env:"SESSION_PATH" envDefault:"/"`
	MaxAge     time.Duration `env:"SESSION_MAX_AGE" envDefault:"720h"`
	Secure     bool          `env:"SESSION_SECURE" envDefault:"true"`
	Secret     string        `env:"SESSION_SECRET"`
}

// Options converts the config to manager options.
func (c Config) Options() []ManagerOption {
	return []ManagerOption{
		WithCookieName(c.CookieName),
		WithDomain(c.Domain),
		WithPath(c.Path),
		WithMaxAge(c.MaxAge),
		WithSecure(c.Secure),
		WithSecret(c.Secret),
	}
}

// Manager handles session lifecycle and cookie management.
type Manager struct {
	store      Store
	jar        *cookie.Jar
	logger     *slog.Logger
	now        func() time.Time
	cookieName string
	domain     string
	path       string
	secret     string
	maxAge     time.Duration
	sameSite   http.SameSite
	secure     bool
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// NewManager creates a new Manager with the given store and options.
// Returns an error if the signing secret is too short.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		store:      store,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
		cookieName: DefaultCookieName,
		maxAge:     DefaultMaxAge,
		path:       "/",
		sameSite:   http.SameSiteLaxMode,
		secure:     true,
	}
	for _, opt := range opts {
		opt(m)
	}

	jar, err := cookie.New(m.cookieName,
		cookie.WithSecret(m.secret),
		cookie.WithDomain(m.domain),
		cookie.WithPath(m.path),
		cookie.WithSecure(m.secure),
		cookie.WithSameSite(m.sameSite),
	)
	if err != nil {
		return nil, fmt.Errorf("session cookie: %w", err)
	}
	m.jar = jar
	return m, nil
}

// WithCookieName sets the session cookie name.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) {
		if name != "" {
			m.cookieName = name
		}
	}
}

// WithMaxAge sets the session lifetime, which is also the persistent cookie max age.
func WithMaxAge(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithDomain sets the session cookie domain.
func WithDomain(domain string) ManagerOption {
	return func(m *Manager) {
		m.domain = domain
	}
}

// WithPath sets the session cookie path.
func WithPath(path string) ManagerOption {
	return func(m *Manager) {
		if path != "" {
			m.path = path
		}
	}
}

// WithSecure sets the session cookie Secure flag.
func WithSecure(secure bool) ManagerOption {
	return func(m *Manager) {
		m.secure = secure
	}
}

// WithSameSite sets the session cookie SameSite attribute.
func WithSameSite(sameSite http.SameSite) ManagerOption {
	return func(m *Manager) {
		m.sameSite = sameSite
	}
}

// WithSecret signs the session cookie so forged tokens are rejected before
// reaching the store. Empty leaves the cookie unsigned.
func WithSecret(secret string) ManagerOption {
	return func(m *Manager) {
		m.secret = secret
	}
}

// WithLogger sets the logger for session events.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Load loads an existing session from the request cookie.
// Returns nil, nil if no session cookie exists and ErrInvalidToken if the
// cookie signature does not verify.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.jar.Read(r)
	switch {
	case errors.Is(err, cookie.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return m.store.Get(ctx, token)
}

// New creates an unsaved session with a fresh anti-forgery token.
// It is persisted on the first Commit.
func (m *Manager) New(r *http.Request) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	csrf, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	sess := New(uuid.NewString(), token, m.now().Add(m.maxAge))
	sess.CSRFToken = csrf
	if r != nil {
		sess.IP = remoteIP(r)
		sess.UserAgent = r.UserAgent()
	}
	return sess, nil
}

// Commit persists pending changes and writes the session cookie.
// Clean sessions are left untouched.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil || !sess.IsDirty() {
		return nil
	}

	now := m.now()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(m.maxAge)

	var err error
	if sess.IsNew() {
		err = m.store.Create(ctx, sess)
	} else {
		err = m.store.Update(ctx, sess)
	}
	if err != nil {
		return err
	}

	sess.ClearNew()
	sess.ClearDirty()
	m.writeCookie(w, sess)
	return nil
}

// RotateToken replaces the session token. The previous token stops working
// once the session is committed.
func (m *Manager) RotateToken(sess *Session) error {
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate session token: %w", err)
	}
	sess.Token = token
	sess.MarkDirty()
	return nil
}

// RegenerateCSRF issues a new anti-forgery token.
func (m *Manager) RegenerateCSRF(sess *Session) error {
	csrf, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate csrf token: %w", err)
	}
	sess.CSRFToken = csrf
	sess.MarkDirty()
	return nil
}

// Destroy deletes the session from the store and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	m.clearCookie(w)
	if sess == nil || sess.IsNew() {
		return nil
	}
	return m.store.Delete(ctx, sess.ID)
}

// Middleware attaches the request's session to the context. Requests without
// a valid session get a fresh unsaved one.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := m.Load(ctx, r)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired), errors.Is(err, ErrInvalidToken):
			sess = nil
		default:
			m.logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
			sess = nil
		}

		if sess == nil {
			sess, err = m.New(r)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to create session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(NewContext(ctx, sess)))
	})
}

func (m *Manager) writeCookie(w http.ResponseWriter, sess *Session) {
	maxAge := 0
	if sess.Persistent {
		maxAge = int(m.maxAge / time.Second)
	}
	m.jar.Write(w, sess.Token, maxAge)
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	m.jar.Clear(w)
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok && sess != nil
}

// generateToken creates a cryptographically secure random token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
