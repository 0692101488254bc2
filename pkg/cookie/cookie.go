package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// Errors.
var (
	ErrNotFound  = errors.New("cookie: not found")
	ErrBadSecret = errors.New("cookie: secret must be 32+ bytes")
	ErrBadSig    = errors.New("cookie: invalid signature")
)

// MinSecretLen is the shortest accepted signing secret.
const MinSecretLen = 32

// Jar reads and writes a single named cookie with fixed attributes.
// With a secret configured, values are signed and tampered cookies are rejected.
type Jar struct {
	name     string
	secret   []byte // nil = unsigned
	domain   string
	path     string
	secure   bool
	sameSite http.SameSite
}

// Option configures the Jar.
type Option func(*Jar)

// New creates a Jar for the named cookie.
// Returns ErrBadSecret if a secret shorter than MinSecretLen was supplied.
func New(name string, opts ...Option) (*Jar, error) {
	j := &Jar{
		name:     name,
		path:     "/",
		secure:   true,
		sameSite: http.SameSiteLaxMode,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.secret != nil && len(j.secret) < MinSecretLen {
		return nil, ErrBadSecret
	}
	return j, nil
}

// WithSecret enables HMAC-SHA256 signing. An empty secret leaves the jar unsigned.
func WithSecret(secret string) Option {
	return func(j *Jar) {
		if secret != "" {
			j.secret = []byte(secret)
		}
	}
}

// WithDomain sets the cookie domain.
func WithDomain(domain string) Option {
	return func(j *Jar) {
		j.domain = domain
	}
}

// WithPath sets the cookie path.
func WithPath(path string) Option {
	return func(j *Jar) {
		if path != "" {
			j.path = path
		}
	}
}

// WithSecure sets the Secure flag.
func WithSecure(secure bool) Option {
	return func(j *Jar) {
		j.secure = secure
	}
}

// WithSameSite sets the SameSite attribute.
func WithSameSite(ss http.SameSite) Option {
	return func(j *Jar) {
		j.sameSite = ss
	}
}

// Name returns the cookie name.
func (j *Jar) Name() string { return j.name }

// Signed reports whether values are signed.
func (j *Jar) Signed() bool { return j.secret != nil }

// Read returns the cookie value from the request.
// Returns ErrNotFound for a missing or empty cookie and ErrBadSig when
// a signed value fails verification.
func (j *Jar) Read(r *http.Request) (string, error) {
	c, err := r.Cookie(j.name)
	if err != nil || c.Value == "" {
		return "", ErrNotFound
	}
	if j.secret == nil {
		return c.Value, nil
	}

	// Format: base64(value).base64(signature)
	encValue, encSig, ok := strings.Cut(c.Value, ".")
	if !ok {
		return "", ErrBadSig
	}
	value, err := base64.RawURLEncoding.DecodeString(encValue)
	if err != nil {
		return "", ErrBadSig
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return "", ErrBadSig
	}
	if !hmac.Equal(sig, j.sign(value)) {
		return "", ErrBadSig
	}
	return string(value), nil
}

// Write sets the cookie. maxAge 0 makes it a browser-session cookie.
// The cookie is always HttpOnly.
func (j *Jar) Write(w http.ResponseWriter, value string, maxAge int) {
	if j.secret != nil {
		value = base64.RawURLEncoding.EncodeToString([]byte(value)) +
			"." + base64.RawURLEncoding.EncodeToString(j.sign([]byte(value)))
	}
	http.SetCookie(w, j.cookie(value, maxAge))
}

// Clear expires the cookie on the client.
func (j *Jar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, j.cookie("", -1))
}

func (j *Jar) sign(value []byte) []byte {
	mac := hmac.New(sha256.New, j.secret)
	mac.Write(value)
	return mac.Sum(nil)
}

func (j *Jar) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     j.name,
		Value:    value,
		Path:     j.path,
		Domain:   j.domain,
		MaxAge:   maxAge,
		Secure:   j.secure,
		HttpOnly: true,
		SameSite: j.sameSite,
	}
}
