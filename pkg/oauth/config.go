package oauth

import (
	"strings"
)

// Config holds the provider endpoints and client credentials.
// Values are fixed for the lifetime of a Client.
type Config struct {
	ClientID         string   `env:"OAUTH2_CLIENT_ID,required"`
	ClientSecret     string   `env:"OAUTH2_CLIENT_SECRET,required"`
	RedirectURI      string   `env:"OAUTH2_REDIRECT_URI" envDefault:"/oauth2/callback"`
	AuthorizationURL string   `env:"OAUTH2_AUTHORIZATION_URL,required"`
	TokenURL         string   `env:"OAUTH2_TOKEN_URL,required"`
	UserInfoURL      string   `env:"OAUTH2_USER_INFO_URL,required"`
	Scopes           []string `env:"OAUTH2_SCOPES" envSeparator:" " envDefault:"openid profile email"`

	// BaseURL is the application's public origin, used to absolutize RedirectURI.
	BaseURL string `env:"APP_URL" envDefault:"http://localhost:8080"`
}

func (c Config) validate() error {
	if c.ClientID == "" {
		return ErrMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrMissingClientSecret
	}
	if c.AuthorizationURL == "" || c.TokenURL == "" || c.UserInfoURL == "" {
		return ErrMissingEndpoint
	}
	return nil
}

// NormalizeRedirectURI turns raw into an absolute URL.
// Absolute URLs are returned unchanged; anything else is joined onto baseURL.
func NormalizeRedirectURI(raw, baseURL string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}

	base := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(raw, "/") {
		return base + raw
	}
	return base + "/" + raw
}
