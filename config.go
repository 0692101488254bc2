package oauth2client

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/oauth2client/pkg/identity"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
)

// Config holds the login flow settings. Provider credentials and endpoints
// live in the embedded oauth.Config.
type Config struct {
	OAuth oauth.Config

	RoutePrefix string `env:"OAUTH2_ROUTE_PREFIX" envDefault:"/oauth2"`

	// UserMapping maps provider attributes to local fields, e.g. "sub:oauth2_id,mail:email".
	// Entries override those read from UserMappingFile.
	UserMapping     map[string]string `env:"OAUTH2_USER_MAPPING" envSeparator:"," envKeyValSeparator:":"`
	UserMappingFile string            `env:"OAUTH2_USER_MAPPING_FILE"`

	AutoCreateUsers bool `env:"OAUTH2_AUTO_CREATE_USERS" envDefault:"true"`
	RememberMe      bool `env:"OAUTH2_REMEMBER_ME" envDefault:"true"`
	RevokeOnLogout  bool `env:"OAUTH2_REVOKE_ON_LOGOUT" envDefault:"false"`
	StoreTokens     bool `env:"OAUTH2_STORE_TOKENS" envDefault:"true"`

	LoginRoute string `env:"OAUTH2_LOGIN_ROUTE" envDefault:"/login"`
	HomeRoute  string `env:"OAUTH2_HOME_ROUTE" envDefault:"/"`

	SSOLoginEnabled bool   `env:"OAUTH2_SSO_LOGIN_ENABLED" envDefault:"true"`
	SSOLoginRoute   string `env:"OAUTH2_SSO_LOGIN_ROUTE" envDefault:"/login/sso"`

	// Per client IP limit on the authorization start endpoint. Zero disables it.
	StartRateLimit float64 `env:"OAUTH2_START_RATE_LIMIT" envDefault:"1"`
	StartRateBurst int     `env:"OAUTH2_START_RATE_BURST" envDefault:"10"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Mapping builds the attribute mapping from the file and inline settings.
// With neither set the default mapping applies.
func (c Config) Mapping() (identity.Mapping, error) {
	merged := make(map[string]string)

	if c.UserMappingFile != "" {
		fromFile, err := loadMappingFile(c.UserMappingFile)
		if err != nil {
			return identity.Mapping{}, err
		}
		maps.Copy(merged, fromFile)
	}
	maps.Copy(merged, c.UserMapping)

	if len(merged) == 0 {
		return identity.DefaultMapping(), nil
	}
	return identity.NewMapping(merged), nil
}

func loadMappingFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("read user mapping file: %w", err))
	}

	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("parse user mapping file %s: %w", path, err))
	}
	return m, nil
}

func (c Config) prefix() string {
	p := "/" + strings.Trim(c.RoutePrefix, "/")
	if p == "/" {
		return ""
	}
	return p
}

func (c Config) startPath() string    { return c.prefix() + "/redirect" }
func (c Config) callbackPath() string { return c.prefix() + "/callback" }
func (c Config) logoutPath() string   { return c.prefix() + "/logout" }

func (c Config) loginRoute() string {
	if c.LoginRoute == "" {
		return "/login"
	}
	return c.LoginRoute
}

// homeRoute falls back to "/" when the configured route is not a usable local path.
func (c Config) homeRoute() string {
	if c.HomeRoute == "" || !strings.HasPrefix(c.HomeRoute, "/") || strings.HasPrefix(c.HomeRoute, "//") {
		return "/"
	}
	return c.HomeRoute
}
