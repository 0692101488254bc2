package oauth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/oauth2client/pkg/instrumentation"
)

// DefaultTimeout bounds every provider round-trip.
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	inst       *instrumentation.Instrumentation
	logger     *slog.Logger
	timeout    time.Duration
}

// WithHTTPClient sets a custom HTTP client for provider requests.
// This is useful for testing with httptest servers or injecting
// custom transports.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTimeout overrides the per-request timeout.
// Default: 30 seconds
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithInstrumentation enables metrics and tracing for provider calls.
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(o *options) {
		o.inst = inst
	}
}

// WithLogger sets the logger. Tokens and codes are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
