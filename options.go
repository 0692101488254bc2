package oauth2client

import (
	"log/slog"

	"github.com/dmitrymomot/oauth2client/pkg/instrumentation"
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithInstrumentation sets the tracer and metrics used for the login flow.
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(h *Handler) {
		if inst != nil {
			h.inst = inst
		}
	}
}
