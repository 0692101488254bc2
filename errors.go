package oauth2client

import "errors"

var (
	// ErrInvalidConfig is returned when configuration cannot be loaded.
	ErrInvalidConfig = errors.New("oauth2client: invalid config")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("oauth2client: missing dependency")

	// ErrProviderError is returned when the provider redirects back with an error parameter.
	ErrProviderError = errors.New("oauth2client: provider returned an error")

	// ErrMissingCallbackParameters is returned when code or state is absent from the callback.
	ErrMissingCallbackParameters = errors.New("oauth2client: missing callback parameters")

	// ErrSessionFailed is returned when the session cannot be established or saved.
	ErrSessionFailed = errors.New("oauth2client: session failed")
)
