package oauth

import "errors"

var (
	// ErrMissingClientID is returned when the OAuth client ID is not provided.
	ErrMissingClientID = errors.New("oauth: missing client ID")

	// ErrMissingClientSecret is returned when the OAuth client secret is not provided.
	ErrMissingClientSecret = errors.New("oauth: missing client secret")

	// ErrMissingEndpoint is returned when any of the provider endpoints is empty.
	ErrMissingEndpoint = errors.New("oauth: missing provider endpoint")

	// ErrMissingStateStore is returned when no state store is supplied.
	ErrMissingStateStore = errors.New("oauth: missing state store")

	// ErrInvalidState is returned when the callback state is unknown, expired or already used.
	ErrInvalidState = errors.New("oauth: invalid state")

	// ErrStateStore is returned when the state store itself fails.
	ErrStateStore = errors.New("oauth: state store failure")

	// ErrTokenExchangeFailed is returned when the authorization code cannot be exchanged.
	ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")

	// ErrTokenRefreshFailed is returned when a refresh token cannot be redeemed.
	ErrTokenRefreshFailed = errors.New("oauth: token refresh failed")

	// ErrUserInfoFetchFailed is returned when the user-info endpoint fails or returns a non-object body.
	ErrUserInfoFetchFailed = errors.New("oauth: user info fetch failed")
)
