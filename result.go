package oauth2client

import (
	"errors"

	"github.com/dmitrymomot/oauth2client/pkg/identity"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
)

// FailureKind enumerates the ways a callback can fail.
type FailureKind int

const (
	FailureProviderError FailureKind = iota + 1
	FailureMissingParameters
	FailureInvalidState
	FailureTokenExchange
	FailureUserInfo
	FailureIncompleteProfile
	FailureUserNotFound
	FailureInvalidProfile
	FailureInternal
)

// String returns the metric label for the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureProviderError:
		return "provider_error"
	case FailureMissingParameters:
		return "missing_parameters"
	case FailureInvalidState:
		return "invalid_state"
	case FailureTokenExchange:
		return "token_exchange_failed"
	case FailureUserInfo:
		return "user_info_failed"
	case FailureIncompleteProfile:
		return "incomplete_profile"
	case FailureUserNotFound:
		return "user_not_found"
	case FailureInvalidProfile:
		return "invalid_profile"
	case FailureInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Internal reports whether the failure originates in this application rather
// than the provider or the caller.
func (k FailureKind) Internal() bool {
	return k == FailureInternal
}

// Failure describes why a callback did not produce a login.
type Failure struct {
	Err    error
	Detail string // provider error code for FailureProviderError
	Kind   FailureKind
}

// Message is the text flashed to the user under the "oauth2" error key.
func (f *Failure) Message() string {
	switch f.Kind {
	case FailureProviderError:
		return "OAuth2 error: " + f.Detail
	case FailureMissingParameters:
		return "Invalid OAuth2 callback parameters"
	case FailureInvalidState:
		return "Authentication failed: invalid or expired state"
	case FailureTokenExchange:
		return "Authentication failed: token exchange failed"
	case FailureUserInfo:
		return "Authentication failed: could not fetch user info"
	case FailureIncompleteProfile:
		return "Authentication failed: provider profile has no id or email"
	case FailureUserNotFound:
		return "Authentication failed: user not found"
	case FailureInvalidProfile:
		return "Authentication failed: provider profile has an unusable attribute"
	default:
		return "Authentication failed: internal error"
	}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the outcome of a callback. Exactly one of User or Failure is set.
type Result struct {
	User    identity.User
	Tokens  *oauth.TokenSet
	Failure *Failure
}

// OK reports whether the callback produced a login.
func (r Result) OK() bool { return r.Failure == nil && r.User != nil }

func failed(kind FailureKind, err error) Result {
	return Result{Failure: &Failure{Kind: kind, Err: err}}
}

// classify maps errors from the callback chain onto failure kinds.
// Unrecognized errors are internal.
func classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrProviderError):
		return FailureProviderError
	case errors.Is(err, ErrMissingCallbackParameters):
		return FailureMissingParameters
	case errors.Is(err, oauth.ErrInvalidState):
		return FailureInvalidState
	case errors.Is(err, oauth.ErrTokenExchangeFailed):
		return FailureTokenExchange
	case errors.Is(err, oauth.ErrUserInfoFetchFailed):
		return FailureUserInfo
	case errors.Is(err, identity.ErrIncompleteProfile):
		return FailureIncompleteProfile
	case errors.Is(err, identity.ErrUserNotFound):
		return FailureUserNotFound
	case errors.Is(err, identity.ErrInvalidAttribute):
		return FailureInvalidProfile
	default:
		return FailureInternal
	}
}
