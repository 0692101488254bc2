package identity

import "errors"

var (
	// ErrUserNotFound is returned when no local user matches and auto-creation is off.
	ErrUserNotFound = errors.New("identity: user not found and auto-creation is disabled")

	// ErrIncompleteProfile is returned when the profile carries neither an id nor an email.
	ErrIncompleteProfile = errors.New("identity: profile has no id or email")

	// ErrPersistenceFailed wraps repository and token store failures.
	ErrPersistenceFailed = errors.New("identity: persistence failed")

	// ErrEncryptionFailed wraps encryption primitive failures.
	ErrEncryptionFailed = errors.New("identity: encryption failed")

	// ErrInvalidAttribute is returned when a mapped value cannot be assigned to a field.
	ErrInvalidAttribute = errors.New("identity: invalid attribute value")

	// ErrNoRefreshToken is returned when a refresh is requested but none is stored.
	ErrNoRefreshToken = errors.New("identity: no refresh token stored")

	// ErrTokensNotFound is returned when no token record exists for the user.
	ErrTokensNotFound = errors.New("identity: tokens not found")
)

// Errors returned by Repository and TokenStore implementations.
var (
	ErrNotFound = errors.New("identity: record not found")
	ErrConflict = errors.New("identity: unique constraint violation")
)
