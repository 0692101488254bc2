package encryption

import "errors"

var (
	ErrMissingSecret  = errors.New("encryption: missing secret")
	ErrSecretTooShort = errors.New("encryption: secret must be at least 32 bytes")
	ErrInvalidSecret  = errors.New("encryption: invalid secret")
	ErrEncrypt        = errors.New("encryption: failed to encrypt")
	ErrDecrypt        = errors.New("encryption: failed to decrypt")
)
