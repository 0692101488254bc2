// Package encryption provides the symmetric primitive used to keep OAuth2 tokens
// encrypted at rest.
//
// [AESGCM] derives a 256-bit key from an application secret with HKDF-SHA256 and
// seals values with AES-GCM. Ciphertexts are base64 (standard encoding) of
// nonce||sealed so they fit a text column.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum accepted length of the raw application secret.
const MinSecretLength = 32

const hkdfInfo = "oauth2client token encryption v1"

// Encryptor encrypts and decrypts opaque string values.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// AESGCM is an Encryptor backed by AES-256-GCM.
type AESGCM struct {
	aead cipher.AEAD
}

// New derives an AES-256 key from secret and returns a ready Encryptor.
// A secret prefixed with "base64:" is decoded first.
func New(secret string) (*AESGCM, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}
	if len(raw) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}

	return &AESGCM{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (e *AESGCM) Encrypt(_ context.Context, plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Join(ErrEncrypt, err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *AESGCM) Decrypt(_ context.Context, ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrDecrypt, err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead() {
		return "", ErrDecrypt
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Join(ErrDecrypt, err)
	}

	return string(plaintext), nil
}

// GenerateSecret returns a random secret in the "base64:" form accepted by New.
func GenerateSecret() (string, error) {
	b := make([]byte, MinSecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "base64:" + base64.StdEncoding.EncodeToString(b), nil
}

func decodeSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	encoded, ok := strings.CutPrefix(secret, "base64:")
	if !ok {
		return []byte(secret), nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	return raw, nil
}

var _ Encryptor = (*AESGCM)(nil)
