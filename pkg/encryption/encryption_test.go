package encryption_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauth2client/pkg/encryption"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty secret", func(t *testing.T) {
		t.Parallel()

		_, err := encryption.New("")
		require.ErrorIs(t, err, encryption.ErrMissingSecret)
	})

	t.Run("rejects short secret", func(t *testing.T) {
		t.Parallel()

		_, err := encryption.New("too-short")
		require.ErrorIs(t, err, encryption.ErrSecretTooShort)
	})

	t.Run("rejects malformed base64 secret", func(t *testing.T) {
		t.Parallel()

		_, err := encryption.New("base64:%%%")
		require.ErrorIs(t, err, encryption.ErrInvalidSecret)
	})

	t.Run("accepts generated secret", func(t *testing.T) {
		t.Parallel()

		secret, err := encryption.GenerateSecret()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(secret, "base64:"))

		_, err = encryption.New(secret)
		require.NoError(t, err)
	})
}

func TestAESGCM_RoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := encryption.New(testSecret)
	require.NoError(t, err)
	ctx := context.Background()

	for _, plaintext := range []string{"access-token-123", "", strings.Repeat("x", 4096)} {
		ciphertext, err := enc.Encrypt(ctx, plaintext)
		require.NoError(t, err)
		if plaintext != "" {
			assert.NotContains(t, ciphertext, plaintext)
		}

		got, err := enc.Decrypt(ctx, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestAESGCM_NonceIsRandom(t *testing.T) {
	t.Parallel()

	enc, err := encryption.New(testSecret)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := enc.Encrypt(ctx, "same")
	require.NoError(t, err)
	b, err := enc.Encrypt(ctx, "same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestAESGCM_Decrypt(t *testing.T) {
	t.Parallel()

	enc, err := encryption.New(testSecret)
	require.NoError(t, err)
	other, err := encryption.New(strings.Repeat("k", 32))
	require.NoError(t, err)
	ctx := context.Background()

	ciphertext, err := enc.Encrypt(ctx, "secret")
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()

		_, err := other.Decrypt(ctx, ciphertext)
		require.ErrorIs(t, err, encryption.ErrDecrypt)
	})

	t.Run("not base64", func(t *testing.T) {
		t.Parallel()

		_, err := enc.Decrypt(ctx, "!!!")
		require.ErrorIs(t, err, encryption.ErrDecrypt)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		_, err := enc.Decrypt(ctx, "AAAA")
		require.ErrorIs(t, err, encryption.ErrDecrypt)
	})
}
