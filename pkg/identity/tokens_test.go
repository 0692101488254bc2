package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauth2client/pkg/encryption"
	"github.com/dmitrymomot/oauth2client/pkg/identity"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
	"github.com/dmitrymomot/oauth2client/pkg/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type brokenEncryptor struct{}

func (brokenEncryptor) Encrypt(context.Context, string) (string, error) {
	return "", errors.New("hsm unavailable")
}

func (brokenEncryptor) Decrypt(context.Context, string) (string, error) {
	return "", errors.New("hsm unavailable")
}

type refresherFunc func(ctx context.Context, rt string) (*oauth.TokenSet, error)

func (f refresherFunc) RefreshToken(ctx context.Context, rt string) (*oauth.TokenSet, error) {
	return f(ctx, rt)
}

func newTokenFixture(t *testing.T, opts ...identity.TokenOption) (*identity.TokenService, *memory.DB, string) {
	t.Helper()

	enc, err := encryption.New(testSecret)
	require.NoError(t, err)

	db := memory.New()
	u := &identity.Account{Email: "t@example.com"}
	require.NoError(t, db.Users().Save(context.Background(), u))

	opts = append([]identity.TokenOption{identity.WithTokenClock(func() time.Time { return fixedNow })}, opts...)
	return identity.NewTokenService(db.Tokens(), enc, opts...), db, u.ID
}

func TestTokenService_StoreTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("encrypts at rest and round-trips", func(t *testing.T) {
		t.Parallel()

		svc, db, userID := newTokenFixture(t)
		require.True(t, svc.Enabled())

		err := svc.StoreTokens(ctx, userID, &oauth.TokenSet{
			AccessToken:  "access-plain",
			RefreshToken: "refresh-plain",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
		})
		require.NoError(t, err)

		rec, err := db.Tokens().Find(ctx, userID)
		require.NoError(t, err)
		assert.NotEqual(t, "access-plain", rec.AccessToken)
		require.NotNil(t, rec.RefreshToken)
		assert.NotEqual(t, "refresh-plain", *rec.RefreshToken)
		require.NotNil(t, rec.ExpiresAt)
		assert.Equal(t, fixedNow.Add(time.Hour), *rec.ExpiresAt)

		got, err := svc.Tokens(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "access-plain", got.AccessToken)
		assert.Equal(t, "refresh-plain", got.RefreshToken)
		assert.Equal(t, "Bearer", got.TokenType)
		assert.Equal(t, int64(3600), got.ExpiresIn)
	})

	t.Run("upsert keeps one record per user", func(t *testing.T) {
		t.Parallel()

		svc, db, userID := newTokenFixture(t)

		require.NoError(t, svc.StoreTokens(ctx, userID, &oauth.TokenSet{AccessToken: "a1", RefreshToken: "r1"}))
		first, err := db.Tokens().Find(ctx, userID)
		require.NoError(t, err)

		require.NoError(t, svc.StoreTokens(ctx, userID, &oauth.TokenSet{AccessToken: "a2"}))
		second, err := db.Tokens().Find(ctx, userID)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Nil(t, second.RefreshToken)
		assert.Nil(t, second.ExpiresAt)
		assert.Equal(t, "Bearer", second.TokenType)

		got, err := svc.Tokens(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "a2", got.AccessToken)
		assert.Empty(t, got.RefreshToken)
	})

	t.Run("disabled persistence is a no-op", func(t *testing.T) {
		t.Parallel()

		svc, db, userID := newTokenFixture(t, identity.WithPersistence(false))
		require.False(t, svc.Enabled())

		require.NoError(t, svc.StoreTokens(ctx, userID, &oauth.TokenSet{AccessToken: "a"}))
		_, err := db.Tokens().Find(ctx, userID)
		require.ErrorIs(t, err, identity.ErrNotFound)

		require.NoError(t, svc.RevokeTokens(ctx, userID))
	})

	t.Run("no store is a no-op", func(t *testing.T) {
		t.Parallel()

		svc := identity.NewTokenService(nil, nil)
		assert.False(t, svc.Enabled())
		require.NoError(t, svc.StoreTokens(ctx, "u", &oauth.TokenSet{AccessToken: "a"}))
		require.NoError(t, svc.RevokeTokens(ctx, "u"))
	})

	t.Run("encryption failure", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		svc := identity.NewTokenService(db.Tokens(), brokenEncryptor{})

		err := svc.StoreTokens(ctx, "u", &oauth.TokenSet{AccessToken: "a"})
		require.ErrorIs(t, err, identity.ErrEncryptionFailed)
	})

	t.Run("persistence failure", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTokenFixture(t)

		err := svc.StoreTokens(ctx, "missing-user", &oauth.TokenSet{AccessToken: "a"})
		require.ErrorIs(t, err, identity.ErrPersistenceFailed)
	})
}

func TestTokenService_RevokeTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, userID := newTokenFixture(t)

	require.NoError(t, svc.StoreTokens(ctx, userID, &oauth.TokenSet{AccessToken: "a"}))
	require.NoError(t, svc.RevokeTokens(ctx, userID))

	_, err := svc.Tokens(ctx, userID)
	require.ErrorIs(t, err, identity.ErrTokensNotFound)

	require.NoError(t, svc.RevokeTokens(ctx, userID))
}

func TestTokenService_Refresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rotates and keeps refresh token when none issued", func(t *testing.T) {
		t.Parallel()

		svc, _, userID := newTokenFixture(t)
		require.NoError(t, svc.StoreTokens(ctx, userID, &oauth.TokenSet{AccessToken: "a1", RefreshToken: "r1"}))

		var seen string
		next, err := svc.Refresh(ctx, userID, refresherFunc(func(_ context.Context, rt string) (*oauth.TokenSet, error) {
			seen = rt
			return &oauth.TokenSet{AccessToken: "a2", TokenType: "Bearer", ExpiresIn: 60}, nil
		}))
		require.NoError(t, err)
		assert.Equal(t, "r1", seen)
		assert.Equal(t, "r1", next.RefreshToken)

		got, err := svc.Tokens(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "a2", got.AccessToken)
		assert.Equal(t, "r1", got.RefreshToken)
	})

	t.Run("no refresh token stored", func(t *testing.T) {
		t.Parallel()

		svc, _, userID := newTokenFixture(t)
		require.NoError(t, svc.StoreTokens(ctx, userID, &oauth.TokenSet{AccessToken: "a1"}))

		_, err := svc.Refresh(ctx, userID, refresherFunc(func(context.Context, string) (*oauth.TokenSet, error) {
			t.Fatal("refresher must not be called")
			return nil, nil
		}))
		require.ErrorIs(t, err, identity.ErrNoRefreshToken)
	})

	t.Run("provider failure is returned as is", func(t *testing.T) {
		t.Parallel()

		svc, _, userID := newTokenFixture(t)
		require.NoError(t, svc.StoreTokens(ctx, userID, &oauth.TokenSet{AccessToken: "a1", RefreshToken: "r1"}))

		_, err := svc.Refresh(ctx, userID, refresherFunc(func(context.Context, string) (*oauth.TokenSet, error) {
			return nil, oauth.ErrTokenRefreshFailed
		}))
		require.ErrorIs(t, err, oauth.ErrTokenRefreshFailed)
	})
}

func TestStoredToken_IsExpired(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	assert.False(t, (&identity.StoredToken{}).IsExpired())
	assert.True(t, (&identity.StoredToken{ExpiresAt: &past}).IsExpired())
	assert.False(t, (&identity.StoredToken{ExpiresAt: &future}).IsExpired())
	assert.True(t, (&identity.StoredToken{ExpiresAt: &fixedNow}).ExpiredAt(fixedNow))
}
