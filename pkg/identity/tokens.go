package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/oauth2client/pkg/encryption"
	"github.com/dmitrymomot/oauth2client/pkg/instrumentation"
	"github.com/dmitrymomot/oauth2client/pkg/logger"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
)

const defaultTokenType = "Bearer"

// StoredToken is the persisted, encrypted token record. One per user.
type StoredToken struct {
	ID           int64
	UserID       string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	TokenType    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the access token has expired.
// Tokens without an expiry never expire.
func (t *StoredToken) IsExpired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt is IsExpired against an explicit clock.
func (t *StoredToken) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// TokenStore persists encrypted token records keyed by user id.
type TokenStore interface {
	// Upsert inserts or replaces the record for t.UserID.
	Upsert(ctx context.Context, t *StoredToken) error

	// Find returns the record for userID, or ErrNotFound.
	Find(ctx context.Context, userID string) (*StoredToken, error)

	// Delete removes the record for userID. Missing records are not an error.
	Delete(ctx context.Context, userID string) error
}

// Refresher redeems refresh tokens. Implemented by *oauth.Client.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth.TokenSet, error)
}

// TokenService encrypts and persists provider tokens.
type TokenService struct {
	store   TokenStore
	enc     encryption.Encryptor
	enabled bool
	now     func() time.Time
	logger  *slog.Logger
	inst    *instrumentation.Instrumentation
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithPersistence toggles token storage. Default: true
func WithPersistence(enabled bool) TokenOption {
	return func(s *TokenService) {
		s.enabled = enabled
	}
}

// WithTokenClock overrides the time source for expiry computation.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(s *TokenService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTokenInstrumentation enables token metrics.
func WithTokenInstrumentation(inst *instrumentation.Instrumentation) TokenOption {
	return func(s *TokenService) {
		if inst != nil {
			s.inst = inst
		}
	}
}

// NewTokenService creates a TokenService. A nil store or encryptor disables persistence.
func NewTokenService(store TokenStore, enc encryption.Encryptor, opts ...TokenOption) *TokenService {
	s := &TokenService{
		store:   store,
		enc:     enc,
		enabled: true,
		now:     time.Now,
		logger:  logger.NewNope(),
		inst:    instrumentation.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether tokens are persisted.
func (s *TokenService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil && s.enc != nil
}

// StoreTokens encrypts ts and upserts it for userID. It is a no-op when disabled.
func (s *TokenService) StoreTokens(ctx context.Context, userID string, ts *oauth.TokenSet) error {
	if !s.Enabled() || ts == nil {
		return nil
	}

	access, err := s.enc.Encrypt(ctx, ts.AccessToken)
	if err != nil {
		return errors.Join(ErrEncryptionFailed, err)
	}

	rec := &StoredToken{
		UserID:      userID,
		AccessToken: access,
		TokenType:   ts.TokenType,
	}
	if rec.TokenType == "" {
		rec.TokenType = defaultTokenType
	}

	if ts.RefreshToken != "" {
		refresh, err := s.enc.Encrypt(ctx, ts.RefreshToken)
		if err != nil {
			return errors.Join(ErrEncryptionFailed, err)
		}
		rec.RefreshToken = &refresh
	}

	switch {
	case ts.ExpiresIn > 0:
		exp := s.now().Add(time.Duration(ts.ExpiresIn) * time.Second)
		rec.ExpiresAt = &exp
	case ts.ExpiresAt != nil:
		exp := *ts.ExpiresAt
		rec.ExpiresAt = &exp
	}

	if err := s.store.Upsert(ctx, rec); err != nil {
		return errors.Join(ErrPersistenceFailed, err)
	}

	s.inst.Metrics().RecordTokensStored(ctx)
	return nil
}

// RevokeTokens deletes the stored tokens for userID. Missing records are ignored.
func (s *TokenService) RevokeTokens(ctx context.Context, userID string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.store.Delete(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Join(ErrPersistenceFailed, err)
	}
	return nil
}

// Tokens loads and decrypts the stored tokens for userID.
func (s *TokenService) Tokens(ctx context.Context, userID string) (*oauth.TokenSet, error) {
	if !s.Enabled() {
		return nil, ErrTokensNotFound
	}

	rec, err := s.store.Find(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrTokensNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrPersistenceFailed, err)
	}

	access, err := s.enc.Decrypt(ctx, rec.AccessToken)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	ts := &oauth.TokenSet{
		AccessToken: access,
		TokenType:   rec.TokenType,
		ExpiresAt:   rec.ExpiresAt,
	}
	if rec.RefreshToken != nil {
		if ts.RefreshToken, err = s.enc.Decrypt(ctx, *rec.RefreshToken); err != nil {
			return nil, errors.Join(ErrEncryptionFailed, err)
		}
	}
	if rec.ExpiresAt != nil {
		ts.ExpiresIn = max(int64(rec.ExpiresAt.Sub(s.now()).Seconds()), 0)
	}

	return ts, nil
}

// Refresh redeems the stored refresh token and persists the new token set.
// A response without a new refresh token keeps the previous one.
func (s *TokenService) Refresh(ctx context.Context, userID string, refresher Refresher) (*oauth.TokenSet, error) {
	current, err := s.Tokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	next, err := refresher.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}

	if err := s.StoreTokens(ctx, userID, next); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "oauth2 tokens refreshed", slog.String("user_id", userID))
	return next, nil
}
