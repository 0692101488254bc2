package postgres

import (
	"context"

	"github.com/dmitrymomot/oauth2client/pkg/db"
	"github.com/dmitrymomot/oauth2client/pkg/identity"
)

// Tokens implements identity.TokenStore over the oauth2_tokens table.
type Tokens struct {
	q Querier
}

func (t *Tokens) Upsert(ctx context.Context, rec *identity.StoredToken) error {
	return t.q.QueryRow(ctx, `
		INSERT INTO oauth2_tokens (user_id, access_token, refresh_token, expires_at, token_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			token_type = EXCLUDED.token_type,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		rec.UserID, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, rec.TokenType,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

func (t *Tokens) Find(ctx context.Context, userID string) (*identity.StoredToken, error) {
	var rec identity.StoredToken
	err := t.q.QueryRow(ctx, `
		SELECT id, user_id::text, access_token, refresh_token, expires_at, token_type, created_at, updated_at
		FROM oauth2_tokens WHERE user_id = $1`, userID,
	).Scan(&rec.ID, &rec.UserID, &rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt,
		&rec.TokenType, &rec.CreatedAt, &rec.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *Tokens) Delete(ctx context.Context, userID string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM oauth2_tokens WHERE user_id = $1`, userID)
	return err
}

var _ identity.TokenStore = (*Tokens)(nil)
