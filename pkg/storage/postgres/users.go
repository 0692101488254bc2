package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/oauth2client/pkg/db"
	"github.com/dmitrymomot/oauth2client/pkg/identity"
)

// lookupColumns whitelists the fields usable in FindBy queries.
var lookupColumns = map[string]string{
	identity.FieldProviderID: "oauth2_id",
	identity.FieldEmail:      "email",
}

const selectUser = `SELECT id::text, COALESCE(oauth2_id, ''), COALESCE(email, ''), name, first_name, last_name,
	avatar, email_verified_at, created_at, updated_at FROM users`

// Users implements identity.Repository over the users table.
type Users struct {
	q Querier
}

func (u *Users) FindByProviderID(ctx context.Context, field, id string) (identity.User, error) {
	return u.findBy(ctx, field, id)
}

func (u *Users) FindByEmail(ctx context.Context, field, email string) (identity.User, error) {
	return u.findBy(ctx, field, email)
}

func (u *Users) findBy(ctx context.Context, field, value string) (identity.User, error) {
	col, ok := lookupColumns[field]
	if !ok {
		return nil, fmt.Errorf("postgres: unsupported lookup field %q", field)
	}
	if value == "" {
		return nil, identity.ErrNotFound
	}

	return u.scan(ctx, selectUser+" WHERE "+col+" = $1 LIMIT 1", value)
}

// Get loads a user by primary key.
func (u *Users) Get(ctx context.Context, id string) (*identity.Account, error) {
	return u.scan(ctx, selectUser+" WHERE id = $1", id)
}

func (u *Users) scan(ctx context.Context, query string, args ...any) (*identity.Account, error) {
	var a identity.Account
	err := u.q.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.ProviderID, &a.Email, &a.Name, &a.FirstName, &a.LastName,
		&a.Avatar, &a.EmailVerifiedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if db.IsNoRows(err) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (u *Users) New(context.Context) identity.User {
	return &identity.Account{}
}

// Save inserts a new account or updates an existing one.
// Unique violations on oauth2_id or email return identity.ErrConflict.
func (u *Users) Save(ctx context.Context, user identity.User) error {
	a, ok := user.(*identity.Account)
	if !ok {
		return fmt.Errorf("postgres: unsupported user type %T", user)
	}

	var err error
	if a.ID == "" {
		err = u.q.QueryRow(ctx, `
			INSERT INTO users (oauth2_id, email, name, first_name, last_name, avatar, email_verified_at)
			VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, $5, $6, $7)
			RETURNING id::text, created_at, updated_at`,
			a.ProviderID, a.Email, a.Name, a.FirstName, a.LastName, a.Avatar, a.EmailVerifiedAt,
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	} else {
		err = u.q.QueryRow(ctx, `
			UPDATE users SET oauth2_id = NULLIF($2, ''), email = NULLIF($3, ''), name = $4,
				first_name = $5, last_name = $6, avatar = $7, email_verified_at = $8, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			a.ID, a.ProviderID, a.Email, a.Name, a.FirstName, a.LastName, a.Avatar, a.EmailVerifiedAt,
		).Scan(&a.UpdatedAt)
	}

	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return errors.Join(identity.ErrConflict, err)
	case db.IsNoRows(err):
		return identity.ErrNotFound
	default:
		return err
	}
}

// Delete removes a user. Its token record is removed by the foreign key cascade.
func (u *Users) Delete(ctx context.Context, id string) error {
	tag, err := u.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNotFound
	}
	return nil
}

var _ identity.Repository = (*Users)(nil)
