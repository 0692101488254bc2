// Package memory implements the identity repository and token store in process
// memory. It is intended for tests, demos and single-instance deployments that
// do not need durable users.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauth2client/pkg/identity"
)

// DB holds users and their token records. Deleting a user cascades to its tokens.
type DB struct {
	mu     sync.RWMutex
	users  map[string]identity.Account
	tokens map[string]identity.StoredToken
	seq    int64
	now    func() time.Time
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{
		users:  make(map[string]identity.Account),
		tokens: make(map[string]identity.StoredToken),
		now:    time.Now,
	}
}

// Users returns the identity.Repository view.
func (db *DB) Users() *Users { return &Users{db: db} }

// Tokens returns the identity.TokenStore view.
func (db *DB) Tokens() *Tokens { return &Tokens{db: db} }

// DeleteUser removes a user and its token record.
func (db *DB) DeleteUser(_ context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[id]; !ok {
		return identity.ErrNotFound
	}
	delete(db.users, id)
	delete(db.tokens, id)
	return nil
}

// CountUsers returns the number of stored users.
func (db *DB) CountUsers() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.users)
}

var accountColumns = map[string]func(*identity.Account) string{
	identity.FieldProviderID: func(a *identity.Account) string { return a.ProviderID },
	identity.FieldEmail:      func(a *identity.Account) string { return a.Email },
}

// Users implements identity.Repository over identity.Account records.
type Users struct {
	db *DB
}

func (u *Users) FindByProviderID(_ context.Context, field, id string) (identity.User, error) {
	return u.findBy(field, id)
}

func (u *Users) FindByEmail(_ context.Context, field, email string) (identity.User, error) {
	return u.findBy(field, email)
}

func (u *Users) findBy(field, value string) (identity.User, error) {
	get, ok := accountColumns[field]
	if !ok {
		return nil, fmt.Errorf("memory: unsupported lookup field %q", field)
	}
	if value == "" {
		return nil, identity.ErrNotFound
	}

	u.db.mu.RLock()
	defer u.db.mu.RUnlock()

	for _, a := range u.db.users {
		if get(&a) == value {
			found := a
			return &found, nil
		}
	}
	return nil, identity.ErrNotFound
}

// Get returns a copy of the user with the given id.
func (u *Users) Get(_ context.Context, id string) (*identity.Account, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()

	a, ok := u.db.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &a, nil
}

func (u *Users) New(context.Context) identity.User {
	return &identity.Account{}
}

// Save inserts or updates the account. Duplicate provider ids or emails return
// identity.ErrConflict.
func (u *Users) Save(_ context.Context, user identity.User) error {
	a, ok := user.(*identity.Account)
	if !ok {
		return fmt.Errorf("memory: unsupported user type %T", user)
	}

	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	for id, other := range u.db.users {
		if id == a.ID {
			continue
		}
		if (a.ProviderID != "" && other.ProviderID == a.ProviderID) ||
			(a.Email != "" && other.Email == a.Email) {
			return identity.ErrConflict
		}
	}

	now := u.db.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	u.db.users[a.ID] = *a

	return nil
}

// Tokens implements identity.TokenStore.
type Tokens struct {
	db *DB
}

func (t *Tokens) Upsert(_ context.Context, rec *identity.StoredToken) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	if _, ok := t.db.users[rec.UserID]; !ok {
		return fmt.Errorf("memory: token owner %q does not exist", rec.UserID)
	}

	now := t.db.now()
	if existing, ok := t.db.tokens[rec.UserID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		t.db.seq++
		rec.ID = t.db.seq
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	t.db.tokens[rec.UserID] = *rec

	return nil
}

func (t *Tokens) Find(_ context.Context, userID string) (*identity.StoredToken, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	rec, ok := t.db.tokens[userID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &rec, nil
}

func (t *Tokens) Delete(_ context.Context, userID string) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	delete(t.db.tokens, userID)
	return nil
}

var (
	_ identity.Repository = (*Users)(nil)
	_ identity.TokenStore = (*Tokens)(nil)
)
