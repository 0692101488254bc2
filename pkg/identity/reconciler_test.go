package identity_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauth2client/pkg/identity"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
	"github.com/dmitrymomot/oauth2client/pkg/storage/memory"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newReconciler(db *memory.DB, opts ...identity.ReconcilerOption) *identity.Reconciler {
	opts = append([]identity.ReconcilerOption{
		identity.WithMapping(nameMapping()),
		identity.WithReconcilerClock(func() time.Time { return fixedNow }),
	}, opts...)
	return identity.NewReconciler(db.Users(), opts...)
}

func seed(t *testing.T, db *memory.DB, a *identity.Account) *identity.Account {
	t.Helper()
	require.NoError(t, db.Users().Save(context.Background(), a))
	return a
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates user with split name", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		user, err := newReconciler(db).Reconcile(ctx, oauth.Profile{
			"id":    "oauth-123",
			"email": "test@example.com",
			"name":  "John Doe",
		})
		require.NoError(t, err)

		a := user.(*identity.Account)
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "oauth-123", a.ProviderID)
		assert.Equal(t, "test@example.com", a.Email)
		assert.Equal(t, "John Doe", a.Name)
		assert.Equal(t, "John", a.FirstName)
		assert.Equal(t, "Doe", a.LastName)
		assert.Nil(t, a.EmailVerifiedAt)
		assert.Equal(t, 1, db.CountUsers())
	})

	t.Run("single word name leaves last name empty", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		user, err := newReconciler(db).Reconcile(ctx, oauth.Profile{
			"id": "oauth-1", "email": "j@example.com", "name": "John",
		})
		require.NoError(t, err)

		a := user.(*identity.Account)
		assert.Equal(t, "John", a.FirstName)
		assert.Empty(t, a.LastName)
	})

	t.Run("updates existing user matched by provider id", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		existing := seed(t, db, &identity.Account{ProviderID: "oauth-123", Email: "old@example.com", Avatar: "a.png"})

		user, err := newReconciler(db).Reconcile(ctx, oauth.Profile{
			"id": "oauth-123", "email": "new@example.com", "name": "John Doe", "avatar": nil,
		})
		require.NoError(t, err)

		a := user.(*identity.Account)
		assert.Equal(t, existing.ID, a.ID)
		assert.Equal(t, "new@example.com", a.Email)
		assert.Equal(t, "a.png", a.Avatar)
		assert.Equal(t, 1, db.CountUsers())
	})

	t.Run("falls back to email match", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		existing := seed(t, db, &identity.Account{Email: "test@example.com"})

		user, err := newReconciler(db).Reconcile(ctx, oauth.Profile{"id": "oauth-9", "email": "test@example.com"})
		require.NoError(t, err)
		assert.Equal(t, existing.ID, user.UserID())
		assert.Equal(t, "oauth-9", user.(*identity.Account).ProviderID)
	})

	t.Run("provider id match wins over email match", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		byID := seed(t, db, &identity.Account{ProviderID: "oauth-1", Email: "one@example.com"})
		seed(t, db, &identity.Account{Email: "two@example.com"})

		user, err := newReconciler(db).Reconcile(ctx, oauth.Profile{"id": "oauth-1", "email": "two@example.com"})

		// The id match is updated; the email now collides with the other record.
		require.ErrorIs(t, err, identity.ErrPersistenceFailed)
		assert.Nil(t, user)

		stored, err := db.Users().Get(ctx, byID.ID)
		require.NoError(t, err)
		assert.Equal(t, "one@example.com", stored.Email)
	})

	t.Run("auto-create disabled", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		user, err := newReconciler(db, identity.WithAutoCreate(false)).Reconcile(ctx, oauth.Profile{
			"id": "oauth-123", "email": "test@example.com",
		})
		require.ErrorIs(t, err, identity.ErrUserNotFound)
		assert.Nil(t, user)
		assert.Zero(t, db.CountUsers())
	})

	t.Run("auto-create disabled still updates existing", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		seed(t, db, &identity.Account{Email: "test@example.com"})

		_, err := newReconciler(db, identity.WithAutoCreate(false)).Reconcile(ctx, oauth.Profile{"email": "test@example.com"})
		require.NoError(t, err)
	})

	t.Run("incomplete profile", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		_, err := newReconciler(db).Reconcile(ctx, oauth.Profile{"name": "Nobody"})
		require.ErrorIs(t, err, identity.ErrIncompleteProfile)
		assert.Zero(t, db.CountUsers())
	})

	t.Run("email verification set once", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		earlier := fixedNow.Add(-48 * time.Hour)
		seed(t, db, &identity.Account{Email: "v@example.com", EmailVerifiedAt: &earlier})
		rec := newReconciler(db)

		user, err := rec.Reconcile(ctx, oauth.Profile{"email": "v@example.com", "email_verified": true})
		require.NoError(t, err)
		assert.Equal(t, earlier, *user.(*identity.Account).EmailVerifiedAt)

		fresh, err := rec.Reconcile(ctx, oauth.Profile{"email": "n@example.com", "email_verified": true})
		require.NoError(t, err)
		assert.Equal(t, fixedNow, *fresh.(*identity.Account).EmailVerifiedAt)

		unverified, err := rec.Reconcile(ctx, oauth.Profile{"email": "u@example.com", "email_verified": false})
		require.NoError(t, err)
		assert.Nil(t, unverified.(*identity.Account).EmailVerifiedAt)
	})

	t.Run("concurrent reconciliations create one user", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		rec := newReconciler(db)

		var failures atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Go(func() {
				if _, err := rec.Reconcile(ctx, oauth.Profile{"id": "race", "email": "race@example.com"}); err != nil {
					failures.Add(1)
				}
			})
		}
		wg.Wait()

		assert.Zero(t, failures.Load())
		assert.Equal(t, 1, db.CountUsers())
	})
}

// conflictRepo simulates another process inserting the same identity between
// lookup and save.
type conflictRepo struct {
	*memory.Users
	db        *memory.DB
	conflicts int
	saveErr   error
	findErr   error
}

func (r *conflictRepo) FindByProviderID(ctx context.Context, field, id string) (identity.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.Users.FindByProviderID(ctx, field, id)
}

func (r *conflictRepo) Save(ctx context.Context, u identity.User) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.conflicts > 0 {
		r.conflicts--
		winner := &identity.Account{ProviderID: "oauth-1", Email: "winner@example.com"}
		if err := r.Users.Save(ctx, winner); err != nil {
			return err
		}
		return identity.ErrConflict
	}
	return r.Users.Save(ctx, u)
}

func TestReconciler_Conflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("re-looks up once and applies onto the winner", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		repo := &conflictRepo{Users: db.Users(), db: db, conflicts: 1}
		rec := identity.NewReconciler(repo, identity.WithMapping(nameMapping()))

		user, err := rec.Reconcile(ctx, oauth.Profile{"id": "oauth-1", "email": "winner@example.com", "name": "Jane Roe"})
		require.NoError(t, err)
		assert.Equal(t, 1, db.CountUsers())
		assert.Equal(t, "Jane", user.(*identity.Account).FirstName)

		stored, err := db.Users().Get(ctx, user.UserID())
		require.NoError(t, err)
		assert.Equal(t, "Jane Roe", stored.Name)
	})

	t.Run("repeated conflict fails", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		repo := &conflictRepo{Users: db.Users(), db: db, saveErr: identity.ErrConflict}
		rec := identity.NewReconciler(repo)

		_, err := rec.Reconcile(ctx, oauth.Profile{"id": "oauth-1"})
		require.ErrorIs(t, err, identity.ErrPersistenceFailed)
	})

	t.Run("lookup failure", func(t *testing.T) {
		t.Parallel()

		db := memory.New()
		repo := &conflictRepo{Users: db.Users(), db: db, findErr: errors.New("connection reset")}
		rec := identity.NewReconciler(repo)

		_, err := rec.Reconcile(ctx, oauth.Profile{"id": "oauth-1"})
		require.ErrorIs(t, err, identity.ErrPersistenceFailed)
	})
}

// blockingRepo holds lookups until release is closed and honours ctx afterwards.
type blockingRepo struct {
	*memory.Users
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRepo) FindByProviderID(ctx context.Context, field, id string) (identity.User, error) {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Users.FindByProviderID(ctx, field, id)
}

func TestReconciler_SharedCallSurvivesCancelledCaller(t *testing.T) {
	t.Parallel()

	db := memory.New()
	repo := &blockingRepo{
		Users:   db.Users(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	rec := identity.NewReconciler(repo, identity.WithMapping(nameMapping()))
	profile := oauth.Profile{"id": "oauth-1", "email": "a@example.com", "name": "Ada Lovelace"}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := rec.Reconcile(firstCtx, profile)
		firstErr <- err
	}()
	<-repo.entered

	type result struct {
		user identity.User
		err  error
	}
	second := make(chan result, 1)
	go func() {
		u, err := rec.Reconcile(context.Background(), profile)
		second <- result{u, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled, "cancelled caller stops waiting")

	// Give the second caller time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	res := <-second
	require.NoError(t, res.err)
	assert.NotEmpty(t, res.user.UserID())
	assert.Equal(t, 1, db.CountUsers())
}
