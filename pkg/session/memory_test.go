package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauth2client/pkg/session"
)

func TestMemory_CRUD(t *testing.T) {
	t.Parallel()

	store := session.NewMemory()
	ctx := context.Background()

	sess := session.New("id-1", "tok-1", time.Now().Add(time.Hour))
	sess.SetValue("k", "v")
	require.NoError(t, store.Create(ctx, sess))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "v", got.Values["k"])
	assert.False(t, got.IsNew())

	got.SetValue("k", "changed")
	sess2, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "v", sess2.Values["k"], "stored copy must not alias caller values")

	require.NoError(t, store.Update(ctx, got))
	sess2, err = store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "changed", sess2.Values["k"])

	require.NoError(t, store.Delete(ctx, "id-1"))
	_, err = store.Get(ctx, "tok-1")
	require.ErrorIs(t, err, session.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "id-1"))
}

func TestMemory_Errors(t *testing.T) {
	t.Parallel()

	store := session.NewMemory()
	ctx := context.Background()

	_, err := store.Get(ctx, "")
	require.ErrorIs(t, err, session.ErrInvalidToken)

	err = store.Update(ctx, session.New("missing", "tok", time.Now().Add(time.Hour)))
	require.ErrorIs(t, err, session.ErrNotFound)

	require.ErrorIs(t, store.Create(ctx, session.New("id", "", time.Now())), session.ErrInvalidToken)

	expired := session.New("old", "old-tok", time.Now().Add(-time.Minute))
	require.NoError(t, store.Create(ctx, expired))
	_, err = store.Get(ctx, "old-tok")
	require.ErrorIs(t, err, session.ErrExpired)
	assert.Equal(t, 0, store.Len())
}
