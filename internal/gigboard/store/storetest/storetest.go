// Package storetest holds the behaviour every store.Store driver must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	"github.com/stretchr/testify/require"
)

// Run exercises a driver through the full Store contract. newStore must return
// an empty store each time it is called.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	ctx := context.Background()
	creds := store.Credentials{
		AccessToken:  "A",
		RefreshToken: "R",
		ExpiresAt:    time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("load empty", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Load(ctx)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save then load", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Save(ctx, creds))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, creds, got)
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Save(ctx, creds))
		next := store.Credentials{AccessToken: "A2", RefreshToken: "R2", ExpiresAt: creds.ExpiresAt.Add(time.Hour)}
		require.NoError(t, s.Save(ctx, next))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, next, got)
	})

	t.Run("tokens are opaque", func(t *testing.T) {
		s := newStore(t)

		odd := store.Credentials{AccessToken: "not a jwt \"at all\"", RefreshToken: "ü", ExpiresAt: creds.ExpiresAt}
		require.NoError(t, s.Save(ctx, odd))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, odd, got)
	})

	t.Run("expiry kept as sent", func(t *testing.T) {
		s := newStore(t)

		sent := store.Credentials{
			AccessToken:   "A",
			RefreshToken:  "R",
			ExpiresAt:     creds.ExpiresAt.Add(123456700 * time.Nanosecond),
			ExpiresAtText: "2099-01-01T00:00:00.1234567",
		}
		require.NoError(t, s.Save(ctx, sent))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, sent.Entries(), got.Entries())
		require.True(t, sent.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("clear twice", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Save(ctx, creds))

		require.NoError(t, s.Clear(ctx))
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.Clear(ctx))
		_, err = s.Load(ctx)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
