// Package storetest holds the behaviour every store.Store implementation
// must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

// Run exercises s. The store must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, modhooks.ErrNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		err := s.Update(ctx, func(tx store.Tx) error {
			return tx.Put(store.Record{
				ID:          "combat",
				State:       modhooks.StateInstalled,
				InstalledAt: now,
				UpdatedAt:   now,
				Overrides:   map[string]any{"base_damage": float64(12)},
			})
		})
		require.NoError(t, err)

		rec, err := s.Get(ctx, "combat")
		require.NoError(t, err)
		assert.Equal(t, modhooks.StateInstalled, rec.State)
		assert.False(t, rec.Enabled)
		assert.True(t, now.Equal(rec.InstalledAt))
		assert.Equal(t, map[string]any{"base_damage": float64(12)}, rec.Overrides)
	})

	t.Run("failed update keeps nothing", func(t *testing.T) {
		err := s.Update(ctx, func(tx store.Tx) error {
			rec, ok, err := tx.Get("combat")
			require.NoError(t, err)
			require.True(t, ok)
			rec.State = modhooks.StateEnabled
			rec.Enabled = true
			require.NoError(t, tx.Put(rec))
			require.NoError(t, tx.Put(store.Record{ID: "currency", State: modhooks.StateInstalled}))
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		rec, err := s.Get(ctx, "combat")
		require.NoError(t, err)
		assert.Equal(t, modhooks.StateInstalled, rec.State)
		_, err = s.Get(ctx, "currency")
		assert.ErrorIs(t, err, modhooks.ErrNotFound)
	})

	t.Run("update state", func(t *testing.T) {
		later := now.Add(time.Minute)
		err := s.Update(ctx, func(tx store.Tx) error {
			rec, ok, err := tx.Get("combat")
			if err != nil || !ok {
				return errors.Join(err, modhooks.ErrNotFound)
			}
			rec.State = modhooks.StateEnabled
			rec.Enabled = true
			rec.UpdatedAt = later
			return tx.Put(rec)
		})
		require.NoError(t, err)

		rec, err := s.Get(ctx, "combat")
		require.NoError(t, err)
		assert.Equal(t, modhooks.StateEnabled, rec.State)
		assert.True(t, rec.Enabled)
		assert.True(t, later.Equal(rec.UpdatedAt))
		assert.True(t, now.Equal(rec.InstalledAt))
	})

	t.Run("list sorted", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
			return tx.Put(store.Record{ID: "achievements", State: modhooks.StateDisabled, InstalledAt: now, UpdatedAt: now})
		}))

		recs, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "achievements", recs[0].ID)
		assert.Equal(t, "combat", recs[1].ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
			if err := tx.Delete("achievements"); err != nil {
				return err
			}
			return tx.Delete("never-existed")
		}))
		_, err := s.Get(ctx, "achievements")
		assert.ErrorIs(t, err, modhooks.ErrNotFound)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		err := s.Update(ctx, func(tx store.Tx) error {
			return tx.Put(store.Record{State: modhooks.StateInstalled})
		})
		assert.ErrorIs(t, err, store.ErrEmptyID)
	})
}
