package store_test

import (
	"context"
	"testing"

	"github.com/GoCodeAlone/modhooks/store"
	"github.com/GoCodeAlone/modhooks/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, store.NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.Put(store.Record{ID: "combat", Overrides: map[string]any{"k": "v"}})
	}))

	rec, err := s.Get(ctx, "combat")
	require.NoError(t, err)
	rec.Overrides["k"] = "changed"

	again, err := s.Get(ctx, "combat")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Overrides["k"])
}

func TestMemory_ClosedRejectsUpdates(t *testing.T) {
	s := store.NewMemory()
	require.NoError(t, s.Close())
	err := s.Update(context.Background(), func(store.Tx) error { return nil })
	assert.ErrorIs(t, err, store.ErrClosed)
}
