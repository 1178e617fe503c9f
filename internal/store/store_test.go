package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/vault"
)

func TestMemoryListByCaseOrdersOldestFirst(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		_, err := mem.Store(ctx, audit.Artifact{
			ID:          string(rune('a' + i)),
			CaseID:      "CASE-1",
			GeneratedAt: base.Add(offset),
		})
		require.NoError(t, err)
	}
	_, err := mem.Store(ctx, audit.Artifact{ID: "z", CaseID: "CASE-2", GeneratedAt: base})
	require.NoError(t, err)

	got, err := mem.ListByCase(ctx, "CASE-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].GeneratedAt.Before(got[1].GeneratedAt))
	assert.True(t, got[1].GeneratedAt.Before(got[2].GeneratedAt))
}

func TestMemoryVaultRoundTrip(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	sealed := vault.Sealed{CaseID: "CASE-1", Payload: []byte{1, 2, 3}}
	require.NoError(t, mem.SaveSealed(ctx, sealed))

	got, err := mem.LoadSealed(ctx, "CASE-1")
	require.NoError(t, err)
	assert.Equal(t, sealed, got)

	_, err = mem.LoadSealed(ctx, "CASE-404")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mem.DeleteSealed(ctx, "CASE-1"))
	_, err = mem.LoadSealed(ctx, "CASE-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mem.DeleteSealed(ctx, "CASE-404"), "deleting a missing vault must be a no-op")
}
