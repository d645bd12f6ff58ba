package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	entry := Entry{
		Payload:      []byte(`{"sku":"A-1"}`),
		StoredAt:     now,
		ExpiresAt:    now.Add(time.Hour),
		SourceHealth: "healthy",
	}
	require.NoError(t, store.Store(ctx, "sales:abc", entry, 2*time.Hour))

	got, found, err := store.Lookup(ctx, "sales:abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, entry.Payload, got.Payload)
	require.True(t, got.Fresh(now))

	size, err := store.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)
}

func TestMemoryStoreRetainsExpiredEntries(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	// Logically expired a minute ago, physically retained for another hour.
	entry := Entry{
		Payload:   []byte("stale"),
		StoredAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	}
	require.NoError(t, store.Store(ctx, "stocks:k", entry, 2*time.Hour))

	got, found, err := store.Lookup(ctx, "stocks:k")
	require.NoError(t, err)
	require.True(t, found, "expired entries stay visible within the retention horizon")
	require.False(t, got.Fresh(now))
}

func TestMemoryStoreDropsPastRetention(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	entry := Entry{
		Payload:   []byte("gone"),
		StoredAt:  time.Now().UTC().Add(-3 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, store.Store(ctx, "stocks:k", entry, time.Hour))

	_, found, err := store.Lookup(ctx, "stocks:k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Store(ctx, "k", Entry{Payload: []byte("x"), StoredAt: now, ExpiresAt: now.Add(time.Hour)}, time.Hour))
	require.NoError(t, store.Delete(ctx, "k"))

	_, found, err := store.Lookup(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreAtomicReplace(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Store(ctx, "k", Entry{Payload: []byte("old"), StoredAt: now, ExpiresAt: now.Add(time.Hour)}, time.Hour))
	require.NoError(t, store.Store(ctx, "k", Entry{Payload: []byte("new"), StoredAt: now, ExpiresAt: now.Add(time.Hour)}, time.Hour))

	got, found, err := store.Lookup(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("new"), got.Payload)
}
