package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/horiens/restock/internal/health"
)

type stubHealth struct {
	classification health.Classification
}

func (s stubHealth) Classify(endpoint string) health.Status {
	return health.Status{Endpoint: endpoint, Classification: s.classification}
}

func newTestManager(t *testing.T, classification health.Classification, staleOnError bool) (*Manager, *time.Time) {
	t.Helper()
	start := time.Now().UTC()
	clock := start
	m := NewManager(Options{
		Store:        NewMemory(),
		Health:       stubHealth{classification: classification},
		DefaultTTL:   time.Hour,
		StaleGrace:   6 * time.Hour,
		StaleOnError: staleOnError,
	})
	m.clock = func() time.Time { return clock }
	return m, &clock
}

func TestGetOrFetchRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, health.Healthy, false)
	key := NewKeyBuilder("").Build("sales", map[string]string{"sku": "A-1"})

	var fetches atomic.Int64
	fetch := func(context.Context) ([]byte, error) {
		fetches.Add(1)
		return []byte("payload"), nil
	}

	first, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), first)

	second, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int64(1), fetches.Load(), "fresh entries must be served without refetching")
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	m, _ := newTestManager(t, health.Healthy, false)
	key := NewKeyBuilder("").Build("stocks", map[string]string{"sku": "A-1"})

	var fetches atomic.Int64
	gate := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		fetches.Add(1)
		<-gate
		return []byte("shared"), nil
	}

	const callers = 8
	results := make(chan error, callers)
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			started.Done()
			payload, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
			if err == nil && string(payload) != "shared" {
				err = errors.New("unexpected payload " + string(payload))
			}
			results <- err
		}()
	}
	started.Wait()
	// Hold the in-flight fetch open long enough for every caller to join it.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	done.Wait()
	close(results)
	for err := range results {
		require.NoError(t, err)
	}

	require.Equal(t, int64(1), fetches.Load(), "concurrent callers must share one fetch")
}

func TestGetOrFetchServesStaleWhileDegraded(t *testing.T) {
	m, clock := newTestManager(t, health.Degraded, false)
	key := NewKeyBuilder("").Build("sales", map[string]string{"sku": "A-1"})

	var fetches atomic.Int64
	fetch := func(context.Context) ([]byte, error) {
		fetches.Add(1)
		return []byte("v1"), nil
	}

	payload, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), payload)

	*clock = clock.Add(time.Hour + time.Minute)

	payload, err = m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), payload, "expired entry is served as-is while degraded")
	require.Equal(t, int64(1), fetches.Load(), "no fetch may be issued against a degraded upstream")
}

func TestGetOrFetchRefreshesExpiredWhenHealthy(t *testing.T) {
	m, clock := newTestManager(t, health.Healthy, false)
	key := NewKeyBuilder("").Build("sales", map[string]string{"sku": "A-1"})

	payloads := [][]byte{[]byte("v1"), []byte("v2")}
	var fetches atomic.Int64
	fetch := func(context.Context) ([]byte, error) {
		return payloads[fetches.Add(1)-1], nil
	}

	payload, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), payload)

	*clock = clock.Add(time.Hour + time.Minute)

	payload, err = m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), payload)
	require.Equal(t, int64(2), fetches.Load())
}

func TestGetOrFetchStaleOnError(t *testing.T) {
	m, clock := newTestManager(t, health.Healthy, true)
	key := NewKeyBuilder("").Build("stocks", map[string]string{"sku": "A-1"})

	calls := 0
	fetch := func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return []byte("v1"), nil
		}
		return nil, errors.New("upstream exploded")
	}

	_, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)

	*clock = clock.Add(time.Hour + time.Minute)

	payload, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err, "expired entry backs a failed refresh when stale-on-error is enabled")
	require.Equal(t, []byte("v1"), payload)
}

func TestGetOrFetchFailureWithoutStale(t *testing.T) {
	m, _ := newTestManager(t, health.Healthy, true)
	key := NewKeyBuilder("").Build("stocks", map[string]string{"sku": "missing"})

	_, err := m.GetOrFetch(context.Background(), key, time.Hour, func(context.Context) ([]byte, error) {
		return nil, errors.New("upstream exploded")
	})
	require.ErrorIs(t, err, ErrFetchFailed)
	require.Contains(t, err.Error(), "stocks")
}

func TestInvalidateForcesRefetch(t *testing.T) {
	m, _ := newTestManager(t, health.Healthy, false)
	key := NewKeyBuilder("").Build("sales", map[string]string{"sku": "A-1"})

	var fetches atomic.Int64
	fetch := func(context.Context) ([]byte, error) {
		fetches.Add(1)
		return []byte("payload"), nil
	}

	_, err := m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(context.Background(), key))

	_, err = m.GetOrFetch(context.Background(), key, time.Hour, fetch)
	require.NoError(t, err)
	require.Equal(t, int64(2), fetches.Load(), "invalidation must force the next read through the upstream")
}
