package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/horiens/restock/internal/health"
	"github.com/horiens/restock/internal/metrics"
)

// ErrFetchFailed marks an upstream fetch that failed with no usable stale
// data to fall back on.
var ErrFetchFailed = errors.New("cache: fetch failed")

// FetchFunc performs the expensive work behind a cache miss, typically an
// upstream API call. It is the only operation in this package allowed to
// block on I/O.
type FetchFunc func(ctx context.Context) ([]byte, error)

// HealthClassifier reports the current upstream classification for an
// endpoint. Reads must never block on cache writes; the health package keeps
// its own sample store.
type HealthClassifier interface {
	Classify(endpoint string) health.Status
}

// Options configures a Manager.
type Options struct {
	Store SnapshotStore
	// Health gates stale-serve decisions. When nil every endpoint is
	// treated as healthy and expired entries always trigger a fetch.
	Health HealthClassifier
	// DefaultTTL applies when a caller passes a non-positive TTL.
	DefaultTTL time.Duration
	// StaleGrace bounds how long past logical expiry an entry remains
	// servable under the degraded-upstream and fetch-error policies.
	StaleGrace time.Duration
	// StaleOnError serves an expired entry instead of surfacing a fetch
	// failure when one is still retained.
	StaleOnError bool
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
}

// Manager is the shared cache front: valid hits are served without fetching,
// expired entries are served stale while the upstream is degraded, and
// concurrent callers for the same missing key share a single fetch.
type Manager struct {
	store        SnapshotStore
	health       HealthClassifier
	defaultTTL   time.Duration
	staleGrace   time.Duration
	staleOnError bool
	logger       *slog.Logger
	metrics      *metrics.Recorder

	group singleflight.Group
	clock func() time.Time
}

// NewManager constructs a cache manager over the supplied store.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultTTL := opts.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Manager{
		store:        opts.Store,
		health:       opts.Health,
		defaultTTL:   defaultTTL,
		staleGrace:   opts.StaleGrace,
		staleOnError: opts.StaleOnError,
		logger:       logger.With(slog.String("agent", "snapshot_cache")),
		metrics:      opts.Metrics,
	}
}

// GetOrFetch returns the payload for key, fetching at most once per missing
// key across concurrent callers. A fresh entry short-circuits the fetch; an
// expired entry is served as-is while the key's endpoint is degraded or
// unhealthy. fetch failures surface as ErrFetchFailed unless stale-on-error
// is enabled and an expired entry is still retained.
func (m *Manager) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	lookupStart := time.Now()
	stale, found, err := m.store.Lookup(ctx, key.String())
	if err != nil {
		// A broken backend degrades to miss behavior rather than failing
		// the read path.
		m.metrics.ObserveCacheLookup(key.Endpoint, metrics.CacheLookupError, time.Since(lookupStart))
		m.logger.Warn("cache lookup failed", slog.String("key", key.String()), slog.Any("error", err))
		found = false
	}
	now := m.now()
	if found && stale.Fresh(now) {
		m.metrics.ObserveCacheLookup(key.Endpoint, metrics.CacheLookupHit, time.Since(lookupStart))
		return stale.Payload, nil
	}

	status := health.Status{Endpoint: key.Endpoint, Classification: health.Healthy}
	if m.health != nil {
		status = m.health.Classify(key.Endpoint)
	}
	if found && status.Classification != health.Healthy {
		m.metrics.ObserveCacheLookup(key.Endpoint, metrics.CacheLookupStale, time.Since(lookupStart))
		m.logger.Info("serving stale snapshot while upstream degraded",
			slog.String("key", key.String()),
			slog.String("classification", string(status.Classification)),
			slog.Time("expired_at", stale.ExpiresAt))
		m.markServedStale(ctx, key, stale, status)
		return stale.Payload, nil
	}
	if !found {
		m.metrics.ObserveCacheLookup(key.Endpoint, metrics.CacheLookupMiss, time.Since(lookupStart))
	}

	payload, err, _ := m.group.Do(key.String(), func() (any, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		storedAt := m.now()
		entry := Entry{
			Payload:      fetched,
			StoredAt:     storedAt,
			ExpiresAt:    storedAt.Add(ttl),
			SourceHealth: string(status.Classification),
		}
		storeStart := time.Now()
		storeErr := m.store.Store(ctx, key.String(), entry, ttl+m.staleGrace)
		outcome := metrics.CacheStoreStored
		if storeErr != nil {
			outcome = metrics.CacheStoreError
			m.logger.Error("cache store failed", slog.String("key", key.String()), slog.Any("error", storeErr))
		}
		m.metrics.ObserveCacheStore(key.Endpoint, outcome, time.Since(storeStart))
		// A failed store never fails the read: the fetched payload is
		// still good, only future callers lose the shortcut.
		return fetched, nil
	})
	if err != nil {
		if found && m.staleOnError {
			m.logger.Warn("fetch failed, serving stale snapshot",
				slog.String("key", key.String()), slog.Any("error", err))
			return stale.Payload, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, key.Endpoint, err)
	}
	return payload.([]byte), nil
}

// Invalidate removes the entry immediately and unconditionally.
func (m *Manager) Invalidate(ctx context.Context, key Key) error {
	if err := m.store.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", key.String(), err)
	}
	return nil
}

// Size reports the backend's entry count.
func (m *Manager) Size(ctx context.Context) (int64, error) {
	return m.store.Size(ctx)
}

// Close releases the underlying store.
func (m *Manager) Close(ctx context.Context) error {
	return m.store.Close(ctx)
}

// markServedStale re-stamps the entry's source health so observers can tell
// the payload was served under a degraded upstream. The logical expiry is
// left untouched; only the remaining physical retention is renewed.
func (m *Manager) markServedStale(ctx context.Context, key Key, entry Entry, status health.Status) {
	entry.SourceHealth = string(status.Classification)
	retain := m.staleGrace - m.now().Sub(entry.ExpiresAt)
	if retain <= 0 {
		return
	}
	if err := m.store.Store(ctx, key.String(), entry, m.now().Sub(entry.StoredAt)+retain); err != nil {
		m.logger.Warn("stale re-stamp failed", slog.String("key", key.String()), slog.Any("error", err))
	}
}

func (m *Manager) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now().UTC()
}
