package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/horiens/restock/internal/cache"
)

// CachedSource routes source reads through the snapshot cache so identical
// logical requests inside the TTL cost one upstream call. Keys derive
// deterministically from the request parameters; a payload that fails to
// deserialize is treated as corruption: the entry is discarded and the fetch
// retried once against the upstream.
type CachedSource struct {
	next    Source
	manager *cache.Manager
	keys    *cache.KeyBuilder
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCachedSource wraps the source with cache-backed reads using a single
// TTL for every endpoint.
func NewCachedSource(next Source, manager *cache.Manager, keys *cache.KeyBuilder, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		next:    next,
		manager: manager,
		keys:    keys,
		ttl:     ttl,
		logger:  logger.With(slog.String("agent", "cached_source")),
	}
}

func (c *CachedSource) ListSKUs(ctx context.Context) ([]string, error) {
	key := c.keys.Build(EndpointProducts, map[string]string{"op": "list"})
	var skus []string
	err := c.getOrFetchJSON(ctx, key, &skus, func(ctx context.Context) (any, error) {
		return c.next.ListSKUs(ctx)
	})
	return skus, err
}

func (c *CachedSource) FetchSales(ctx context.Context, sku string, from, to time.Time) ([]SalesRecord, error) {
	key := c.keys.Build(EndpointSales, map[string]string{
		"sku":  sku,
		"from": from.UTC().Format("2006-01-02"),
		"to":   to.UTC().Format("2006-01-02"),
	})
	var records []SalesRecord
	err := c.getOrFetchJSON(ctx, key, &records, func(ctx context.Context) (any, error) {
		return c.next.FetchSales(ctx, sku, from, to)
	})
	return records, err
}

func (c *CachedSource) FetchStock(ctx context.Context, sku string) (StockSnapshot, error) {
	key := c.keys.Build(EndpointStocks, map[string]string{"sku": sku})
	var snapshot StockSnapshot
	err := c.getOrFetchJSON(ctx, key, &snapshot, func(ctx context.Context) (any, error) {
		return c.next.FetchStock(ctx, sku)
	})
	return snapshot, err
}

// Invalidate drops every cached read derived from the given endpoint and
// parameters, forcing the next read to hit the upstream.
func (c *CachedSource) Invalidate(ctx context.Context, endpoint string, params map[string]string) error {
	return c.manager.Invalidate(ctx, c.keys.Build(endpoint, params))
}

func (c *CachedSource) getOrFetchJSON(ctx context.Context, key cache.Key, out any, fetch func(ctx context.Context) (any, error)) error {
	fetchBytes := func(ctx context.Context) ([]byte, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("market: encode %s snapshot: %w", key.Endpoint, err)
		}
		return payload, nil
	}

	payload, err := c.manager.GetOrFetch(ctx, key, c.ttl, fetchBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err == nil {
		return nil
	}

	// Corrupt entry: discard it and retry the fetch once. The invalidated
	// key guarantees the retry reaches the upstream instead of the cache.
	c.logger.Warn("discarding corrupt snapshot", slog.String("key", key.String()))
	if invErr := c.manager.Invalidate(ctx, key); invErr != nil {
		return fmt.Errorf("market: discard corrupt %s snapshot: %w", key.Endpoint, invErr)
	}
	payload, err = c.manager.GetOrFetch(ctx, key, c.ttl, fetchBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("market: decode %s snapshot: %w", key.Endpoint, err)
	}
	return nil
}
