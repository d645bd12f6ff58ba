package market

import (
	"context"
	"time"
)

// Endpoint names for the upstream seller API surfaces the agent calls. They
// key both health classification and cache entries.
const (
	EndpointProducts = "products"
	EndpointSales    = "sales"
	EndpointStocks   = "stocks"
)

// SalesRecord is one day of sales for a SKU. Records are immutable once
// fetched and uniquely identified by (sku, date).
type SalesRecord struct {
	SKU      string    `json:"sku"`
	Date     time.Time `json:"date"`
	Quantity int       `json:"quantity"`
	Revenue  float64   `json:"revenue"`
}

// Day returns the record's calendar date in canonical form.
func (r SalesRecord) Day() string {
	return r.Date.UTC().Format("2006-01-02")
}

// StockSnapshot is the stock state of a SKU at a point in time. Snapshots
// are superseded by newer ones, never mutated in place.
type StockSnapshot struct {
	SKU        string    `json:"sku"`
	OnHand     int       `json:"on_hand"`
	Reserved   int       `json:"reserved"`
	CapturedAt time.Time `json:"captured_at"`
}

// Available returns the sellable stock, floored at zero. Reserved exceeding
// on-hand signals an oversold SKU, not an error.
func (s StockSnapshot) Available() int {
	available := s.OnHand - s.Reserved
	if available < 0 {
		return 0
	}
	return available
}

// Source is the narrow capability interface the core depends on. Concrete
// network clients, caches, and test doubles all satisfy it.
type Source interface {
	ListSKUs(ctx context.Context) ([]string, error)
	FetchSales(ctx context.Context, sku string, from, to time.Time) ([]SalesRecord, error)
	FetchStock(ctx context.Context, sku string) (StockSnapshot, error)
}
