package market

import (
	"context"
	"time"

	"github.com/horiens/restock/internal/health"
	"github.com/horiens/restock/internal/metrics"
)

// Instrumented decorates a Source so every upstream call lands in the health
// sampler and the Prometheus recorder at the call boundary. Instrumentation
// is best-effort and never alters results or introduces new failure modes.
type Instrumented struct {
	next     Source
	sampler  *health.Sampler
	recorder *metrics.Recorder
}

// NewInstrumented wraps the source. sampler and recorder may each be nil.
func NewInstrumented(next Source, sampler *health.Sampler, recorder *metrics.Recorder) *Instrumented {
	return &Instrumented{next: next, sampler: sampler, recorder: recorder}
}

func (i *Instrumented) ListSKUs(ctx context.Context) ([]string, error) {
	start := time.Now()
	skus, err := i.next.ListSKUs(ctx)
	i.observe(EndpointProducts, time.Since(start), err)
	return skus, err
}

func (i *Instrumented) FetchSales(ctx context.Context, sku string, from, to time.Time) ([]SalesRecord, error) {
	start := time.Now()
	records, err := i.next.FetchSales(ctx, sku, from, to)
	i.observe(EndpointSales, time.Since(start), err)
	return records, err
}

func (i *Instrumented) FetchStock(ctx context.Context, sku string) (StockSnapshot, error) {
	start := time.Now()
	snapshot, err := i.next.FetchStock(ctx, sku)
	i.observe(EndpointStocks, time.Since(start), err)
	return snapshot, err
}

func (i *Instrumented) observe(endpoint string, elapsed time.Duration, err error) {
	outcome := health.OutcomeSuccess
	fetchOutcome := metrics.FetchSuccess
	if err != nil {
		outcome = health.OutcomeFailure
		fetchOutcome = metrics.FetchFailure
	}
	i.sampler.Record(endpoint, elapsed, outcome)
	i.recorder.ObserveFetch(endpoint, fetchOutcome, elapsed)
}
