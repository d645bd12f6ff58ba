package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/horiens/restock/internal/alerts"
	"github.com/horiens/restock/internal/config"
	"github.com/horiens/restock/internal/forecast"
	"github.com/horiens/restock/internal/health"
	"github.com/horiens/restock/internal/market"
	"github.com/horiens/restock/internal/notify"
	"github.com/horiens/restock/internal/templates"
)

type fakeSource struct {
	mu        sync.Mutex
	skus      []string
	listCalls int
	stocks    map[string]market.StockSnapshot
	sales     map[string][]market.SalesRecord
	brokenSKU string
}

func (f *fakeSource) ListSKUs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.skus, nil
}

func (f *fakeSource) FetchSales(_ context.Context, sku string, _, _ time.Time) ([]market.SalesRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sku == f.brokenSKU {
		return nil, errors.New("sales endpoint down")
	}
	return f.sales[sku], nil
}

func (f *fakeSource) FetchStock(_ context.Context, sku string) (market.StockSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stocks[sku], nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []forecast.Report
}

func (r *recordingPublisher) Publish(_ context.Context, report forecast.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

func steadySales(sku string, days, qtyPerDay int, until time.Time) []market.SalesRecord {
	records := make([]market.SalesRecord, 0, days)
	for i := 1; i <= days; i++ {
		records = append(records, market.SalesRecord{SKU: sku, Date: until.AddDate(0, 0, -i), Quantity: qtyPerDay})
	}
	return records
}

func newFixtureSource(now time.Time) *fakeSource {
	return &fakeSource{
		skus: []string{"A-1", "B-2"},
		sales: map[string][]market.SalesRecord{
			"A-1": steadySales("A-1", 30, 10, now),
			"B-2": steadySales("B-2", 30, 1, now),
		},
		stocks: map[string]market.StockSnapshot{
			"A-1": {SKU: "A-1", OnHand: 50, Reserved: 10, CapturedAt: now},
			"B-2": {SKU: "B-2", OnHand: 500, CapturedAt: now},
		},
	}
}

func forecastCfg() config.ForecastConfig {
	return config.ForecastConfig{
		LookbackDays:       90,
		TargetCoverDays:    14,
		MinHistoryDays:     14,
		MaxStockAgeSeconds: 86400,
		Concurrency:        2,
	}
}

func TestRunCycleProducesOrderedReport(t *testing.T) {
	now := time.Now().UTC()
	source := newFixtureSource(now)
	engine := forecast.NewEngine(source, forecastCfg(), nil, nil)
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}
	composer, err := notify.NewComposer(templates.NewRenderer(nil), "")
	require.NoError(t, err)

	pipe := New(Options{
		Source:      source,
		Engine:      engine,
		Publisher:   publisher,
		Notifier:    notifier,
		Composer:    composer,
		Concurrency: 2,
		Interval:    time.Hour,
	})

	report, err := pipe.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	require.Equal(t, "A-1", report.Results[0].SKU, "tightest cover leads the report")
	require.Equal(t, 100, report.Results[0].RecommendedOrderQty)
	require.Empty(t, report.Failed)

	latest, ok := pipe.Latest()
	require.True(t, ok)
	require.Equal(t, report.GeneratedAt, latest.GeneratedAt)

	require.Len(t, publisher.reports, 1)
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "A-1: order 100")
}

func TestRunCyclePartialFailure(t *testing.T) {
	now := time.Now().UTC()
	source := newFixtureSource(now)
	source.brokenSKU = "B-2"
	engine := forecast.NewEngine(source, forecastCfg(), nil, nil)

	pipe := New(Options{Source: source, Engine: engine, Concurrency: 2, Interval: time.Hour})

	report, err := pipe.RunCycle(context.Background())
	require.NoError(t, err, "one failing SKU degrades the cycle, not aborts it")
	require.Len(t, report.Results, 1)
	require.Equal(t, "A-1", report.Results[0].SKU)
	require.Equal(t, []string{"B-2"}, report.Failed)
}

func TestRunCyclePrefersCatalogSKUs(t *testing.T) {
	now := time.Now().UTC()
	source := newFixtureSource(now)
	engine := forecast.NewEngine(source, forecastCfg(), nil, nil)
	catalog := NewCatalogRef(config.Catalog{SKUs: []config.CatalogSKU{{SKU: "A-1"}}})

	pipe := New(Options{Source: source, Engine: engine, Catalog: catalog, Concurrency: 2, Interval: time.Hour})

	report, err := pipe.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Equal(t, "A-1", report.Results[0].SKU)
	require.Zero(t, source.listCalls, "a pinned catalog skips the product list call")
}

func TestRunCycleFallsBackToProductList(t *testing.T) {
	now := time.Now().UTC()
	source := newFixtureSource(now)
	engine := forecast.NewEngine(source, forecastCfg(), nil, nil)

	pipe := New(Options{
		Source:      source,
		Engine:      engine,
		Catalog:     NewCatalogRef(config.Catalog{}),
		Concurrency: 2,
		Interval:    time.Hour,
	})

	report, err := pipe.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	require.Equal(t, 1, source.listCalls)
}

func TestRunCycleEvaluatesAlerts(t *testing.T) {
	now := time.Now().UTC()
	source := newFixtureSource(now)
	engine := forecast.NewEngine(source, forecastCfg(), nil, nil)

	sampler := health.NewSampler(15*time.Minute, 100)
	for i := 0; i < 10; i++ {
		sampler.Record("sales", 100*time.Millisecond, health.OutcomeFailure)
	}
	monitor := health.NewMonitor(sampler, config.HealthConfig{
		WindowSeconds:               900,
		MinSamples:                  5,
		MaxSamples:                  100,
		ErrorDegradedThreshold:      0.05,
		ErrorUnhealthyThreshold:     0.25,
		LatencyDegradedThresholdMS:  1500,
		LatencyUnhealthyThresholdMS: 5000,
	})
	rules, err := alerts.Compile([]config.AlertRuleConfig{
		{Name: "upstream-down", When: `classification == "unhealthy"`, Severity: "critical", Message: "sales endpoint unhealthy"},
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	pipe := New(Options{
		Source:      source,
		Engine:      engine,
		Monitor:     monitor,
		Rules:       rules,
		Notifier:    notifier,
		Concurrency: 2,
		Interval:    time.Hour,
	})

	_, err = pipe.RunCycle(context.Background())
	require.NoError(t, err)
	require.Contains(t, notifier.messages, "sales endpoint unhealthy")
}

func TestCatalogRefSwap(t *testing.T) {
	ref := NewCatalogRef(config.Catalog{SKUs: []config.CatalogSKU{{SKU: "A-1", MOQ: 10}}})
	require.Equal(t, 10, ref.MOQ("A-1"))

	ref.Swap(config.Catalog{SKUs: []config.CatalogSKU{{SKU: "A-1", MOQ: 25}, {SKU: "B-2"}}})
	require.Equal(t, 25, ref.MOQ("A-1"))
	require.Equal(t, []string{"A-1", "B-2"}, ref.SKUs())
}
