package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/horiens/restock/internal/alerts"
	"github.com/horiens/restock/internal/forecast"
	"github.com/horiens/restock/internal/health"
	"github.com/horiens/restock/internal/market"
	"github.com/horiens/restock/internal/metrics"
	"github.com/horiens/restock/internal/notify"
	"github.com/horiens/restock/internal/publish"
)

// Options wires the pipeline's collaborators. Source and Engine are required;
// everything else degrades gracefully when absent.
type Options struct {
	Source  market.Source
	Engine  *forecast.Engine
	Catalog *CatalogRef
	// Monitor feeds the alert rules with per-endpoint health statuses.
	Monitor   *health.Monitor
	Rules     []alerts.Rule
	Publisher publish.Publisher
	Notifier  notify.Notifier
	Composer  *notify.Composer
	// Concurrency bounds how many SKUs are forecast in parallel.
	Concurrency int
	Interval    time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Recorder
}

// Pipeline runs the forecast cycle: enumerate SKUs, forecast each one with
// bounded parallelism, retain the report for the ops surface, then publish,
// notify, and evaluate alerts. A SKU that fails degrades the cycle instead of
// aborting it.
type Pipeline struct {
	source      market.Source
	engine      *forecast.Engine
	catalog     *CatalogRef
	monitor     *health.Monitor
	rules       []alerts.Rule
	publisher   publish.Publisher
	notifier    notify.Notifier
	composer    *notify.Composer
	concurrency int
	interval    time.Duration
	logger      *slog.Logger
	metrics     *metrics.Recorder
	clock       func() time.Time

	mu        sync.RWMutex
	latest    forecast.Report
	hasReport bool
}

// New constructs the pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		source:      opts.Source,
		engine:      opts.Engine,
		catalog:     opts.Catalog,
		monitor:     opts.Monitor,
		rules:       opts.Rules,
		publisher:   opts.Publisher,
		notifier:    opts.Notifier,
		composer:    opts.Composer,
		concurrency: concurrency,
		interval:    opts.Interval,
		logger:      logger.With(slog.String("agent", "pipeline")),
		metrics:     opts.Metrics,
	}
}

// Latest returns the most recent report, false before the first cycle lands.
func (p *Pipeline) Latest() (forecast.Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.hasReport
}

// Run executes an immediate cycle, then repeats on the configured interval
// until the context is canceled. Cycle failures are logged, never fatal.
func (p *Pipeline) Run(ctx context.Context) error {
	p.cycle(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Pipeline) cycle(ctx context.Context) {
	start := time.Now()
	report, err := p.RunCycle(ctx)
	elapsed := time.Since(start)
	if err != nil {
		p.metrics.ObserveForecastCycle("failure", elapsed)
		p.logger.Error("pipeline cycle failed", slog.Any("error", err))
		return
	}
	outcome := "success"
	if len(report.Failed) > 0 {
		outcome = "partial"
	}
	p.metrics.ObserveForecastCycle(outcome, elapsed)
	p.logger.Info("pipeline cycle complete",
		slog.Int("results", len(report.Results)),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("elapsed", elapsed))
}

// RunCycle performs one full cycle and returns the report it produced. The
// returned error is reserved for failures that prevent any forecasting at
// all, such as an unreachable product list.
func (p *Pipeline) RunCycle(ctx context.Context) (forecast.Report, error) {
	skus, err := p.listSKUs(ctx)
	if err != nil {
		return forecast.Report{}, fmt.Errorf("pipeline: list skus: %w", err)
	}
	if len(skus) == 0 {
		return forecast.Report{}, errors.New("pipeline: no skus to forecast")
	}

	var mu sync.Mutex
	results := make([]forecast.Result, 0, len(skus))
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, sku := range skus {
		sku := sku
		g.Go(func() error {
			result, err := p.engine.Forecast(gctx, sku)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("forecast failed", slog.String("sku", sku), slog.Any("error", err))
				failed = append(failed, sku)
				return nil
			}
			results = append(results, result)
			return nil
		})
	}
	// Goroutines only report nil; Wait exists to join them.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return forecast.Report{}, err
	}

	report := forecast.NewReport(p.now(), results, failed)
	p.mu.Lock()
	p.latest = report
	p.hasReport = true
	p.mu.Unlock()

	p.deliver(ctx, report)
	p.evaluateAlerts(ctx)
	return report, nil
}

// listSKUs prefers the catalog's pinned list and falls back to the upstream
// product list when the catalog does not pin one.
func (p *Pipeline) listSKUs(ctx context.Context) ([]string, error) {
	if p.catalog != nil {
		if skus := p.catalog.SKUs(); len(skus) > 0 {
			return skus, nil
		}
	}
	return p.source.ListSKUs(ctx)
}

func (p *Pipeline) deliver(ctx context.Context, report forecast.Report) {
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, report); err != nil {
			p.logger.Error("publish failed", slog.Any("error", err))
		}
	}
	if p.notifier == nil || p.composer == nil {
		return
	}
	message, err := p.composer.Compose(report)
	if err != nil {
		p.logger.Error("compose notification failed", slog.Any("error", err))
		return
	}
	if err := p.notifier.Send(ctx, message); err != nil {
		p.logger.Error("send notification failed", slog.Any("error", err))
	}
}

func (p *Pipeline) evaluateAlerts(ctx context.Context) {
	if len(p.rules) == 0 || p.monitor == nil {
		return
	}
	firings, errs := alerts.EvaluateAll(p.rules, p.monitor.Overview())
	for _, err := range errs {
		p.logger.Error("alert rule evaluation failed", slog.Any("error", err))
	}
	for _, firing := range firings {
		p.logger.Warn("health alert firing",
			slog.String("rule", firing.Rule.Name),
			slog.String("severity", firing.Rule.Severity),
			slog.String("endpoint", firing.Endpoint),
			slog.String("classification", string(firing.Status.Classification)))
		if p.notifier == nil {
			continue
		}
		message := firing.Rule.Message
		if message == "" {
			message = fmt.Sprintf("[%s] %s: endpoint %s is %s (error rate %.2f, mean latency %.0fms)",
				firing.Rule.Severity, firing.Rule.Name, firing.Endpoint,
				firing.Status.Classification, firing.Status.ErrorRate, firing.Status.MeanLatencyMS)
		}
		if err := p.notifier.Send(ctx, message); err != nil {
			p.logger.Error("send alert failed", slog.String("rule", firing.Rule.Name), slog.Any("error", err))
		}
	}
}

func (p *Pipeline) now() time.Time {
	if p.clock != nil {
		return p.clock()
	}
	return time.Now().UTC()
}
