package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/horiens/restock/internal/config"
	"github.com/horiens/restock/internal/market"
)

// MOQResolver returns the supplier minimum order quantity for a SKU, zero
// when none applies. The catalog document backs the production resolver.
type MOQResolver func(sku string) int

// Engine turns sales history and a stock snapshot into a replenishment
// recommendation. The math is deterministic: the same inputs always produce
// the same result, so cached reads and retries never change a recommendation.
type Engine struct {
	source market.Source
	cfg    config.ForecastConfig
	moq    MOQResolver
	logger *slog.Logger
	clock  func() time.Time
}

// NewEngine constructs the engine. moq may be nil, meaning no order floors.
func NewEngine(source market.Source, cfg config.ForecastConfig, moq MOQResolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source: source,
		cfg:    cfg,
		moq:    moq,
		logger: logger.With(slog.String("agent", "forecast")),
	}
}

// Forecast computes the recommendation for one SKU from the lookback window
// of sales and the current stock snapshot.
func (e *Engine) Forecast(ctx context.Context, sku string) (Result, error) {
	now := e.now()
	from := now.AddDate(0, 0, -e.cfg.LookbackDays)

	sales, err := e.source.FetchSales(ctx, sku, from, now)
	if err != nil {
		return Result{}, fmt.Errorf("forecast: sales history for %s: %w", sku, err)
	}
	stock, err := e.source.FetchStock(ctx, sku)
	if err != nil {
		return Result{}, fmt.Errorf("forecast: stock snapshot for %s: %w", sku, err)
	}

	result := e.compute(sku, sales, stock, now)
	e.logger.Debug("forecast computed",
		slog.String("sku", sku),
		slog.Int("recommended_order_qty", result.RecommendedOrderQty),
		slog.String("confidence", string(result.Confidence)))
	return result, nil
}

// compute is the pure core of the engine. Demand is averaged over distinct
// recorded days, not the full lookback window, so sparse history is not
// diluted toward zero.
func (e *Engine) compute(sku string, sales []market.SalesRecord, stock market.StockSnapshot, now time.Time) Result {
	totalQty := 0
	days := make(map[string]struct{}, len(sales))
	for _, record := range sales {
		if record.Quantity < 0 {
			continue
		}
		totalQty += record.Quantity
		days[record.Day()] = struct{}{}
	}
	historyDays := len(days)

	demand := 0.0
	if historyDays > 0 {
		demand = float64(totalQty) / float64(historyDays)
	}
	available := stock.Available()

	cover := DaysOfCover(math.Inf(1))
	if demand > 0 {
		cover = DaysOfCover(float64(available) / demand)
	}

	recommended := 0
	if demand > 0 {
		raw := demand*float64(e.cfg.TargetCoverDays) - float64(available)
		if raw > 0 {
			recommended = int(math.Round(raw))
		}
	}
	if recommended > 0 && e.moq != nil {
		if floor := e.moq(sku); recommended < floor {
			recommended = floor
		}
	}

	return Result{
		SKU:                 sku,
		RecommendedOrderQty: recommended,
		DaysOfCover:         cover,
		Urgency:             urgencyFor(cover),
		Confidence:          e.confidence(historyDays, stock, now),
		ComputedAt:          now,
		Basis: Basis{
			AvgDailyDemand: demand,
			HistoryDays:    historyDays,
			LookbackDays:   e.cfg.LookbackDays,
			Available:      available,
			OnHand:         stock.OnHand,
			Reserved:       stock.Reserved,
			StockAsOf:      stock.CapturedAt,
		},
	}
}

// confidence grades the recommendation from two independent conditions:
// enough recorded history and a stock snapshot within the configured age.
// Both hold: high. Exactly one holds: medium. Neither: low. No history at
// all is always low regardless of snapshot freshness.
func (e *Engine) confidence(historyDays int, stock market.StockSnapshot, now time.Time) Confidence {
	if historyDays == 0 {
		return ConfidenceLow
	}

	deepHistory := historyDays >= e.cfg.MinHistoryDays
	maxAge := time.Duration(e.cfg.MaxStockAgeSeconds) * time.Second
	freshStock := !stock.CapturedAt.IsZero() && now.Sub(stock.CapturedAt) <= maxAge

	switch {
	case deepHistory && freshStock:
		return ConfidenceHigh
	case deepHistory || freshStock:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func urgencyFor(cover DaysOfCover) Urgency {
	switch {
	case cover.Ample():
		return UrgencyLow
	case cover < 10:
		return UrgencyHigh
	case cover < 20:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now().UTC()
}
