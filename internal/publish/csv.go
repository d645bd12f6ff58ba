package publish

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/horiens/restock/internal/forecast"
)

// Publisher persists a report snapshot somewhere operators can read it.
type Publisher interface {
	Publish(ctx context.Context, report forecast.Report) error
}

// CSV writes the full report to a spreadsheet-shaped file, replacing the
// previous snapshot atomically so readers never observe a partial write.
type CSV struct {
	path string
}

// NewCSV constructs the publisher. The parent directory must already exist.
func NewCSV(path string) (*CSV, error) {
	if path == "" {
		return nil, fmt.Errorf("publish: csv path required")
	}
	return &CSV{path: path}, nil
}

var csvHeader = []string{
	"sku",
	"recommended_order_qty",
	"days_of_cover",
	"urgency",
	"confidence",
	"avg_daily_demand",
	"history_days",
	"available",
	"computed_at",
}

func (p *CSV) Publish(ctx context.Context, report forecast.Report) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".restock-*.csv")
	if err != nil {
		return fmt.Errorf("publish: create temp csv: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(csvHeader); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("publish: write csv header: %w", err)
	}
	for _, result := range report.Results {
		if err := ctx.Err(); err != nil {
			_ = tmp.Close()
			return err
		}
		cover := "ample"
		if !result.DaysOfCover.Ample() {
			cover = strconv.FormatFloat(float64(result.DaysOfCover), 'f', 2, 64)
		}
		row := []string{
			result.SKU,
			strconv.Itoa(result.RecommendedOrderQty),
			cover,
			string(result.Urgency),
			string(result.Confidence),
			strconv.FormatFloat(result.Basis.AvgDailyDemand, 'f', 4, 64),
			strconv.Itoa(result.Basis.HistoryDays),
			strconv.Itoa(result.Basis.Available),
			result.ComputedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := writer.Write(row); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("publish: write csv row for %s: %w", result.SKU, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("publish: flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("publish: close temp csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("publish: replace %s: %w", p.path, err)
	}
	return nil
}
