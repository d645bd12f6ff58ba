package forecast

import (
	"sort"
	"time"
)

// Report is one pipeline cycle's worth of recommendations, ordered most
// urgent first.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Results     []Result  `json:"results"`
	// Failed lists SKUs whose forecast could not be computed this cycle.
	Failed []string `json:"failed,omitempty"`
}

// NewReport sorts results by ascending days of cover so the SKUs about to run
// dry lead the report. Ties break on SKU for stable output.
func NewReport(generatedAt time.Time, results []Result, failed []string) Report {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].DaysOfCover, sorted[j].DaysOfCover
		if a != b {
			if a.Ample() {
				return false
			}
			if b.Ample() {
				return true
			}
			return a < b
		}
		return sorted[i].SKU < sorted[j].SKU
	})
	sortedFailed := make([]string, len(failed))
	copy(sortedFailed, failed)
	sort.Strings(sortedFailed)
	return Report{GeneratedAt: generatedAt, Results: sorted, Failed: sortedFailed}
}

// Actionable filters the report down to results that recommend ordering.
func (r Report) Actionable() []Result {
	out := make([]Result, 0, len(r.Results))
	for _, result := range r.Results {
		if result.RecommendedOrderQty > 0 {
			out = append(out, result)
		}
	}
	return out
}
