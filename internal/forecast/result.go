package forecast

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Confidence grades how much history backs a recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Urgency bands a result by how soon the SKU runs dry.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// DaysOfCover is how long the available stock lasts at the observed demand
// rate. Positive infinity means demand is zero and the stock never runs out;
// it serializes as the string "ample" so downstream consumers never parse an
// IEEE infinity.
type DaysOfCover float64

// Ample reports whether cover is unbounded.
func (d DaysOfCover) Ample() bool {
	return math.IsInf(float64(d), 1)
}

func (d DaysOfCover) MarshalJSON() ([]byte, error) {
	if d.Ample() {
		return json.Marshal("ample")
	}
	return []byte(strconv.FormatFloat(float64(d), 'f', 2, 64)), nil
}

func (d *DaysOfCover) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString == "ample" {
			*d = DaysOfCover(math.Inf(1))
			return nil
		}
		parsed, err := strconv.ParseFloat(asString, 64)
		if err != nil {
			return err
		}
		*d = DaysOfCover(parsed)
		return nil
	}
	var asFloat float64
	if err := json.Unmarshal(data, &asFloat); err != nil {
		return err
	}
	*d = DaysOfCover(asFloat)
	return nil
}

// Basis records the observed inputs a recommendation was computed from.
type Basis struct {
	AvgDailyDemand float64   `json:"avg_daily_demand"`
	HistoryDays    int       `json:"history_days"`
	LookbackDays   int       `json:"lookback_days"`
	Available      int       `json:"available"`
	OnHand         int       `json:"on_hand"`
	Reserved       int       `json:"reserved"`
	StockAsOf      time.Time `json:"stock_as_of"`
}

// Result is one SKU's replenishment recommendation.
type Result struct {
	SKU                 string      `json:"sku"`
	RecommendedOrderQty int         `json:"recommended_order_qty"`
	DaysOfCover         DaysOfCover `json:"days_of_cover"`
	Urgency             Urgency     `json:"urgency"`
	Confidence          Confidence  `json:"confidence"`
	ComputedAt          time.Time   `json:"computed_at"`
	Basis               Basis       `json:"basis"`
}
