package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/horiens/restock/internal/config"
)

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		WindowSeconds:               900,
		MinSamples:                  5,
		MaxSamples:                  100,
		ErrorDegradedThreshold:      0.05,
		ErrorUnhealthyThreshold:     0.25,
		LatencyDegradedThresholdMS:  1500,
		LatencyUnhealthyThresholdMS: 5000,
	}
}

func recordN(sampler *Sampler, endpoint string, n int, latency time.Duration, outcome Outcome) {
	for i := 0; i < n; i++ {
		sampler.Record(endpoint, latency, outcome)
	}
}

func TestClassifyHealthyBelowMinSamples(t *testing.T) {
	sampler := NewSampler(15*time.Minute, 100)
	monitor := NewMonitor(sampler, testHealthConfig())

	// Every call failed, but four samples are not enough evidence.
	recordN(sampler, "sales", 4, 100*time.Millisecond, OutcomeFailure)

	status := monitor.Classify("sales")
	require.Equal(t, Healthy, status.Classification)
	require.Equal(t, 4, status.SampleCount)
	require.Equal(t, 1.0, status.ErrorRate, "stats are still reported below the minimum")
}

func TestClassifyNoSamples(t *testing.T) {
	monitor := NewMonitor(NewSampler(15*time.Minute, 100), testHealthConfig())

	status := monitor.Classify("sales")
	require.Equal(t, Healthy, status.Classification)
	require.Zero(t, status.SampleCount)
}

func TestClassifyDegradedByErrorRate(t *testing.T) {
	sampler := NewSampler(15*time.Minute, 100)
	monitor := NewMonitor(sampler, testHealthConfig())

	recordN(sampler, "sales", 9, 100*time.Millisecond, OutcomeSuccess)
	recordN(sampler, "sales", 1, 100*time.Millisecond, OutcomeFailure)

	status := monitor.Classify("sales")
	require.Equal(t, Degraded, status.Classification)
	require.InDelta(t, 0.1, status.ErrorRate, 1e-9)
}

func TestClassifyUnhealthyByErrorRate(t *testing.T) {
	sampler := NewSampler(15*time.Minute, 100)
	monitor := NewMonitor(sampler, testHealthConfig())

	recordN(sampler, "sales", 6, 100*time.Millisecond, OutcomeSuccess)
	recordN(sampler, "sales", 4, 100*time.Millisecond, OutcomeFailure)

	require.Equal(t, Unhealthy, monitor.Classify("sales").Classification)
}

func TestClassifyDegradedByLatency(t *testing.T) {
	sampler := NewSampler(15*time.Minute, 100)
	monitor := NewMonitor(sampler, testHealthConfig())

	recordN(sampler, "stocks", 10, 2*time.Second, OutcomeSuccess)

	status := monitor.Classify("stocks")
	require.Equal(t, Degraded, status.Classification)
	require.InDelta(t, 2000, status.MeanLatencyMS, 1e-9)
}

func TestClassifyUnhealthyByLatency(t *testing.T) {
	sampler := NewSampler(15*time.Minute, 100)
	monitor := NewMonitor(sampler, testHealthConfig())

	recordN(sampler, "stocks", 10, 6*time.Second, OutcomeSuccess)

	require.Equal(t, Unhealthy, monitor.Classify("stocks").Classification)
}

func TestClassifyBoundaryIsInclusive(t *testing.T) {
	sampler := NewSampler(15*time.Minute, 100)
	cfg := testHealthConfig()
	cfg.ErrorDegradedThreshold = 0.5
	monitor := NewMonitor(sampler, cfg)

	// Exactly at the degraded threshold stays healthy; only exceeding trips.
	recordN(sampler, "sales", 5, 100*time.Millisecond, OutcomeSuccess)
	recordN(sampler, "sales", 5, 100*time.Millisecond, OutcomeFailure)

	require.Equal(t, Healthy, monitor.Classify("sales").Classification)
}

func TestClassifyNilMonitor(t *testing.T) {
	var monitor *Monitor

	status := monitor.Classify("sales")
	require.Equal(t, "sales", status.Endpoint)
	require.Equal(t, Healthy, status.Classification)
	require.False(t, status.ComputedAt.IsZero())
}

func TestClassifyNilSampler(t *testing.T) {
	monitor := NewMonitor(nil, testHealthConfig())

	status := monitor.Classify("stocks")
	require.Equal(t, Healthy, status.Classification)
	require.Zero(t, status.SampleCount)
}

func TestOverviewCoversAllEndpoints(t *testing.T) {
	sampler := NewSampler(15*time.Minute, 100)
	monitor := NewMonitor(sampler, testHealthConfig())

	recordN(sampler, "sales", 10, 100*time.Millisecond, OutcomeSuccess)
	recordN(sampler, "stocks", 10, 6*time.Second, OutcomeSuccess)

	overview := monitor.Overview()
	require.Len(t, overview, 2)
	require.Equal(t, "sales", overview[0].Endpoint)
	require.Equal(t, Healthy, overview[0].Classification)
	require.Equal(t, "stocks", overview[1].Endpoint)
	require.Equal(t, Unhealthy, overview[1].Classification)
}
