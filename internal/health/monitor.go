package health

import (
	"time"

	"github.com/horiens/restock/internal/config"
)

// Classification buckets upstream reliability for cache trust decisions.
type Classification string

const (
	// Healthy means the endpoint can be called freely.
	Healthy Classification = "healthy"
	// Degraded means the endpoint still answers but slowly or flakily;
	// cached data is preferred over fresh fetches.
	Degraded Classification = "degraded"
	// Unhealthy means the endpoint should not be trusted with new calls
	// while usable cached data exists.
	Unhealthy Classification = "unhealthy"
)

// Status is the derived health snapshot for one endpoint. It is recomputed
// from the current sample window on every call and never persisted as ground
// truth.
type Status struct {
	Endpoint       string         `json:"endpoint"`
	Classification Classification `json:"classification"`
	ComputedAt     time.Time      `json:"computed_at"`
	SampleCount    int            `json:"sample_count"`
	MeanLatencyMS  float64        `json:"mean_latency_ms"`
	ErrorRate      float64        `json:"error_rate"`
}

// Monitor classifies endpoint health from the sampler's trailing window.
type Monitor struct {
	sampler *Sampler
	cfg     config.HealthConfig
	now     func() time.Time
}

// NewMonitor binds a monitor to a sampler. The config must already be
// validated; threshold ordering is a startup invariant, not re-checked here.
func NewMonitor(sampler *Sampler, cfg config.HealthConfig) *Monitor {
	return &Monitor{
		sampler: sampler,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Classify recomputes the endpoint's health from the current window. Below
// the minimum sample count the endpoint defaults to healthy: too little
// evidence to distrust the upstream.
func (m *Monitor) Classify(endpoint string) Status {
	if m == nil || m.sampler == nil {
		return Status{Endpoint: endpoint, Classification: Healthy, ComputedAt: time.Now()}
	}
	status := Status{
		Endpoint:       endpoint,
		Classification: Healthy,
		ComputedAt:     m.now(),
	}

	window := m.sampler.Window(endpoint, time.Duration(m.cfg.WindowSeconds)*time.Second)
	status.SampleCount = len(window)
	if len(window) == 0 {
		return status
	}

	var latencySum float64
	failures := 0
	for _, sample := range window {
		latencySum += sample.LatencyMS
		if sample.Outcome != OutcomeSuccess {
			failures++
		}
	}
	status.MeanLatencyMS = latencySum / float64(len(window))
	status.ErrorRate = float64(failures) / float64(len(window))

	if len(window) < m.cfg.MinSamples {
		return status
	}

	switch {
	case status.ErrorRate > m.cfg.ErrorUnhealthyThreshold ||
		status.MeanLatencyMS > m.cfg.LatencyUnhealthyThresholdMS:
		status.Classification = Unhealthy
	case status.ErrorRate > m.cfg.ErrorDegradedThreshold ||
		status.MeanLatencyMS > m.cfg.LatencyDegradedThresholdMS:
		status.Classification = Degraded
	}
	return status
}

// Overview classifies every endpoint the sampler has seen.
func (m *Monitor) Overview() []Status {
	if m == nil || m.sampler == nil {
		return nil
	}
	endpoints := m.sampler.Endpoints()
	out := make([]Status, 0, len(endpoints))
	for _, endpoint := range endpoints {
		out = append(out, m.Classify(endpoint))
	}
	return out
}
