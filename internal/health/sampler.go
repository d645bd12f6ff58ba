package health

import (
	"sort"
	"sync"
	"time"
)

// Outcome captures whether an upstream call succeeded.
type Outcome string

const (
	// OutcomeSuccess marks a call that returned usable data.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure marks a call that failed or timed out.
	OutcomeFailure Outcome = "failure"
)

// Sample is an immutable record of a single upstream call outcome.
type Sample struct {
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMS float64   `json:"latency_ms"`
	Outcome   Outcome   `json:"outcome"`
}

// Sampler retains a bounded rolling window of call samples per endpoint.
// Recording is best-effort instrumentation: it never fails, never blocks on
// anything but its own mutex, and growth is bounded by retention and a
// per-endpoint count cap.
type Sampler struct {
	retention time.Duration
	maxCount  int
	now       func() time.Time

	mu      sync.Mutex
	samples map[string][]Sample
}

// NewSampler constructs a sampler that evicts samples older than retention
// and keeps at most maxCount samples per endpoint.
func NewSampler(retention time.Duration, maxCount int) *Sampler {
	if retention <= 0 {
		retention = 15 * time.Minute
	}
	if maxCount <= 0 {
		maxCount = 1024
	}
	return &Sampler{
		retention: retention,
		maxCount:  maxCount,
		now:       time.Now,
		samples:   make(map[string][]Sample),
	}
}

// Record appends a sample for the endpoint. It is nil-safe so callers never
// need to guard instrumentation paths.
func (s *Sampler) Record(endpoint string, latency time.Duration, outcome Outcome) {
	if s == nil || endpoint == "" {
		return
	}
	now := s.now()
	sample := Sample{
		Endpoint:  endpoint,
		Timestamp: now,
		LatencyMS: float64(latency) / float64(time.Millisecond),
		Outcome:   outcome,
	}
	if sample.LatencyMS < 0 {
		sample.LatencyMS = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	window := append(s.evictLocked(endpoint, now), sample)
	if excess := len(window) - s.maxCount; excess > 0 {
		window = window[excess:]
	}
	s.samples[endpoint] = window
}

// Window returns the endpoint's samples within the trailing duration, ordered
// by timestamp ascending. The returned slice is a copy.
func (s *Sampler) Window(endpoint string, within time.Duration) []Sample {
	if s == nil {
		return nil
	}
	now := s.now()
	cutoff := now.Add(-within)

	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.evictLocked(endpoint, now)
	s.samples[endpoint] = window

	out := make([]Sample, 0, len(window))
	for _, sample := range window {
		if sample.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, sample)
	}
	return out
}

// Endpoints lists every endpoint with at least one retained sample, sorted
// for stable iteration.
func (s *Sampler) Endpoints() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.samples))
	for endpoint, window := range s.samples {
		if len(window) > 0 {
			out = append(out, endpoint)
		}
	}
	sort.Strings(out)
	return out
}

// evictLocked drops samples older than the retention horizon. Samples arrive
// stamped by this sampler's clock, so each window stays ascending and the
// retained suffix is found with a single scan.
func (s *Sampler) evictLocked(endpoint string, now time.Time) []Sample {
	window := s.samples[endpoint]
	cutoff := now.Add(-s.retention)
	keep := 0
	for keep < len(window) && window[keep].Timestamp.Before(cutoff) {
		keep++
	}
	return window[keep:]
}
