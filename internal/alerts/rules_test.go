package alerts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/horiens/restock/internal/config"
	"github.com/horiens/restock/internal/health"
)

func TestCompileValidRules(t *testing.T) {
	rules, err := Compile([]config.AlertRuleConfig{
		{Name: "unhealthy", When: `classification == "unhealthy"`, Severity: "critical"},
		{Name: "slow-sales", When: `endpoint == "sales" && mean_latency_ms > 2000.0`},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, "critical", rules[0].Severity)
	require.Equal(t, "warning", rules[1].Severity, "severity defaults to warning")
}

func TestCompileRejectsBrokenExpression(t *testing.T) {
	_, err := Compile([]config.AlertRuleConfig{
		{Name: "broken", When: `classification ==`},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}

func TestCompileRejectsNonBoolean(t *testing.T) {
	_, err := Compile([]config.AlertRuleConfig{
		{Name: "not-bool", When: `mean_latency_ms + 1.0`},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "must return bool")
}

func TestRuleEvaluate(t *testing.T) {
	rules, err := Compile([]config.AlertRuleConfig{
		{Name: "flaky", When: `error_rate > 0.25 || classification == "unhealthy"`},
	})
	require.NoError(t, err)

	matched, err := rules[0].Evaluate(health.Status{
		Endpoint:       "sales",
		Classification: health.Degraded,
		ErrorRate:      0.3,
	})
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = rules[0].Evaluate(health.Status{
		Endpoint:       "sales",
		Classification: health.Healthy,
		ErrorRate:      0.0,
	})
	require.NoError(t, err)
	require.False(t, matched)
}

func TestEvaluateAll(t *testing.T) {
	rules, err := Compile([]config.AlertRuleConfig{
		{Name: "unhealthy", When: `classification == "unhealthy"`},
		{Name: "busy", When: `sample_count > 100`},
	})
	require.NoError(t, err)

	statuses := []health.Status{
		{Endpoint: "sales", Classification: health.Unhealthy, SampleCount: 10},
		{Endpoint: "stocks", Classification: health.Healthy, SampleCount: 500},
		{Endpoint: "products", Classification: health.Healthy, SampleCount: 3},
	}

	firings, errs := EvaluateAll(rules, statuses)
	require.Empty(t, errs)
	require.Len(t, firings, 2)
	require.Equal(t, "unhealthy", firings[0].Rule.Name)
	require.Equal(t, "sales", firings[0].Endpoint)
	require.Equal(t, "busy", firings[1].Rule.Name)
	require.Equal(t, "stocks", firings[1].Endpoint)
}
