package alerts

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/horiens/restock/internal/config"
	"github.com/horiens/restock/internal/health"
)

// Rule is a compiled alert condition evaluated against one endpoint's health
// status after each pipeline cycle.
type Rule struct {
	Name     string
	Severity string
	Message  string
	source   string
	program  cel.Program
}

// Firing is a rule that matched an endpoint's status this cycle.
type Firing struct {
	Rule     Rule
	Endpoint string
	Status   health.Status
}

// newEnvironment declares the CEL variables rule conditions may reference.
func newEnvironment() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("endpoint", cel.StringType),
		cel.Variable("classification", cel.StringType),
		cel.Variable("error_rate", cel.DoubleType),
		cel.Variable("mean_latency_ms", cel.DoubleType),
		cel.Variable("sample_count", cel.IntType),
		cel.HomogeneousAggregateLiterals(),
	)
	if err != nil {
		return nil, fmt.Errorf("alerts: build environment: %w", err)
	}
	return env, nil
}

// Compile validates and compiles every configured rule at startup so a broken
// condition fails the process instead of a cycle.
func Compile(rules []config.AlertRuleConfig) ([]Rule, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	env, err := newEnvironment()
	if err != nil {
		return nil, err
	}
	compiled := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		source := strings.TrimSpace(rule.When)
		ast, issues := env.Compile(source)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("alerts: compile rule %q: %w", rule.Name, issues.Err())
		}
		if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
			return nil, fmt.Errorf("alerts: rule %q must return bool, got %s", rule.Name, cel.FormatCELType(t))
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("alerts: program for rule %q: %w", rule.Name, err)
		}
		severity := strings.TrimSpace(rule.Severity)
		if severity == "" {
			severity = "warning"
		}
		compiled = append(compiled, Rule{
			Name:     rule.Name,
			Severity: severity,
			Message:  rule.Message,
			source:   source,
			program:  program,
		})
	}
	return compiled, nil
}

// Source returns the original CEL condition for logging.
func (r Rule) Source() string { return r.source }

// Evaluate runs the rule against one endpoint's status.
func (r Rule) Evaluate(status health.Status) (bool, error) {
	val, _, err := r.program.Eval(map[string]any{
		"endpoint":        status.Endpoint,
		"classification":  string(status.Classification),
		"error_rate":      status.ErrorRate,
		"mean_latency_ms": status.MeanLatencyMS,
		"sample_count":    int64(status.SampleCount),
	})
	if err != nil {
		return false, fmt.Errorf("alerts: eval rule %q: %w", r.Name, err)
	}
	switch v := val.(type) {
	case types.Bool:
		return bool(v), nil
	case ref.Val:
		if v.Type() == types.BoolType {
			if b, ok := v.Value().(bool); ok {
				return b, nil
			}
		}
	}
	return false, fmt.Errorf("alerts: rule %q yielded non-bool result %T", r.Name, val)
}

// EvaluateAll runs every rule against every status, returning the firings.
// Evaluation errors are collected, not fatal: one broken rule must not mute
// the rest.
func EvaluateAll(rules []Rule, statuses []health.Status) ([]Firing, []error) {
	var firings []Firing
	var errs []error
	for _, status := range statuses {
		for _, rule := range rules {
			matched, err := rule.Evaluate(status)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if matched {
				firings = append(firings, Firing{Rule: rule, Endpoint: status.Endpoint, Status: status})
			}
		}
	}
	return firings, errs
}
