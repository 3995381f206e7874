// Package compliance evaluates destination-market rule sets against a lot's recorded facts.
// Evaluation is pure: persisting the verdict is the caller's job.
package compliance

import (
	"fmt"

	"lotauction/internal/domain"
)

// Verdict is the complete diagnostic set for one evaluation.
type Verdict struct {
	Destination    string
	Outcomes       []domain.RuleOutcome
	Failed         bool
	CriticalFailed bool
}

func (v Verdict) Passed() bool { return !v.Failed }

type Engine struct {
	registry Registry
}

func NewEngine(r Registry) *Engine {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Engine{registry: r}
}

func (e *Engine) Destinations() []string { return e.registry.Destinations() }

// Evaluate runs every rule registered for f.Destination, in order. A rule that
// panics is recorded as a failed outcome and the remaining rules still run.
// The only error is an unknown destination.
func (e *Engine) Evaluate(f Facts) (Verdict, error) {
	rules, ok := e.registry.Rules(f.Destination)
	if !ok {
		return Verdict{}, domain.Validation("unknown destination %q", f.Destination)
	}

	v := Verdict{Destination: f.Destination, Outcomes: make([]domain.RuleOutcome, 0, len(rules))}
	for _, r := range rules {
		passed, why := run(r, f)
		v.Outcomes = append(v.Outcomes, domain.RuleOutcome{
			Code:        r.Code,
			Category:    r.Category,
			Severity:    r.Severity,
			Passed:      passed,
			Explanation: why,
		})
		if !passed {
			v.Failed = true
			if r.Severity == domain.SeverityCritical {
				v.CriticalFailed = true
			}
		}
	}
	return v, nil
}

func run(r Rule, f Facts) (passed bool, why string) {
	defer func() {
		if p := recover(); p != nil {
			passed, why = false, fmt.Sprintf("rule could not be evaluated: %v", p)
		}
	}()
	if r.Check == nil {
		return false, "rule has no predicate"
	}
	return r.Check(f)
}
