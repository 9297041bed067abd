package alerting

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Firing is one rule whose condition holds against a snapshot, with the
// metric values that matched it.
type Firing struct {
	Rule   *Rule              `json:"rule"`
	Values map[string]float64 `json:"values"`
}

// Evaluator maps a metric snapshot and a set of enabled rules to the rules
// that currently fire. It has no side effects and is safe for concurrent use
// across snapshots.
type Evaluator struct {
	logger *logrus.Logger
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(logger *logrus.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate returns the firing rules ordered by severity descending, then rule
// id ascending. Disabled rules are skipped; rules with malformed conditions
// are logged and treated as never firing.
func (e *Evaluator) Evaluate(snapshot MetricSnapshot, rules []*Rule) []Firing {
	firings := make([]Firing, 0, len(rules))

	for _, rule := range rules {
		if rule == nil || !rule.Enabled {
			continue
		}

		cond, err := rule.Condition()
		if err != nil {
			e.logger.WithError(err).WithField("rule_id", rule.ID).Warn("Skipping rule with malformed condition")
			continue
		}

		if !cond.Eval(snapshot) {
			continue
		}

		values := make(map[string]float64)
		for _, metric := range cond.Metrics() {
			if v, ok := snapshot.Value(metric); ok {
				values[metric] = v
			}
		}

		firings = append(firings, Firing{Rule: rule, Values: values})
	}

	sort.SliceStable(firings, func(i, j int) bool {
		ri, rj := firings[i].Rule, firings[j].Rule
		if ri.Severity.Rank() != rj.Severity.Rank() {
			return ri.Severity.Rank() > rj.Severity.Rank()
		}
		return ri.ID < rj.ID
	})

	return firings
}
