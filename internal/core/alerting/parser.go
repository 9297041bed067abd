package alerting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Condition expressions are stored as text on the rule ("cpu >= 90 AND
// blocking_chains >= 2") and parsed into the AST when the rule is created or
// loaded. Anything unparseable is rejected here so the evaluator itself can
// never encounter a malformed condition.

var clausePattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s*(>=|<=|==|!=|>|<)\s*(-?[0-9]+(?:\.[0-9]+)?)\s*$`)

var andSplitter = regexp.MustCompile(`(?i)\s+AND\s+`)

// ParseCondition parses a condition expression into its AST form.
func ParseCondition(expression string) (Condition, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("condition expression is empty")
	}

	clauses := andSplitter.Split(expression, -1)

	conditions := make([]Condition, 0, len(clauses))
	for _, clause := range clauses {
		cmp, err := parseComparison(clause)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cmp)
	}

	// Left-fold into nested AND nodes.
	cond := conditions[0]
	for _, next := range conditions[1:] {
		cond = &And{Left: cond, Right: next}
	}

	if err := cond.Validate(); err != nil {
		return nil, err
	}
	return cond, nil
}

func parseComparison(clause string) (*Comparison, error) {
	match := clausePattern.FindStringSubmatch(clause)
	if match == nil {
		return nil, fmt.Errorf("malformed condition clause: %q", strings.TrimSpace(clause))
	}

	threshold, err := strconv.ParseFloat(match[3], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold in clause %q: %w", strings.TrimSpace(clause), err)
	}

	return &Comparison{
		Metric:    match[1],
		Operator:  Operator(match[2]),
		Threshold: threshold,
	}, nil
}
