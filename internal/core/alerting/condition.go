package alerting

import (
	"fmt"
	"math"
	"strings"
)

// Operator is a comparison operator usable in a rule condition.
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// Condition is a parsed rule predicate over a metric snapshot. Evaluation
// never fails: a missing metric or NaN on either side means not-fired.
type Condition interface {
	Eval(snapshot MetricSnapshot) bool
	Metrics() []string
	String() string
	Validate() error
}

// Comparison compares one metric against a literal threshold.
type Comparison struct {
	Metric    string   `json:"metric"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
}

func (c *Comparison) Eval(snapshot MetricSnapshot) bool {
	value, ok := snapshot.Value(c.Metric)
	if !ok {
		return false
	}
	if math.IsNaN(value) || math.IsNaN(c.Threshold) {
		return false
	}

	switch c.Operator {
	case OpGreaterThan:
		return value > c.Threshold
	case OpGreaterOrEqual:
		return value >= c.Threshold
	case OpLessThan:
		return value < c.Threshold
	case OpLessOrEqual:
		return value <= c.Threshold
	case OpEqual:
		return value == c.Threshold
	case OpNotEqual:
		return value != c.Threshold
	default:
		return false
	}
}

func (c *Comparison) Metrics() []string {
	return []string{c.Metric}
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %g", c.Metric, c.Operator, c.Threshold)
}

func (c *Comparison) Validate() error {
	if c.Metric == "" {
		return fmt.Errorf("comparison metric is required")
	}
	switch c.Operator {
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpEqual, OpNotEqual:
	default:
		return fmt.Errorf("unknown operator: %q", c.Operator)
	}
	if math.IsNaN(c.Threshold) {
		return fmt.Errorf("threshold must not be NaN")
	}
	return nil
}

// And fires only when both sides fire.
type And struct {
	Left  Condition `json:"left"`
	Right Condition `json:"right"`
}

func (a *And) Eval(snapshot MetricSnapshot) bool {
	return a.Left.Eval(snapshot) && a.Right.Eval(snapshot)
}

func (a *And) Metrics() []string {
	metrics := append([]string{}, a.Left.Metrics()...)
	return append(metrics, a.Right.Metrics()...)
}

func (a *And) String() string {
	return strings.Join([]string{a.Left.String(), a.Right.String()}, " AND ")
}

func (a *And) Validate() error {
	if a.Left == nil || a.Right == nil {
		return fmt.Errorf("AND condition requires two operands")
	}
	if err := a.Left.Validate(); err != nil {
		return err
	}
	return a.Right.Validate()
}
