package alerting

import (
	"fmt"
	"time"
)

// RuleKind identifies which engine consumes a rule.
type RuleKind string

const (
	RuleKindCorrelation RuleKind = "correlation"
	RuleKindEscalation  RuleKind = "escalation"
	RuleKindRemediation RuleKind = "remediation"
)

// Severity orders alerts for evaluation and presentation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank returns the ordering weight of a severity, highest first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// EscalationLevel is one configured (delay, action) step of an escalation
// rule. Levels are kept strictly ascending by AfterSeconds.
type EscalationLevel struct {
	Level        int    `json:"level" db:"level"`
	AfterSeconds int    `json:"after_seconds" db:"after_seconds"`
	Action       string `json:"action" db:"action"`
	Channel      string `json:"channel" db:"channel"`
}

// Rule is the persisted configuration shared by the three rule kinds.
// Correlation rules create alerts, escalation rules drive notification
// levels, remediation rules trigger bounded corrective actions.
type Rule struct {
	ID         string   `json:"id" db:"id"`
	Name       string   `json:"name" db:"name"`
	Kind       RuleKind `json:"kind" db:"kind"`
	AlertType  string   `json:"alert_type" db:"alert_type"`
	Expression string   `json:"expression" db:"expression"`
	Severity   Severity `json:"severity" db:"severity"`
	Message    string   `json:"message" db:"message"`
	Enabled    bool     `json:"enabled" db:"enabled"`

	// Remediation guards
	Action               string            `json:"action,omitempty" db:"action"`
	ActionParams         map[string]string `json:"action_params,omitempty" db:"-"`
	CooldownSeconds      int               `json:"cooldown_seconds,omitempty" db:"cooldown_seconds"`
	MaxExecutions        int               `json:"max_executions,omitempty" db:"max_executions"`
	ExecutionWindowSecs  int               `json:"execution_window_seconds,omitempty" db:"execution_window_seconds"`

	// Escalation steps
	Levels []EscalationLevel `json:"levels,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Parsed condition, cached after first use.
	cond Condition
}

// Condition returns the parsed condition for the rule's expression, parsing
// and caching it on first use.
func (r *Rule) Condition() (Condition, error) {
	if r.cond != nil {
		return r.cond, nil
	}
	cond, err := ParseCondition(r.Expression)
	if err != nil {
		return nil, err
	}
	r.cond = cond
	return cond, nil
}

// Validate checks the rule at creation/update time. Conditions that do not
// parse are rejected here, never at evaluation time.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.AlertType == "" {
		return fmt.Errorf("rule alert_type is required")
	}

	switch r.Kind {
	case RuleKindCorrelation, RuleKindEscalation, RuleKindRemediation:
	default:
		return fmt.Errorf("unknown rule kind: %q", r.Kind)
	}

	switch r.Severity {
	case SeverityCritical, SeverityWarning, SeverityInfo:
	default:
		return fmt.Errorf("unknown severity: %q", r.Severity)
	}

	if r.Kind != RuleKindEscalation {
		if _, err := ParseCondition(r.Expression); err != nil {
			return fmt.Errorf("invalid condition: %w", err)
		}
	}

	switch r.Kind {
	case RuleKindRemediation:
		if r.Action == "" {
			return fmt.Errorf("remediation rule requires an action")
		}
		if r.CooldownSeconds < 0 {
			return fmt.Errorf("cooldown_seconds must not be negative")
		}
		if r.MaxExecutions < 0 || r.ExecutionWindowSecs < 0 {
			return fmt.Errorf("execution window limits must not be negative")
		}
		if r.MaxExecutions > 0 && r.ExecutionWindowSecs == 0 {
			return fmt.Errorf("max_executions requires execution_window_seconds")
		}
	case RuleKindEscalation:
		if len(r.Levels) == 0 {
			return fmt.Errorf("escalation rule requires at least one level")
		}
		prev := -1
		for i, level := range r.Levels {
			if level.AfterSeconds <= prev {
				return fmt.Errorf("escalation levels must be strictly ascending by after_seconds (level %d)", i)
			}
			if level.Action == "" {
				return fmt.Errorf("escalation level %d requires an action", i)
			}
			prev = level.AfterSeconds
		}
	}

	return nil
}
