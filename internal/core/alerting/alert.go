package alerting

import "time"

// AlertStatus is the lifecycle state of an alert. Transitions are
// Active -> Acknowledged -> Resolved or Active -> Resolved; Resolved is
// terminal.
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// Alert is a single detected condition breach. Alerts are soft-deleted only
// by explicit admin action, never by the pipeline.
type Alert struct {
	ID             string      `json:"id" db:"id"`
	RuleID         string      `json:"rule_id" db:"rule_id"`
	Type           string      `json:"type" db:"type"`
	Severity       Severity    `json:"severity" db:"severity"`
	Message        string      `json:"message" db:"message"`
	Status         AlertStatus `json:"status" db:"status"`
	Timestamp      time.Time   `json:"timestamp" db:"timestamp"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	CreatedBy      string      `json:"created_by" db:"created_by"`
	Deleted        bool        `json:"-" db:"deleted"`
}

// CanAcknowledge reports whether an acknowledge transition is permitted.
func (a *Alert) CanAcknowledge() bool {
	return a.Status == StatusActive
}

// CanResolve reports whether a resolve transition is permitted.
func (a *Alert) CanResolve() bool {
	return a.Status == StatusActive || a.Status == StatusAcknowledged
}
