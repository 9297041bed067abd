package correlation

import (
	"time"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
)

// Incident groups one or more alerts believed to share a root cause. An
// alert belongs to at most one open incident at a time; constituent alerts
// are ordered by detection time.
type Incident struct {
	ID         string           `json:"id" db:"id"`
	Status     IncidentStatus   `json:"status" db:"status"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy string           `json:"resolved_by,omitempty" db:"resolved_by"`
	Alerts     []*alerting.Alert `json:"alerts" db:"-"`
}

// AlertIDs returns the constituent alert ids in detection order.
func (i *Incident) AlertIDs() []string {
	ids := make([]string, 0, len(i.Alerts))
	for _, a := range i.Alerts {
		ids = append(ids, a.ID)
	}
	return ids
}
