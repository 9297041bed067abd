package repositories

import "github.com/jmoiron/sqlx"

// Repositories bundles all persistence access behind a single constructor.
type Repositories struct {
	Rules        *RuleRepository
	Alerts       *AlertRepository
	Incidents    *IncidentRepository
	Escalations  *EscalationRepository
	Remediations *RemediationRepository
}

// New wires every repository against the shared database handle.
func New(db *sqlx.DB) *Repositories {
	return &Repositories{
		Rules:        NewRuleRepository(db),
		Alerts:       NewAlertRepository(db),
		Incidents:    NewIncidentRepository(db),
		Escalations:  NewEscalationRepository(db),
		Remediations: NewRemediationRepository(db),
	}
}
