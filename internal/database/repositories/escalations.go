package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/axmon/axmon-backend-go/internal/core/escalation"
)

// EscalationRepository is the append-only store of escalation executions.
// The unique partial index on (alert_id, level, outcome='success') makes the
// Success write an atomic claim.
type EscalationRepository struct {
	db *sqlx.DB
}

// NewEscalationRepository creates an escalation execution repository.
func NewEscalationRepository(db *sqlx.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Record appends an execution. A conflicting Success for the same alert and
// level returns escalation.ErrLevelAlreadyExecuted; the caller discards its
// result.
func (r *EscalationRepository) Record(ctx context.Context, execution *escalation.Execution) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO escalation_executions (id, alert_id, rule_id, level, elapsed_seconds,
			action, channel, outcome, detail, reference_id, dispatched_at)
		VALUES (:id, :alert_id, :rule_id, :level, :elapsed_seconds,
			:action, :channel, :outcome, :detail, :reference_id, :dispatched_at)`, execution)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("alert %s level %d: %w", execution.AlertID, execution.Level, escalation.ErrLevelAlreadyExecuted)
		}
		return fmt.Errorf("failed to record escalation execution: %w", err)
	}
	return nil
}

// SuccessExists reports whether a Success record exists for the alert/level.
func (r *EscalationRepository) SuccessExists(ctx context.Context, alertID string, level int) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM escalation_executions
		WHERE alert_id = ? AND level = ? AND outcome = ?`,
		alertID, level, string(escalation.OutcomeSuccess))
	if err != nil {
		return false, fmt.Errorf("failed to query escalation history: %w", err)
	}
	return count > 0, nil
}

// ListForAlert returns the alert's escalation history, newest-first.
func (r *EscalationRepository) ListForAlert(ctx context.Context, alertID string) ([]*escalation.Execution, error) {
	var executions []*escalation.Execution
	err := r.db.SelectContext(ctx, &executions, `
		SELECT * FROM escalation_executions
		WHERE alert_id = ? ORDER BY dispatched_at DESC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations for alert %s: %w", alertID, err)
	}
	return executions, nil
}
