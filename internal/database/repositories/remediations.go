package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/axmon/axmon-backend-go/internal/core/remediation"
)

// RemediationRepository is the append-only store of remediation executions
// and answers the cooldown/rate-limit guard queries.
type RemediationRepository struct {
	db *sqlx.DB
}

// NewRemediationRepository creates a remediation execution repository.
func NewRemediationRepository(db *sqlx.DB) *RemediationRepository {
	return &RemediationRepository{db: db}
}

type remediationRow struct {
	ID             string    `db:"id"`
	RuleID         string    `db:"rule_id"`
	TriggerData    string    `db:"trigger_data"`
	StartTime      time.Time `db:"start_time"`
	CompletionTime time.Time `db:"completion_time"`
	Outcome        string    `db:"outcome"`
	Detail         string    `db:"detail"`
}

func (r remediationRow) toExecution() (*remediation.Execution, error) {
	execution := &remediation.Execution{
		ID:             r.ID,
		RuleID:         r.RuleID,
		StartTime:      r.StartTime,
		CompletionTime: r.CompletionTime,
		Outcome:        remediation.Outcome(r.Outcome),
		Detail:         r.Detail,
	}
	if r.TriggerData != "" {
		if err := json.Unmarshal([]byte(r.TriggerData), &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("execution %s has malformed trigger_data: %w", r.ID, err)
		}
	}
	return execution, nil
}

// Record appends a terminal execution record.
func (r *RemediationRepository) Record(ctx context.Context, execution *remediation.Execution) error {
	trigger, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to encode trigger data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO remediation_executions (id, rule_id, trigger_data, start_time,
			completion_time, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		execution.ID, execution.RuleID, string(trigger), execution.StartTime,
		execution.CompletionTime, string(execution.Outcome), execution.Detail)
	if err != nil {
		return fmt.Errorf("failed to record remediation execution: %w", err)
	}
	return nil
}

// MostRecentAttempt returns the latest actual attempt (Success or Failed)
// for a rule, or nil. Guard skips never extend a cooldown.
func (r *RemediationRepository) MostRecentAttempt(ctx context.Context, ruleID string) (*remediation.Execution, error) {
	var row remediationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM remediation_executions
		WHERE rule_id = ? AND outcome IN (?, ?)
		ORDER BY completion_time DESC LIMIT 1`,
		ruleID, string(remediation.OutcomeSuccess), string(remediation.OutcomeFailed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last execution for rule %s: %w", ruleID, err)
	}
	return row.toExecution()
}

// CountAttemptsSince counts actual attempts started in the trailing window.
func (r *RemediationRepository) CountAttemptsSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM remediation_executions
		WHERE rule_id = ? AND start_time >= ? AND outcome IN (?, ?)`,
		ruleID, since, string(remediation.OutcomeSuccess), string(remediation.OutcomeFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to count executions for rule %s: %w", ruleID, err)
	}
	return count, nil
}

// List returns executions newest-first; empty ruleID means all rules.
func (r *RemediationRepository) List(ctx context.Context, ruleID string, limit int) ([]*remediation.Execution, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT * FROM remediation_executions ORDER BY start_time DESC LIMIT ?`
	args := []interface{}{limit}
	if ruleID != "" {
		query = `SELECT * FROM remediation_executions WHERE rule_id = ? ORDER BY start_time DESC LIMIT ?`
		args = []interface{}{ruleID, limit}
	}

	var rows []remediationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list remediation executions: %w", err)
	}

	executions := make([]*remediation.Execution, 0, len(rows))
	for _, row := range rows {
		execution, err := row.toExecution()
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, nil
}
