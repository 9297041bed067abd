package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/remediation"
)

// Remediation actions supported against an AX environment.
const (
	ActionRestartBatchJob = "restart_batch_job"
	ActionKillSession     = "kill_session"
	ActionClearBatchError = "clear_batch_errors"
)

// SQLActionExecutor performs remediation actions directly against the
// monitored SQL Server / AX database. It is the pipeline's only write path
// into the environment.
type SQLActionExecutor struct {
	db     *sql.DB
	env    string
	logger *logrus.Logger
}

// NewSQLActionExecutor creates an executor over an existing environment pool.
func NewSQLActionExecutor(db *sql.DB, environment string, logger *logrus.Logger) *SQLActionExecutor {
	return &SQLActionExecutor{db: db, env: environment, logger: logger}
}

// PerformAction runs one bounded action. Unknown actions are an error;
// action failures are reported in the result, not panicked.
func (e *SQLActionExecutor) PerformAction(ctx context.Context, action string, params map[string]string) (remediation.ActionResult, error) {
	e.logger.WithFields(logrus.Fields{
		"environment": e.env,
		"action":      action,
	}).Info("Performing remediation action")

	switch action {
	case ActionRestartBatchJob:
		return e.restartBatchJob(ctx, params["job_id"])
	case ActionKillSession:
		return e.killSession(ctx, params["session_id"])
	case ActionClearBatchError:
		return e.clearBatchErrors(ctx)
	default:
		return remediation.ActionResult{}, fmt.Errorf("unknown remediation action: %q", action)
	}
}

// restartBatchJob puts an errored AX batch job back into the waiting state
// so the AOS batch scheduler picks it up again.
func (e *SQLActionExecutor) restartBatchJob(ctx context.Context, jobID string) (remediation.ActionResult, error) {
	if jobID == "" {
		return remediation.ActionResult{}, fmt.Errorf("restart_batch_job requires a job_id parameter")
	}

	result, err := e.db.ExecContext(ctx,
		`UPDATE BATCHJOB SET STATUS = @p1 WHERE RECID = @p2 AND STATUS = @p3`,
		batchStatusWaiting, jobID, batchStatusError)
	if err != nil {
		return remediation.ActionResult{}, fmt.Errorf("failed to restart batch job %s: %w", jobID, err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return remediation.ActionResult{
			Success: false,
			Detail:  fmt.Sprintf("batch job %s not found in error state", jobID),
		}, nil
	}

	return remediation.ActionResult{
		Success: true,
		Detail:  fmt.Sprintf("batch job %s reset to waiting", jobID),
	}, nil
}

// killSession terminates a SQL Server session. KILL does not accept
// parameters, so the session id is validated as an integer before being
// interpolated.
func (e *SQLActionExecutor) killSession(ctx context.Context, sessionID string) (remediation.ActionResult, error) {
	spid, err := strconv.Atoi(sessionID)
	if err != nil || spid <= 0 {
		return remediation.ActionResult{}, fmt.Errorf("kill_session requires a numeric session_id, got %q", sessionID)
	}

	if _, err := e.db.ExecContext(ctx, fmt.Sprintf("KILL %d", spid)); err != nil {
		return remediation.ActionResult{}, fmt.Errorf("failed to kill session %d: %w", spid, err)
	}

	return remediation.ActionResult{
		Success: true,
		Detail:  fmt.Sprintf("session %d killed", spid),
	}, nil
}

// clearBatchErrors resets every errored batch job to waiting.
func (e *SQLActionExecutor) clearBatchErrors(ctx context.Context) (remediation.ActionResult, error) {
	result, err := e.db.ExecContext(ctx,
		`UPDATE BATCHJOB SET STATUS = @p1 WHERE STATUS = @p2`,
		batchStatusWaiting, batchStatusError)
	if err != nil {
		return remediation.ActionResult{}, fmt.Errorf("failed to clear batch errors: %w", err)
	}

	affected, _ := result.RowsAffected()
	return remediation.ActionResult{
		Success: true,
		Detail:  fmt.Sprintf("%d errored batch jobs reset", affected),
	}, nil
}
