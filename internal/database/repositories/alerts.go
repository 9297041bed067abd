package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
)

// AlertRepository persists alerts. It backs both the correlator and the
// escalation engine's active-alert listing.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates an alert repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerting.Alert) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, type, severity, message, status, timestamp,
			resolved_at, acknowledged_at, acknowledged_by, created_by, deleted)
		VALUES (:id, :rule_id, :type, :severity, :message, :status, :timestamp,
			:resolved_at, :acknowledged_at, :acknowledged_by, :created_by, :deleted)`, alert)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetByID returns the alert or nil when absent or soft-deleted.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerting.Alert, error) {
	var alert alerting.Alert
	err := r.db.GetContext(ctx, &alert, `SELECT * FROM alerts WHERE id = ? AND deleted = 0`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %s: %w", id, err)
	}
	return &alert, nil
}

// Update persists status and acknowledgement changes.
func (r *AlertRepository) Update(ctx context.Context, alert *alerting.Alert) error {
	result, err := r.db.NamedExecContext(ctx, `
		UPDATE alerts SET status = :status, resolved_at = :resolved_at,
			acknowledged_at = :acknowledged_at, acknowledged_by = :acknowledged_by
		WHERE id = :id AND deleted = 0`, alert)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alert.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LatestActiveForRule returns the most recent unresolved alert for a rule,
// or nil when there is none. Used for re-fire suppression.
func (r *AlertRepository) LatestActiveForRule(ctx context.Context, ruleID string) (*alerting.Alert, error) {
	var alert alerting.Alert
	err := r.db.GetContext(ctx, &alert, `
		SELECT * FROM alerts
		WHERE rule_id = ? AND status != ? AND deleted = 0
		ORDER BY timestamp DESC LIMIT 1`, ruleID, string(alerting.StatusResolved))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active alert for rule %s: %w", ruleID, err)
	}
	return &alert, nil
}

// ListActive returns alerts in Active status, oldest first so escalation
// handles the longest-standing alerts before new ones.
func (r *AlertRepository) ListActive(ctx context.Context) ([]*alerting.Alert, error) {
	var alerts []*alerting.Alert
	err := r.db.SelectContext(ctx, &alerts, `
		SELECT * FROM alerts WHERE status = ? AND deleted = 0
		ORDER BY timestamp ASC`, string(alerting.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	return alerts, nil
}

// List returns alerts newest-first, optionally filtered by status.
func (r *AlertRepository) List(ctx context.Context, status alerting.AlertStatus, limit int) ([]*alerting.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT * FROM alerts WHERE deleted = 0 ORDER BY timestamp DESC LIMIT ?`
	args := []interface{}{limit}
	if status != "" {
		query = `SELECT * FROM alerts WHERE status = ? AND deleted = 0 ORDER BY timestamp DESC LIMIT ?`
		args = []interface{}{string(status), limit}
	}

	var alerts []*alerting.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// SoftDelete hides an alert from all queries. Admin action only.
func (r *AlertRepository) SoftDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE alerts SET deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
