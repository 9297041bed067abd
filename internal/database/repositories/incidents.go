package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/internal/core/correlation"
)

// IncidentRepository persists incidents and their alert membership.
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository creates an incident repository.
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

type incidentRow struct {
	ID         string     `db:"id"`
	Status     string     `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at"`
	ResolvedBy string     `db:"resolved_by"`
}

// Create inserts the incident and its initial alert memberships in one
// transaction.
func (r *IncidentRepository) Create(ctx context.Context, incident *correlation.Incident) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO incidents (id, status, created_at, resolved_at, resolved_by)
		VALUES (?, ?, ?, ?, ?)`,
		incident.ID, string(incident.Status), incident.CreatedAt, incident.ResolvedAt, incident.ResolvedBy)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}

	for position, alert := range incident.Alerts {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO incident_alerts (incident_id, alert_id, position)
			VALUES (?, ?, ?)`, incident.ID, alert.ID, position)
		if err != nil {
			return fmt.Errorf("failed to link alert %s to incident: %w", alert.ID, err)
		}
	}

	return tx.Commit()
}

// GetByID returns the incident with its alerts in detection order, or nil
// when absent.
func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*correlation.Incident, error) {
	var row incidentRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM incidents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
	}

	incident := rowToIncident(row)
	if err := r.loadAlerts(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

// ListOpen returns all open incidents with alerts loaded, oldest first.
func (r *IncidentRepository) ListOpen(ctx context.Context) ([]*correlation.Incident, error) {
	var rows []incidentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM incidents WHERE status = ? ORDER BY created_at ASC`,
		string(correlation.IncidentOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to list open incidents: %w", err)
	}

	incidents := make([]*correlation.Incident, 0, len(rows))
	for _, row := range rows {
		incident := rowToIncident(row)
		if err := r.loadAlerts(ctx, incident); err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, nil
}

// List returns incidents newest-first, optionally filtered by status.
func (r *IncidentRepository) List(ctx context.Context, status correlation.IncidentStatus, limit int) ([]*correlation.Incident, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT * FROM incidents ORDER BY created_at DESC LIMIT ?`
	args := []interface{}{limit}
	if status != "" {
		query = `SELECT * FROM incidents WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{string(status), limit}
	}

	var rows []incidentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	incidents := make([]*correlation.Incident, 0, len(rows))
	for _, row := range rows {
		incident := rowToIncident(row)
		if err := r.loadAlerts(ctx, incident); err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, nil
}

// AppendAlert links an alert to an incident at the next position.
func (r *IncidentRepository) AppendAlert(ctx context.Context, incidentID, alertID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO incident_alerts (incident_id, alert_id, position)
		VALUES (?, ?, (SELECT COUNT(*) FROM incident_alerts WHERE incident_id = ?))`,
		incidentID, alertID, incidentID)
	if err != nil {
		return fmt.Errorf("failed to append alert %s to incident %s: %w", alertID, incidentID, err)
	}
	return nil
}

// Update persists the incident's status fields.
func (r *IncidentRepository) Update(ctx context.Context, incident *correlation.Incident) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE incidents SET status = ?, resolved_at = ?, resolved_by = ? WHERE id = ?`,
		string(incident.Status), incident.ResolvedAt, incident.ResolvedBy, incident.ID)
	if err != nil {
		return fmt.Errorf("failed to update incident %s: %w", incident.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *IncidentRepository) loadAlerts(ctx context.Context, incident *correlation.Incident) error {
	var alerts []*alerting.Alert
	err := r.db.SelectContext(ctx, &alerts, `
		SELECT a.* FROM alerts a
		JOIN incident_alerts ia ON ia.alert_id = a.id
		WHERE ia.incident_id = ?
		ORDER BY ia.position ASC`, incident.ID)
	if err != nil {
		return fmt.Errorf("failed to load alerts for incident %s: %w", incident.ID, err)
	}
	incident.Alerts = alerts
	return nil
}

func rowToIncident(row incidentRow) *correlation.Incident {
	return &correlation.Incident{
		ID:         row.ID,
		Status:     correlation.IncidentStatus(row.Status),
		CreatedAt:  row.CreatedAt,
		ResolvedAt: row.ResolvedAt,
		ResolvedBy: row.ResolvedBy,
	}
}
