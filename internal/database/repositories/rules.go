package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
)

// RuleRepository is the sqlite-backed rule store for all three rule kinds.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository creates a rule repository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

type ruleRow struct {
	ID                  string    `db:"id"`
	Name                string    `db:"name"`
	Kind                string    `db:"kind"`
	AlertType           string    `db:"alert_type"`
	Expression          string    `db:"expression"`
	Severity            string    `db:"severity"`
	Message             string    `db:"message"`
	Enabled             bool      `db:"enabled"`
	Action              string    `db:"action"`
	ActionParams        string    `db:"action_params"`
	CooldownSeconds     int       `db:"cooldown_seconds"`
	MaxExecutions       int       `db:"max_executions"`
	ExecutionWindowSecs int       `db:"execution_window_seconds"`
	Levels              string    `db:"levels"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func (r ruleRow) toRule() (*alerting.Rule, error) {
	rule := &alerting.Rule{
		ID:                  r.ID,
		Name:                r.Name,
		Kind:                alerting.RuleKind(r.Kind),
		AlertType:           r.AlertType,
		Expression:          r.Expression,
		Severity:            alerting.Severity(r.Severity),
		Message:             r.Message,
		Enabled:             r.Enabled,
		Action:              r.Action,
		CooldownSeconds:     r.CooldownSeconds,
		MaxExecutions:       r.MaxExecutions,
		ExecutionWindowSecs: r.ExecutionWindowSecs,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}

	if r.ActionParams != "" {
		if err := json.Unmarshal([]byte(r.ActionParams), &rule.ActionParams); err != nil {
			return nil, fmt.Errorf("rule %s has malformed action_params: %w", r.ID, err)
		}
	}
	if r.Levels != "" {
		if err := json.Unmarshal([]byte(r.Levels), &rule.Levels); err != nil {
			return nil, fmt.Errorf("rule %s has malformed levels: %w", r.ID, err)
		}
	}
	return rule, nil
}

func encodeRule(rule *alerting.Rule) (*ruleRow, error) {
	params, err := json.Marshal(rule.ActionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action_params: %w", err)
	}
	levels, err := json.Marshal(rule.Levels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode levels: %w", err)
	}

	return &ruleRow{
		ID:                  rule.ID,
		Name:                rule.Name,
		Kind:                string(rule.Kind),
		AlertType:           rule.AlertType,
		Expression:          rule.Expression,
		Severity:            string(rule.Severity),
		Message:             rule.Message,
		Enabled:             rule.Enabled,
		Action:              rule.Action,
		ActionParams:        string(params),
		CooldownSeconds:     rule.CooldownSeconds,
		MaxExecutions:       rule.MaxExecutions,
		ExecutionWindowSecs: rule.ExecutionWindowSecs,
		Levels:              string(levels),
		CreatedAt:           rule.CreatedAt,
		UpdatedAt:           rule.UpdatedAt,
	}, nil
}

// Create inserts a new rule, assigning an id when the caller did not.
func (r *RuleRepository) Create(ctx context.Context, rule *alerting.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	row, err := encodeRule(rule)
	if err != nil {
		return err
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO rules (id, name, kind, alert_type, expression, severity, message, enabled,
			action, action_params, cooldown_seconds, max_executions, execution_window_seconds,
			levels, created_at, updated_at)
		VALUES (:id, :name, :kind, :alert_type, :expression, :severity, :message, :enabled,
			:action, :action_params, :cooldown_seconds, :max_executions, :execution_window_seconds,
			:levels, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Update replaces a rule's mutable fields. Changes take effect on the next
// evaluation cycle, which always reads current rules.
func (r *RuleRepository) Update(ctx context.Context, rule *alerting.Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	row, err := encodeRule(rule)
	if err != nil {
		return err
	}

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE rules SET name = :name, kind = :kind, alert_type = :alert_type,
			expression = :expression, severity = :severity, message = :message,
			enabled = :enabled, action = :action, action_params = :action_params,
			cooldown_seconds = :cooldown_seconds, max_executions = :max_executions,
			execution_window_seconds = :execution_window_seconds, levels = :levels,
			updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to update rule %s: %w", rule.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a rule permanently.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID returns the rule or nil when absent.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*alerting.Rule, error) {
	var row ruleRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM rules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %s: %w", id, err)
	}
	return row.toRule()
}

// List returns all rules, optionally filtered by kind.
func (r *RuleRepository) List(ctx context.Context, kind alerting.RuleKind) ([]*alerting.Rule, error) {
	query := `SELECT * FROM rules ORDER BY kind, name`
	args := []interface{}{}
	if kind != "" {
		query = `SELECT * FROM rules WHERE kind = ? ORDER BY name`
		args = append(args, string(kind))
	}

	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return decodeRules(rows)
}

// ListEnabled returns the enabled rules of one kind.
func (r *RuleRepository) ListEnabled(ctx context.Context, kind alerting.RuleKind) ([]*alerting.Rule, error) {
	var rows []ruleRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM rules WHERE kind = ? AND enabled = 1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled %s rules: %w", kind, err)
	}
	return decodeRules(rows)
}

func decodeRules(rows []ruleRow) ([]*alerting.Rule, error) {
	rules := make([]*alerting.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
