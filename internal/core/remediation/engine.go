package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/internal/core/locking"
	"github.com/axmon/axmon-backend-go/pkg/errors"
)

// Outcome is the tagged result of a remediation attempt. Guard skips are
// results, not errors.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeFailed           Outcome = "failed"
	OutcomeSkippedCooldown  Outcome = "skipped_cooldown"
	OutcomeSkippedRateLimit Outcome = "skipped_rate_limit"
)

// Attempted reports whether the outcome represents an actual action attempt
// rather than a guard skip.
func (o Outcome) Attempted() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}

// Execution is the append-only audit record of one remediation attempt. It
// also backs cooldown and rate-limit enforcement.
type Execution struct {
	ID             string             `json:"id" db:"id"`
	RuleID         string             `json:"rule_id" db:"rule_id"`
	TriggerData    map[string]float64 `json:"trigger_data" db:"-"`
	StartTime      time.Time          `json:"start_time" db:"start_time"`
	CompletionTime time.Time          `json:"completion_time" db:"completion_time"`
	Outcome        Outcome            `json:"outcome" db:"outcome"`
	Detail         string             `json:"detail,omitempty" db:"detail"`
}

// ExecutionRepository persists remediation executions and answers the two
// time-windowed guard queries. Guard queries consider only actual attempts
// (Success/Failed); guard skips never extend a cooldown or consume the
// rate-limit budget.
type ExecutionRepository interface {
	Record(ctx context.Context, execution *Execution) error
	MostRecentAttempt(ctx context.Context, ruleID string) (*Execution, error)
	CountAttemptsSince(ctx context.Context, ruleID string, since time.Time) (int, error)
	List(ctx context.Context, ruleID string, limit int) ([]*Execution, error)
}

// RuleStore loads remediation rules.
type RuleStore interface {
	GetByID(ctx context.Context, id string) (*alerting.Rule, error)
	ListEnabled(ctx context.Context, kind alerting.RuleKind) ([]*alerting.Rule, error)
}

// ActionResult is the outcome reported by an action executor.
type ActionResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// ActionExecutor performs the bounded corrective action against the
// monitored environment (restart batch job, kill session). It is the only
// place the pipeline reaches into the AX environment.
type ActionExecutor interface {
	PerformAction(ctx context.Context, action string, params map[string]string) (ActionResult, error)
}

// Engine executes bounded remediation actions with cooldown and rate-limit
// guards, recording full history. Guard evaluation, dispatch, and the history
// write for one rule are mutually exclusive.
type Engine struct {
	store      RuleStore
	executions ExecutionRepository
	executor   ActionExecutor
	evaluator  *alerting.Evaluator
	logger     *logrus.Logger

	locks *locking.KeyedMutex
}

// NewEngine creates a remediation engine.
func NewEngine(store RuleStore, executions ExecutionRepository, executor ActionExecutor, logger *logrus.Logger) *Engine {
	return &Engine{
		store:      store,
		executions: executions,
		executor:   executor,
		evaluator:  alerting.NewEvaluator(logger),
		logger:     logger,
		locks:      locking.NewKeyedMutex(),
	}
}

// EvaluateConditions returns the enabled remediation rules firing against
// the snapshot.
func (e *Engine) EvaluateConditions(ctx context.Context, snapshot alerting.MetricSnapshot) ([]alerting.Firing, error) {
	rules, err := e.store.ListEnabled(ctx, alerting.RuleKindRemediation)
	if err != nil {
		return nil, fmt.Errorf("failed to list remediation rules: %w", err)
	}
	return e.evaluator.Evaluate(snapshot, rules), nil
}

// Execute runs the remediation action for a rule, subject to the cooldown
// and rate-limit guards. Every call that passes rule lookup produces exactly
// one terminal execution record; guard skips are returned as results.
func (e *Engine) Execute(ctx context.Context, ruleID string, triggerData map[string]float64, now time.Time) (*Execution, error) {
	rule, err := e.store.GetByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %s: %w", ruleID, err)
	}
	if rule == nil || rule.Kind != alerting.RuleKindRemediation || !rule.Enabled {
		return nil, errors.NotFound("remediation rule", ruleID)
	}

	key := "rule:" + ruleID
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	execution := &Execution{
		ID:          uuid.New().String(),
		RuleID:      ruleID,
		TriggerData: triggerData,
		StartTime:   now,
	}

	// Guard 1: cooldown against the most recent actual attempt.
	if rule.CooldownSeconds > 0 {
		last, err := e.executions.MostRecentAttempt(ctx, ruleID)
		if err != nil {
			return nil, fmt.Errorf("failed to check cooldown for rule %s: %w", ruleID, err)
		}
		if last != nil {
			cooldown := time.Duration(rule.CooldownSeconds) * time.Second
			remaining := cooldown - now.Sub(last.CompletionTime)
			if remaining > 0 {
				return e.skip(ctx, execution, OutcomeSkippedCooldown,
					fmt.Sprintf("cooldown active for another %s", remaining.Round(time.Second)), now)
			}
		}
	}

	// Guard 2: rate limit over the trailing execution window.
	if rule.MaxExecutions > 0 {
		since := now.Add(-time.Duration(rule.ExecutionWindowSecs) * time.Second)
		count, err := e.executions.CountAttemptsSince(ctx, ruleID, since)
		if err != nil {
			return nil, fmt.Errorf("failed to check rate limit for rule %s: %w", ruleID, err)
		}
		if count >= rule.MaxExecutions {
			return e.skip(ctx, execution, OutcomeSkippedRateLimit,
				fmt.Sprintf("%d executions in trailing window, limit %d", count, rule.MaxExecutions), now)
		}
	}

	wallStart := time.Now()
	result, err := e.executor.PerformAction(ctx, rule.Action, rule.ActionParams)
	// The completion stamp stays on the caller's timeline; the next call's
	// cooldown check subtracts it from the caller's now.
	execution.CompletionTime = now.Add(time.Since(wallStart))

	switch {
	case ctx.Err() != nil:
		execution.Outcome = OutcomeFailed
		execution.Detail = "cancelled"
	case err != nil:
		execution.Outcome = OutcomeFailed
		execution.Detail = err.Error()
	case !result.Success:
		execution.Outcome = OutcomeFailed
		execution.Detail = result.Detail
	default:
		execution.Outcome = OutcomeSuccess
		execution.Detail = result.Detail
	}

	// The record gets a terminal outcome even when the action was cancelled;
	// persist with a fresh context so cancellation cannot lose the audit row.
	if err := e.executions.Record(context.WithoutCancel(ctx), execution); err != nil {
		return nil, fmt.Errorf("failed to record execution for rule %s: %w", ruleID, err)
	}

	entry := e.logger.WithFields(logrus.Fields{
		"rule_id": ruleID,
		"action":  rule.Action,
		"outcome": execution.Outcome,
	})
	if execution.Outcome == OutcomeFailed {
		entry.WithField("detail", execution.Detail).Warn("Remediation action failed")
	} else {
		entry.Info("Remediation action executed")
	}

	return execution, nil
}

// ExecutionHistory returns executions newest-first, optionally filtered by
// rule (empty ruleID means all rules).
func (e *Engine) ExecutionHistory(ctx context.Context, ruleID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	return e.executions.List(ctx, ruleID, limit)
}

func (e *Engine) skip(ctx context.Context, execution *Execution, outcome Outcome, detail string, now time.Time) (*Execution, error) {
	execution.Outcome = outcome
	execution.Detail = detail
	execution.CompletionTime = now

	if err := e.executions.Record(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to record skipped execution for rule %s: %w", execution.RuleID, err)
	}

	e.logger.WithFields(logrus.Fields{
		"rule_id": execution.RuleID,
		"outcome": outcome,
		"detail":  detail,
	}).Info("Remediation skipped by guard")

	return execution, nil
}
