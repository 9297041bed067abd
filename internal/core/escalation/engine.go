package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/internal/core/locking"
	"github.com/axmon/axmon-backend-go/internal/notify"
)

// Outcome of one escalation dispatch.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// ErrLevelAlreadyExecuted is returned by the execution store when another
// writer already recorded a Success for the same alert and level. The second
// writer's result is discarded.
var ErrLevelAlreadyExecuted = errors.New("escalation level already executed")

// Execution is the append-only audit record of one escalation action.
type Execution struct {
	ID             string    `json:"id" db:"id"`
	AlertID        string    `json:"alert_id" db:"alert_id"`
	RuleID         string    `json:"rule_id" db:"rule_id"`
	Level          int       `json:"level" db:"level"`
	ElapsedSeconds int       `json:"elapsed_seconds" db:"elapsed_seconds"`
	Action         string    `json:"action" db:"action"`
	Channel        string    `json:"channel" db:"channel"`
	Outcome        Outcome   `json:"outcome" db:"outcome"`
	Detail         string    `json:"detail,omitempty" db:"detail"`
	ReferenceID    string    `json:"reference_id,omitempty" db:"reference_id"`
	DispatchedAt   time.Time `json:"dispatched_at" db:"dispatched_at"`
}

// ExecutionRepository persists escalation executions. Record must enforce at
// most one Success per (alert, level) and return ErrLevelAlreadyExecuted for
// a conflicting Success write.
type ExecutionRepository interface {
	Record(ctx context.Context, execution *Execution) error
	SuccessExists(ctx context.Context, alertID string, level int) (bool, error)
	ListForAlert(ctx context.Context, alertID string) ([]*Execution, error)
}

// AlertSource lists the alerts eligible for escalation.
type AlertSource interface {
	ListActive(ctx context.Context) ([]*alerting.Alert, error)
}

// RuleSource lists the enabled escalation rules.
type RuleSource interface {
	ListEnabled(ctx context.Context, kind alerting.RuleKind) ([]*alerting.Rule, error)
}

// Engine walks Active alerts against escalation rules and fires the highest
// eligible level that has no Success record yet. A long-idle alert jumps
// straight to its highest eligible level; intermediate levels are never fired
// retroactively.
type Engine struct {
	alerts     AlertSource
	rules      RuleSource
	executions ExecutionRepository
	sink       notify.Sink
	logger     *logrus.Logger

	locks       *locking.KeyedMutex
	concurrency int
}

// NewEngine creates an escalation engine.
func NewEngine(alerts AlertSource, rules RuleSource, executions ExecutionRepository, sink notify.Sink, logger *logrus.Logger) *Engine {
	return &Engine{
		alerts:      alerts,
		rules:       rules,
		executions:  executions,
		sink:        sink,
		logger:      logger,
		locks:       locking.NewKeyedMutex(),
		concurrency: 8,
	}
}

// Tally counts the dispatch outcomes of one evaluation pass.
type Tally struct {
	Succeeded int
	Failed    int
}

// Evaluate inspects every Active alert at the given instant and dispatches
// at most one escalation level per alert. It returns a tally of dispatch
// outcomes; per-alert failures are recorded and do not abort the rest of
// the cycle.
func (e *Engine) Evaluate(ctx context.Context, now time.Time) (Tally, error) {
	var tally Tally

	alerts, err := e.alerts.ListActive(ctx)
	if err != nil {
		return tally, fmt.Errorf("failed to list active alerts: %w", err)
	}

	rules, err := e.rules.ListEnabled(ctx, alerting.RuleKindEscalation)
	if err != nil {
		return tally, fmt.Errorf("failed to list escalation rules: %w", err)
	}

	semaphore := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, alert := range alerts {
		if alert.Status != alerting.StatusActive {
			continue
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(a *alerting.Alert) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			switch e.escalateAlert(ctx, a, rules, now) {
			case OutcomeSuccess:
				mu.Lock()
				tally.Succeeded++
				mu.Unlock()
			case OutcomeFailed:
				mu.Lock()
				tally.Failed++
				mu.Unlock()
			}
		}(alert)
	}
	wg.Wait()

	return tally, nil
}

// escalateAlert evaluates one alert and returns the outcome of the dispatch,
// or the empty outcome when no level was dispatched. Level execution for a
// single alert is strictly sequential under the per-alert lock.
func (e *Engine) escalateAlert(ctx context.Context, alert *alerting.Alert, rules []*alerting.Rule, now time.Time) Outcome {
	rule := matchRule(alert, rules)
	if rule == nil {
		return ""
	}

	elapsed := now.Sub(alert.Timestamp)
	level := highestEligible(rule.Levels, elapsed)
	if level == nil {
		return ""
	}

	key := "alert:" + alert.ID
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	done, err := e.executions.SuccessExists(ctx, alert.ID, level.Level)
	if err != nil {
		e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to check escalation history")
		return ""
	}
	if done {
		return ""
	}

	execution := &Execution{
		ID:             uuid.New().String(),
		AlertID:        alert.ID,
		RuleID:         rule.ID,
		Level:          level.Level,
		ElapsedSeconds: int(elapsed.Seconds()),
		Action:         level.Action,
		Channel:        level.Channel,
		DispatchedAt:   now,
	}

	result, err := e.sink.Dispatch(ctx, level.Channel, notify.Payload{
		AlertID:   alert.ID,
		AlertType: alert.Type,
		Severity:  string(alert.Severity),
		Message:   alert.Message,
		Level:     level.Level,
		Action:    level.Action,
		Timestamp: now,
	})
	if err != nil || !result.Success {
		execution.Outcome = OutcomeFailed
		if err != nil {
			execution.Detail = err.Error()
		} else {
			execution.Detail = "sink reported failure"
		}
		// Failed dispatch stays eligible for retry on the next tick.
	} else {
		execution.Outcome = OutcomeSuccess
		execution.ReferenceID = result.ReferenceID
	}

	if err := e.executions.Record(ctx, execution); err != nil {
		if errors.Is(err, ErrLevelAlreadyExecuted) {
			e.logger.WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"level":    level.Level,
			}).Debug("Discarding duplicate escalation success")
			return ""
		}
		e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to record escalation execution")
		return ""
	}

	entry := e.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"rule_id":  rule.ID,
		"level":    level.Level,
		"action":   level.Action,
		"outcome":  execution.Outcome,
	})
	if execution.Outcome == OutcomeFailed {
		entry.Warn("Escalation dispatch failed")
	} else {
		entry.Info("Escalation dispatched")
	}

	return execution.Outcome
}

// matchRule finds the escalation rule for an alert: exact type and severity
// match first, then type-only.
func matchRule(alert *alerting.Alert, rules []*alerting.Rule) *alerting.Rule {
	var typeOnly *alerting.Rule
	for _, rule := range rules {
		if rule.AlertType != alert.Type {
			continue
		}
		if rule.Severity == alert.Severity {
			return rule
		}
		if typeOnly == nil {
			typeOnly = rule
		}
	}
	return typeOnly
}

// highestEligible returns the last level whose delay has elapsed. Levels are
// validated to be strictly ascending by AfterSeconds.
func highestEligible(levels []alerting.EscalationLevel, elapsed time.Duration) *alerting.EscalationLevel {
	var eligible *alerting.EscalationLevel
	for i := range levels {
		if time.Duration(levels[i].AfterSeconds)*time.Second <= elapsed {
			eligible = &levels[i]
		}
	}
	return eligible
}
