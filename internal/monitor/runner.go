package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/internal/core/correlation"
	"github.com/axmon/axmon-backend-go/internal/core/escalation"
	"github.com/axmon/axmon-backend-go/internal/core/remediation"
	"github.com/axmon/axmon-backend-go/internal/metrics"
)

// RuleSource lists enabled rules for the evaluation cycle.
type RuleSource interface {
	ListEnabled(ctx context.Context, kind alerting.RuleKind) ([]*alerting.Rule, error)
}

// Runner drives the periodic evaluation cycle for one monitored environment:
// snapshot, condition evaluation, correlation, escalation, and optional
// auto-remediation. Environments run independently; a runner never shares
// mutable state with another.
type Runner struct {
	env           string
	interval      time.Duration
	autoRemediate bool

	source      Source
	rules       RuleSource
	evaluator   *alerting.Evaluator
	correlator  *correlation.Correlator
	escalation  *escalation.Engine
	remediation *remediation.Engine
	metrics     *metrics.Metrics
	logger      *logrus.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewRunner assembles the evaluation cycle for one environment.
func NewRunner(env string, interval time.Duration, autoRemediate bool, source Source, rules RuleSource,
	correlator *correlation.Correlator, escalationEngine *escalation.Engine, remediationEngine *remediation.Engine,
	m *metrics.Metrics, logger *logrus.Logger) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{
		env:           env,
		interval:      interval,
		autoRemediate: autoRemediate,
		source:        source,
		rules:         rules,
		evaluator:     alerting.NewEvaluator(logger),
		correlator:    correlator,
		escalation:    escalationEngine,
		remediation:   remediationEngine,
		metrics:       m,
		logger:        logger,
	}
}

// Start schedules the evaluation cycle. The provided context bounds every
// cycle; cancelling it stops in-flight work while Stop halts the schedule.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("runner for environment %s is already running", r.env)
	}

	r.cron = cron.New()
	_, err := r.cron.AddFunc("@every "+r.interval.String(), func() {
		if err := r.RunCycle(ctx); err != nil {
			r.logger.WithError(err).WithField("environment", r.env).Warn("Evaluation cycle skipped")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule evaluation cycle: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.logger.WithFields(logrus.Fields{
		"environment": r.env,
		"interval":    r.interval.String(),
	}).Info("Evaluation cycle scheduled")

	return nil
}

// Stop halts the schedule and waits for a running cycle to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.WithField("environment", r.env).Info("Evaluation cycle stopped")
}

// RunCycle executes one evaluation cycle. Collaborator failures are logged
// and recorded; they never take down the loop.
func (r *Runner) RunCycle(ctx context.Context) error {
	start := time.Now()
	status := "ok"
	defer func() {
		r.metrics.CyclesTotal.WithLabelValues(r.env, status).Inc()
		r.metrics.CycleDuration.WithLabelValues(r.env).Observe(time.Since(start).Seconds())
	}()

	snapshot, err := r.source.Current(ctx)
	if err != nil {
		status = "source_failed"
		return fmt.Errorf("metric snapshot failed: %w", err)
	}

	now := snapshot.CapturedAt

	rules, err := r.rules.ListEnabled(ctx, alerting.RuleKindCorrelation)
	if err != nil {
		status = "rules_failed"
		return fmt.Errorf("failed to load correlation rules: %w", err)
	}

	firings := r.evaluator.Evaluate(snapshot, rules)
	if len(firings) > 0 {
		r.metrics.FiringsTotal.WithLabelValues(string(alerting.RuleKindCorrelation)).Add(float64(len(firings)))
	}

	for _, firing := range firings {
		alert, created, err := r.correlator.RecordFiring(ctx, firing, now)
		if err != nil {
			r.logger.WithError(err).WithField("rule_id", firing.Rule.ID).Error("Failed to record firing")
			continue
		}
		if !created {
			continue
		}
		r.metrics.AlertsCreated.Inc()

		if _, err := r.correlator.Correlate(ctx, alert); err != nil {
			r.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to correlate alert")
		}
	}

	if tally, err := r.escalation.Evaluate(ctx, now); err != nil {
		r.logger.WithError(err).WithField("environment", r.env).Error("Escalation evaluation failed")
	} else {
		if tally.Succeeded > 0 {
			r.metrics.EscalationsTotal.WithLabelValues("success").Add(float64(tally.Succeeded))
		}
		if tally.Failed > 0 {
			r.metrics.EscalationsTotal.WithLabelValues("failed").Add(float64(tally.Failed))
		}
	}

	if r.autoRemediate {
		r.runRemediation(ctx, snapshot, now)
	}

	r.logger.WithFields(logrus.Fields{
		"environment": r.env,
		"metrics":     snapshot.Len(),
		"firings":     len(firings),
		"duration":    time.Since(start).String(),
	}).Debug("Evaluation cycle completed")

	return nil
}

func (r *Runner) runRemediation(ctx context.Context, snapshot alerting.MetricSnapshot, now time.Time) {
	firings, err := r.remediation.EvaluateConditions(ctx, snapshot)
	if err != nil {
		r.logger.WithError(err).WithField("environment", r.env).Error("Remediation evaluation failed")
		return
	}
	if len(firings) > 0 {
		r.metrics.FiringsTotal.WithLabelValues(string(alerting.RuleKindRemediation)).Add(float64(len(firings)))
	}

	for _, firing := range firings {
		execution, err := r.remediation.Execute(ctx, firing.Rule.ID, firing.Values, now)
		if err != nil {
			r.logger.WithError(err).WithField("rule_id", firing.Rule.ID).Error("Remediation execution failed")
			continue
		}
		r.metrics.RemediationsTotal.WithLabelValues(string(execution.Outcome)).Inc()
	}
}
