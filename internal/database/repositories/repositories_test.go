package repositories

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/internal/core/correlation"
	"github.com/axmon/axmon-backend-go/internal/core/escalation"
	"github.com/axmon/axmon-backend-go/internal/core/remediation"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// In-memory sqlite loses the database when the pool opens a second
	// connection.
	db.SetMaxOpenConns(1)

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "000001_init.up.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

func TestRuleRepositoryRoundTrip(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()

	rule := &alerting.Rule{
		Name:       "high cpu with blocking",
		Kind:       alerting.RuleKindCorrelation,
		AlertType:  "cpu_high",
		Expression: "cpu_percent >= 90 AND blocking_chains >= 2",
		Severity:   alerting.SeverityCritical,
		Message:    "CPU pegged with blocking chains",
		Enabled:    true,
	}
	require.NoError(t, repos.Rules.Create(ctx, rule))
	require.NotEmpty(t, rule.ID)

	loaded, err := repos.Rules.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, rule.Name, loaded.Name)
	assert.Equal(t, rule.Expression, loaded.Expression)
	assert.Equal(t, alerting.SeverityCritical, loaded.Severity)

	// Unknown id is nil, not an error.
	missing, err := repos.Rules.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRuleRepositoryEncodesParamsAndLevels(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()

	rule := &alerting.Rule{
		Name:                "restart stuck batch",
		Kind:                alerting.RuleKindRemediation,
		AlertType:           "batch_errors_high",
		Expression:          "batch_errors_last_hour > 0",
		Severity:            alerting.SeverityWarning,
		Enabled:             true,
		Action:              "restart_batch_job",
		ActionParams:        map[string]string{"job_id": "5637144576", "environment": "prod-ax"},
		CooldownSeconds:     300,
		MaxExecutions:       3,
		ExecutionWindowSecs: 3600,
	}
	require.NoError(t, repos.Rules.Create(ctx, rule))

	escRule := &alerting.Rule{
		Name:      "cpu escalation",
		Kind:      alerting.RuleKindEscalation,
		AlertType: "cpu_high",
		Severity:  alerting.SeverityCritical,
		Enabled:   true,
		Levels: []alerting.EscalationLevel{
			{Level: 1, AfterSeconds: 60, Action: "notify_team", Channel: "ops"},
			{Level: 2, AfterSeconds: 300, Action: "notify_oncall", Channel: "oncall"},
		},
	}
	require.NoError(t, repos.Rules.Create(ctx, escRule))

	loaded, err := repos.Rules.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "5637144576", loaded.ActionParams["job_id"])
	assert.Equal(t, "prod-ax", loaded.ActionParams["environment"])

	loadedEsc, err := repos.Rules.GetByID(ctx, escRule.ID)
	require.NoError(t, err)
	require.Len(t, loadedEsc.Levels, 2)
	assert.Equal(t, 300, loadedEsc.Levels[1].AfterSeconds)

	// ListEnabled filters by kind.
	remRules, err := repos.Rules.ListEnabled(ctx, alerting.RuleKindRemediation)
	require.NoError(t, err)
	require.Len(t, remRules, 1)
	assert.Equal(t, rule.ID, remRules[0].ID)
}

func insertAlert(t *testing.T, repos *Repositories, id, ruleID string, status alerting.AlertStatus, ts time.Time) *alerting.Alert {
	t.Helper()
	alert := &alerting.Alert{
		ID:        id,
		RuleID:    ruleID,
		Type:      "cpu_high",
		Severity:  alerting.SeverityCritical,
		Message:   "cpu above threshold",
		Status:    status,
		Timestamp: ts,
		CreatedBy: "condition-evaluator",
	}
	require.NoError(t, repos.Alerts.Create(context.Background(), alert))
	return alert
}

func TestAlertRepositoryLatestActiveForRule(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	insertAlert(t, repos, "a1", "r1", alerting.StatusResolved, now.Add(-time.Hour))
	insertAlert(t, repos, "a2", "r1", alerting.StatusActive, now.Add(-30*time.Minute))
	insertAlert(t, repos, "a3", "r1", alerting.StatusAcknowledged, now.Add(-10*time.Minute))
	insertAlert(t, repos, "a4", "r2", alerting.StatusActive, now)

	latest, err := repos.Alerts.LatestActiveForRule(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "a3", latest.ID)

	// Resolved-only rules report none.
	latest, err = repos.Alerts.LatestActiveForRule(ctx, "r3")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestAlertRepositorySoftDelete(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()

	insertAlert(t, repos, "a1", "r1", alerting.StatusActive, time.Now().UTC())
	require.NoError(t, repos.Alerts.SoftDelete(ctx, "a1"))

	loaded, err := repos.Alerts.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	active, err := repos.Alerts.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestIncidentRepositoryPreservesDetectionOrder(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	a1 := insertAlert(t, repos, "a1", "r1", alerting.StatusActive, now)
	insertAlert(t, repos, "a2", "r1", alerting.StatusActive, now.Add(time.Minute))
	insertAlert(t, repos, "a3", "r1", alerting.StatusActive, now.Add(2*time.Minute))

	incident := &correlation.Incident{
		ID:        "inc-1",
		Status:    correlation.IncidentOpen,
		CreatedAt: now,
		Alerts:    []*alerting.Alert{a1},
	}
	require.NoError(t, repos.Incidents.Create(ctx, incident))
	require.NoError(t, repos.Incidents.AppendAlert(ctx, "inc-1", "a2"))
	require.NoError(t, repos.Incidents.AppendAlert(ctx, "inc-1", "a3"))

	loaded, err := repos.Incidents.GetByID(ctx, "inc-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []string{"a1", "a2", "a3"}, loaded.AlertIDs())

	open, err := repos.Incidents.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	resolvedAt := now.Add(time.Hour)
	loaded.Status = correlation.IncidentResolved
	loaded.ResolvedAt = &resolvedAt
	loaded.ResolvedBy = "ops"
	require.NoError(t, repos.Incidents.Update(ctx, loaded))

	open, err = repos.Incidents.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestEscalationRepositoryAtomicSuccessClaim(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	first := &escalation.Execution{
		ID: "e1", AlertID: "a1", RuleID: "esc-1", Level: 1,
		ElapsedSeconds: 90, Action: "notify_team", Channel: "ops",
		Outcome: escalation.OutcomeSuccess, DispatchedAt: now,
	}
	require.NoError(t, repos.Escalations.Record(ctx, first))

	// A second Success for the same alert and level loses.
	dup := &escalation.Execution{
		ID: "e2", AlertID: "a1", RuleID: "esc-1", Level: 1,
		ElapsedSeconds: 95, Action: "notify_team", Channel: "ops",
		Outcome: escalation.OutcomeSuccess, DispatchedAt: now.Add(time.Second),
	}
	err := repos.Escalations.Record(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, escalation.ErrLevelAlreadyExecuted)

	// Failed records for the same level are always accepted.
	failed := &escalation.Execution{
		ID: "e3", AlertID: "a1", RuleID: "esc-1", Level: 2,
		ElapsedSeconds: 400, Action: "notify_oncall", Channel: "oncall",
		Outcome: escalation.OutcomeFailed, Detail: "sink unreachable", DispatchedAt: now.Add(time.Minute),
	}
	require.NoError(t, repos.Escalations.Record(ctx, failed))

	exists, err := repos.Escalations.SuccessExists(ctx, "a1", 1)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repos.Escalations.SuccessExists(ctx, "a1", 2)
	require.NoError(t, err)
	assert.False(t, exists)

	history, err := repos.Escalations.ListForAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRemediationRepositoryGuardQueriesIgnoreSkips(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	t0 := time.Now().UTC()

	record := func(id string, outcome remediation.Outcome, at time.Time) {
		require.NoError(t, repos.Remediations.Record(ctx, &remediation.Execution{
			ID: id, RuleID: "rem-1",
			TriggerData:    map[string]float64{"batch_errors_last_hour": 3},
			StartTime:      at,
			CompletionTime: at.Add(2 * time.Second),
			Outcome:        outcome,
		}))
	}

	record("x1", remediation.OutcomeSuccess, t0)
	record("x2", remediation.OutcomeSkippedCooldown, t0.Add(100*time.Second))
	record("x3", remediation.OutcomeSkippedCooldown, t0.Add(200*time.Second))

	// The skips never advance the cooldown clock.
	last, err := repos.Remediations.MostRecentAttempt(ctx, "rem-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "x1", last.ID)

	record("x4", remediation.OutcomeFailed, t0.Add(400*time.Second))
	last, err = repos.Remediations.MostRecentAttempt(ctx, "rem-1")
	require.NoError(t, err)
	assert.Equal(t, "x4", last.ID)

	count, err := repos.Remediations.CountAttemptsSince(ctx, "rem-1", t0.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Trigger data survives the JSON round trip.
	assert.Equal(t, map[string]float64{"batch_errors_last_hour": 3}, last.TriggerData)

	history, err := repos.Remediations.List(ctx, "rem-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "x4", history[0].ID)

	all, err := repos.Remediations.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
