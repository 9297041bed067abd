package remediation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/pkg/errors"
)

type fakeExecutionRepo struct {
	mu         sync.Mutex
	executions []*Execution
}

func (r *fakeExecutionRepo) Record(_ context.Context, execution *Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *execution
	r.executions = append(r.executions, &copied)
	return nil
}

func (r *fakeExecutionRepo) MostRecentAttempt(_ context.Context, ruleID string) (*Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Execution
	for _, e := range r.executions {
		if e.RuleID != ruleID || !e.Outcome.Attempted() {
			continue
		}
		if latest == nil || e.CompletionTime.After(latest.CompletionTime) {
			latest = e
		}
	}
	return latest, nil
}

func (r *fakeExecutionRepo) CountAttemptsSince(_ context.Context, ruleID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.executions {
		if e.RuleID == ruleID && e.Outcome.Attempted() && !e.StartTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeExecutionRepo) List(_ context.Context, ruleID string, limit int) ([]*Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Execution
	for i := len(r.executions) - 1; i >= 0 && len(out) < limit; i-- {
		if ruleID == "" || r.executions[i].RuleID == ruleID {
			out = append(out, r.executions[i])
		}
	}
	return out, nil
}

func (r *fakeExecutionRepo) outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, 0, len(r.executions))
	for _, e := range r.executions {
		out = append(out, e.Outcome)
	}
	return out
}

type fakeRuleStore struct {
	rules map[string]*alerting.Rule
}

func (s *fakeRuleStore) GetByID(_ context.Context, id string) (*alerting.Rule, error) {
	return s.rules[id], nil
}

func (s *fakeRuleStore) ListEnabled(_ context.Context, kind alerting.RuleKind) ([]*alerting.Rule, error) {
	var out []*alerting.Rule
	for _, r := range s.rules {
		if r.Kind == kind && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeActionExecutor struct {
	mu       sync.Mutex
	calls    int
	fail     bool
	failSoft bool
	block    chan struct{}
}

func (e *fakeActionExecutor) PerformAction(ctx context.Context, action string, params map[string]string) (ActionResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ActionResult{}, ctx.Err()
		}
	}
	if e.fail {
		return ActionResult{}, fmt.Errorf("action blew up")
	}
	if e.failSoft {
		return ActionResult{Success: false, Detail: "nothing to do"}, nil
	}
	return ActionResult{Success: true, Detail: "done"}, nil
}

func (e *fakeActionExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func remediationRule(id string) *alerting.Rule {
	return &alerting.Rule{
		ID:                  id,
		Name:                "restart stuck batch",
		Kind:                alerting.RuleKindRemediation,
		AlertType:           "batch_errors_high",
		Expression:          "batch_errors_last_hour > 0",
		Severity:            alerting.SeverityWarning,
		Enabled:             true,
		Action:              "restart_batch_job",
		ActionParams:        map[string]string{"job_id": "5637144576"},
		CooldownSeconds:     300,
		MaxExecutions:       3,
		ExecutionWindowSecs: 3600,
	}
}

func newTestEngine(rule *alerting.Rule, executor ActionExecutor) (*Engine, *fakeExecutionRepo) {
	store := &fakeRuleStore{rules: map[string]*alerting.Rule{}}
	if rule != nil {
		store.rules[rule.ID] = rule
	}
	repo := &fakeExecutionRepo{}
	return NewEngine(store, repo, executor, logrus.New()), repo
}

func TestExecuteSuccess(t *testing.T) {
	executor := &fakeActionExecutor{}
	engine, repo := newTestEngine(remediationRule("rem-1"), executor)

	execution, err := engine.Execute(context.Background(), "rem-1", map[string]float64{"batch_errors_last_hour": 3}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, execution.Outcome)
	assert.Equal(t, "done", execution.Detail)
	assert.Equal(t, 1, executor.callCount())
	assert.Equal(t, []Outcome{OutcomeSuccess}, repo.outcomes())
}

func TestExecuteUnknownRule(t *testing.T) {
	engine, _ := newTestEngine(nil, &fakeActionExecutor{})
	_, err := engine.Execute(context.Background(), "missing", nil, time.Now())
	assert.True(t, errors.IsNotFound(err))
}

func TestExecuteDisabledRule(t *testing.T) {
	rule := remediationRule("rem-1")
	rule.Enabled = false
	engine, _ := newTestEngine(rule, &fakeActionExecutor{})
	_, err := engine.Execute(context.Background(), "rem-1", nil, time.Now())
	assert.True(t, errors.IsNotFound(err))
}

func TestExecuteWrongKind(t *testing.T) {
	rule := remediationRule("rem-1")
	rule.Kind = alerting.RuleKindCorrelation
	engine, _ := newTestEngine(rule, &fakeActionExecutor{})
	_, err := engine.Execute(context.Background(), "rem-1", nil, time.Now())
	assert.True(t, errors.IsNotFound(err))
}

func TestExecuteCooldownSequence(t *testing.T) {
	executor := &fakeActionExecutor{}
	engine, _ := newTestEngine(remediationRule("rem-1"), executor)
	ctx := context.Background()
	t0 := time.Now()

	// T0: runs.
	execution, err := engine.Execute(ctx, "rem-1", nil, t0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, execution.Outcome)

	// T0+100s: inside the 300s cooldown, skipped without attempting.
	execution, err = engine.Execute(ctx, "rem-1", nil, t0.Add(100*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedCooldown, execution.Outcome)
	assert.Equal(t, 1, executor.callCount())

	// T0+301s: the skip did not extend the cooldown, so this attempt runs.
	execution, err = engine.Execute(ctx, "rem-1", nil, t0.Add(301*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, execution.Outcome)
	assert.Equal(t, 2, executor.callCount())
}

func TestExecuteCooldownFollowsCallerClock(t *testing.T) {
	executor := &fakeActionExecutor{}
	engine, repo := newTestEngine(remediationRule("rem-1"), executor)
	ctx := context.Background()

	// The caller's timeline is well behind the wall clock, as with a lagging
	// snapshot. Cooldown math must still use the supplied instants.
	t0 := time.Now().Add(-2 * time.Hour)

	execution, err := engine.Execute(ctx, "rem-1", nil, t0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, execution.Outcome)

	execution, err = engine.Execute(ctx, "rem-1", nil, t0.Add(301*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, execution.Outcome)
	assert.Equal(t, 2, executor.callCount())

	// Still skipped inside the window on the same timeline.
	execution, err = engine.Execute(ctx, "rem-1", nil, t0.Add(400*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedCooldown, execution.Outcome)

	// Completion stamps stay on the caller's timeline, offset only by the
	// action's own duration.
	last, err := repo.MostRecentAttempt(ctx, "rem-1")
	require.NoError(t, err)
	assert.WithinDuration(t, t0.Add(301*time.Second), last.CompletionTime, 5*time.Second)
}

func TestExecuteFailedAttemptStartsCooldown(t *testing.T) {
	executor := &fakeActionExecutor{fail: true}
	engine, _ := newTestEngine(remediationRule("rem-1"), executor)
	ctx := context.Background()
	t0 := time.Now()

	execution, err := engine.Execute(ctx, "rem-1", nil, t0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, execution.Outcome)
	assert.Equal(t, "action blew up", execution.Detail)

	// Failed attempts count for cooldown purposes.
	execution, err = engine.Execute(ctx, "rem-1", nil, t0.Add(100*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedCooldown, execution.Outcome)
}

func TestExecuteRateLimit(t *testing.T) {
	rule := remediationRule("rem-1")
	rule.CooldownSeconds = 0
	executor := &fakeActionExecutor{}
	engine, repo := newTestEngine(rule, executor)
	ctx := context.Background()
	t0 := time.Now()

	for i := 0; i < 3; i++ {
		execution, err := engine.Execute(ctx, "rem-1", nil, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, execution.Outcome)
	}

	// Fourth call inside the window hits the limit of 3.
	execution, err := engine.Execute(ctx, "rem-1", nil, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedRateLimit, execution.Outcome)
	assert.Equal(t, 3, executor.callCount())

	// Once the window slides past the attempts it runs again.
	execution, err = engine.Execute(ctx, "rem-1", nil, t0.Add(62*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, execution.Outcome)

	assert.Equal(t, []Outcome{OutcomeSuccess, OutcomeSuccess, OutcomeSuccess, OutcomeSkippedRateLimit, OutcomeSuccess}, repo.outcomes())
}

func TestExecuteSoftFailure(t *testing.T) {
	executor := &fakeActionExecutor{failSoft: true}
	engine, _ := newTestEngine(remediationRule("rem-1"), executor)

	execution, err := engine.Execute(context.Background(), "rem-1", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, execution.Outcome)
	assert.Equal(t, "nothing to do", execution.Detail)
}

func TestExecuteCancellationRecordsFailed(t *testing.T) {
	executor := &fakeActionExecutor{block: make(chan struct{})}
	engine, repo := newTestEngine(remediationRule("rem-1"), executor)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		execution *Execution
		err       error
	}
	done := make(chan result, 1)
	go func() {
		execution, err := engine.Execute(ctx, "rem-1", nil, time.Now())
		done <- result{execution, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	res := <-done
	require.NoError(t, res.err)
	execution := res.execution
	assert.Equal(t, OutcomeFailed, execution.Outcome)
	assert.Equal(t, "cancelled", execution.Detail)
	// The audit row is persisted despite the cancelled context.
	assert.Equal(t, []Outcome{OutcomeFailed}, repo.outcomes())
}

func TestExecuteConcurrentCallsShareOneBudget(t *testing.T) {
	rule := remediationRule("rem-1")
	rule.CooldownSeconds = 0
	rule.MaxExecutions = 1
	executor := &fakeActionExecutor{}
	engine, _ := newTestEngine(rule, executor)

	now := time.Now()
	var wg sync.WaitGroup
	results := make(chan Outcome, 8)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			execution, err := engine.Execute(context.Background(), "rem-1", nil, now)
			if err != nil {
				errs <- err
				return
			}
			results <- execution.Outcome
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	attempts := 0
	for outcome := range results {
		if outcome == OutcomeSuccess {
			attempts++
		} else {
			assert.Equal(t, OutcomeSkippedRateLimit, outcome)
		}
	}
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, executor.callCount())
}

func TestEvaluateConditions(t *testing.T) {
	rule := remediationRule("rem-1")
	engine, _ := newTestEngine(rule, &fakeActionExecutor{})

	firings, err := engine.EvaluateConditions(context.Background(),
		alerting.NewSnapshot(time.Now(), map[string]float64{"batch_errors_last_hour": 2}))
	require.NoError(t, err)
	require.Len(t, firings, 1)
	assert.Equal(t, "rem-1", firings[0].Rule.ID)

	firings, err = engine.EvaluateConditions(context.Background(),
		alerting.NewSnapshot(time.Now(), map[string]float64{"batch_errors_last_hour": 0}))
	require.NoError(t, err)
	assert.Empty(t, firings)
}

func TestExecutionHistory(t *testing.T) {
	engine, repo := newTestEngine(remediationRule("rem-1"), &fakeActionExecutor{})
	ctx := context.Background()

	_, err := engine.Execute(ctx, "rem-1", map[string]float64{"batch_errors_last_hour": 2}, time.Now())
	require.NoError(t, err)

	history, err := engine.ExecutionHistory(ctx, "rem-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, map[string]float64{"batch_errors_last_hour": 2}, history[0].TriggerData)

	history, err = engine.ExecutionHistory(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	_ = repo
}
