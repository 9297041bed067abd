package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/axmon/axmon-backend-go/internal/core/remediation"
)

// ExecutorRegistry routes remediation actions to the executor of the target
// environment. Rules name their target with an "environment" action param;
// when only one environment is registered the param may be omitted.
type ExecutorRegistry struct {
	mu        sync.RWMutex
	executors map[string]remediation.ActionExecutor
}

// NewExecutorRegistry creates an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[string]remediation.ActionExecutor)}
}

// Register adds the executor for one environment.
func (r *ExecutorRegistry) Register(environment string, executor remediation.ActionExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[environment] = executor
}

// PerformAction dispatches to the executor named by params["environment"].
func (r *ExecutorRegistry) PerformAction(ctx context.Context, action string, params map[string]string) (remediation.ActionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	env := params["environment"]
	if env == "" && len(r.executors) == 1 {
		for name := range r.executors {
			env = name
		}
	}

	executor, ok := r.executors[env]
	if !ok {
		return remediation.ActionResult{}, fmt.Errorf("no action executor for environment %q", env)
	}
	return executor.PerformAction(ctx, action, params)
}
