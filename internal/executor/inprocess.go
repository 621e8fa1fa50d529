package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/copilot-bridge/agent/internal/agent"
	"github.com/copilot-bridge/agent/internal/metrics"
	"github.com/copilot-bridge/agent/internal/statestore"
	"github.com/copilot-bridge/agent/internal/task"
)

const resultTTL = time.Hour

// InProcess runs the agent session in this process against an already
// local checkout (spec.md §4.4.1). Idempotency is enforced the same way
// as the remote executors: the first call to Execute does the work and
// caches the serialized result under task_id; subsequent calls for the
// same task_id return the cached value without rerunning the agent.
type InProcess struct {
	runner agent.Runner
	store  statestore.Store
}

// NewInProcess constructs an in-process Executor.
func NewInProcess(runner agent.Runner, store statestore.Store) *InProcess {
	return &InProcess{runner: runner, store: store}
}

func (e *InProcess) Execute(ctx context.Context, spec task.Spec) (task.Result, error) {
	if spec.RepoPath == "" {
		return task.Result{}, fmt.Errorf("in-process executor requires spec.RepoPath to be set")
	}

	if cached, ok, err := e.store.GetResult(ctx, spec.TaskID); err == nil && ok {
		return task.ParseResult(cached, spec.Kind), nil
	}

	start := time.Now()
	raw, err := e.runner.Run(ctx, spec)
	metrics.TaskDuration.WithLabelValues(string(spec.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TasksTotal.WithLabelValues(string(spec.Kind), "failure").Inc()
		// Errors are never cached (spec.md §4.4): a retry can succeed.
		return task.Result{}, fmt.Errorf("run agent session for task %s: %w", spec.TaskID, err)
	}

	result := task.ParseResult(raw, spec.Kind)
	serialized, err := task.Serialize(result)
	if err != nil {
		metrics.TasksTotal.WithLabelValues(string(spec.Kind), "failure").Inc()
		return task.Result{}, fmt.Errorf("serialize result for task %s: %w", spec.TaskID, err)
	}
	if err := e.store.SetResult(ctx, spec.TaskID, serialized, resultTTL); err != nil {
		log.Printf("[Executor:inprocess] failed to cache result for task %s: %v", spec.TaskID, err)
	}

	metrics.TasksTotal.WithLabelValues(string(spec.Kind), "success").Inc()
	return result, nil
}
