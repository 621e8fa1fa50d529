// Package executor implements the Task Executor interface from
// spec.md §4.4: Execute(TaskSpec) -> TaskResult, idempotent per task_id.
package executor

import (
	"context"

	"github.com/copilot-bridge/agent/internal/task"
)

// Executor runs an agent task and returns its structured result.
type Executor interface {
	Execute(ctx context.Context, spec task.Spec) (task.Result, error)
}
