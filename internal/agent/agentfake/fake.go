// Package agentfake provides a scriptable agent.Runner test double.
package agentfake

import (
	"context"

	"github.com/copilot-bridge/agent/internal/task"
)

// Runner returns a canned output (or error) for every call, and records
// the specs it was invoked with.
type Runner struct {
	Output string
	Err    error
	Calls  []task.Spec
}

func (r *Runner) Run(_ context.Context, spec task.Spec) (string, error) {
	r.Calls = append(r.Calls, spec)
	if r.Err != nil {
		return "", r.Err
	}
	return r.Output, nil
}
