// Package agent is the thin seam to the out-of-scope LLM coding agent
// runtime (spec.md §1's explicit non-goal boundary, SPEC_FULL.md §4.8):
// a Runner takes a task.Spec and returns the agent's raw text output.
// Prompt templates, sandboxing, and model selection live in the agent
// runtime itself, not here.
package agent

import (
	"context"

	"github.com/copilot-bridge/agent/internal/task"
)

// Runner executes one agent session against an already-cloned working
// directory (for review and in-process coding tasks) and returns the raw
// text the agent produced.
type Runner interface {
	Run(ctx context.Context, spec task.Spec) (rawOutput string, err error)
}
