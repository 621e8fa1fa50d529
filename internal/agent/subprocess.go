package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/copilot-bridge/agent/internal/task"
)

// SubprocessRunner shells out to a configured agent binary, passing the
// task's prompts and id as environment variables, the task kind as a
// --task-type argument, and the repo path as its working directory,
// grounded on the teacher's provider/executor subprocess
// invocation shape (internal/executor/task.go's runCmd calls) generalized
// from the teacher's fixed `claude`/`codex` binaries to one configurable
// binary path.
type SubprocessRunner struct {
	BinaryPath string
	Timeout    time.Duration
}

// NewSubprocessRunner constructs a runner invoking binaryPath.
func NewSubprocessRunner(binaryPath string, timeout time.Duration) *SubprocessRunner {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SubprocessRunner{BinaryPath: binaryPath, Timeout: timeout}
}

func (r *SubprocessRunner) Run(ctx context.Context, spec task.Spec) (string, error) {
	if spec.RepoPath == "" {
		return "", fmt.Errorf("subprocess agent runner requires spec.RepoPath")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.BinaryPath, "--task-type", string(spec.Kind))
	cmd.Dir = spec.RepoPath
	cmd.Env = append(cmd.Environ(),
		"COPILOT_SYSTEM_PROMPT="+spec.SystemPrompt,
		"COPILOT_USER_PROMPT="+spec.UserPrompt,
		"COPILOT_TASK_ID="+spec.TaskID,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return "", fmt.Errorf("agent session for task %s timed out after %s", spec.TaskID, r.Timeout)
		}
		return "", fmt.Errorf("agent session for task %s failed: %s", spec.TaskID, stderr.String())
	}

	return stdout.String(), nil
}
