package executor

import "fmt"

// ExecutionFailure wraps a remote job's terminal failure, carrying
// whatever worker logs could be retrieved best-effort.
type ExecutionFailure struct {
	JobName string
	Logs    string
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobName, e.Logs)
}

// ExecutionTimeout is raised when a remote job does not reach a terminal
// state before its deadline.
type ExecutionTimeout struct {
	JobName string
	Timeout string
}

func (e *ExecutionTimeout) Error() string {
	return fmt.Sprintf("job %s timed out after %s", e.JobName, e.Timeout)
}

// DivergedCloneFailure is raised by patch application (spec.md §4.4.4)
// when the local clone's HEAD no longer matches the result's base_commit.
type DivergedCloneFailure struct {
	LocalHead  string
	BaseCommit string
}

func (e *DivergedCloneFailure) Error() string {
	return fmt.Sprintf("local clone diverged: head=%s base_commit=%s", e.LocalHead, e.BaseCommit)
}
