package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/copilot-bridge/agent/internal/gitexec"
	"github.com/copilot-bridge/agent/internal/task"
)

// ApplyResult applies a coding task's result patch to the local clone at
// dir, per spec.md §4.4.4: the local HEAD must still match the result's
// base_commit (otherwise the caller's clone has drifted out from under a
// remote job that ran against a different snapshot), the patch is checked
// for path traversal before git ever sees it, and application uses a
// three-way merge so trivial drift in unrelated hunks does not abort.
func ApplyResult(ctx context.Context, ops *gitexec.Ops, dir string, result task.Result) error {
	if result.BaseCommit != "" {
		head, err := ops.HeadCommit(ctx, dir)
		if err != nil {
			return fmt.Errorf("read local HEAD: %w", err)
		}
		if !strings.HasPrefix(head, result.BaseCommit) && !strings.HasPrefix(result.BaseCommit, head) {
			return &DivergedCloneFailure{LocalHead: head, BaseCommit: result.BaseCommit}
		}
	}

	if result.Patch == "" {
		return nil
	}

	if err := gitexec.RejectTraversal(result.Patch); err != nil {
		return fmt.Errorf("reject patch: %w", err)
	}

	if err := ops.ApplyPatch(ctx, dir, result.Patch); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	return nil
}
