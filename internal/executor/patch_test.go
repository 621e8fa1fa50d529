package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/copilot-bridge/agent/internal/gitexec"
	"github.com/copilot-bridge/agent/internal/task"
)

func TestApplyResultNoPatchNoOp(t *testing.T) {
	mock := &gitexec.MockRunner{}
	ops := &gitexec.Ops{Runner: mock}
	result := task.NewReviewResult("nothing to apply")

	if err := ApplyResult(context.Background(), ops, "/repo", result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.Calls) != 0 {
		t.Fatalf("expected no git calls for a patch-less result, got %v", mock.Calls)
	}
}

func TestApplyResultDetectsDivergedClone(t *testing.T) {
	mock := &gitexec.MockRunner{
		RunFunc: func(_ context.Context, _ string, _ time.Duration, args ...string) (string, error) {
			if args[0] == "rev-parse" {
				return "deadbeefdeadbeef", nil
			}
			return "", nil
		},
	}
	ops := &gitexec.Ops{Runner: mock}
	result := task.NewCodingResult("did stuff", "diff --git a/x b/x\n", "0000000000000000")

	err := ApplyResult(context.Background(), ops, "/repo", result)
	var diverged *DivergedCloneFailure
	if !errors.As(err, &diverged) {
		t.Fatalf("expected DivergedCloneFailure, got %v", err)
	}
}

func TestApplyResultRejectsTraversalBeforeApplying(t *testing.T) {
	applyCalled := false
	mock := &gitexec.MockRunner{
		RunFunc: func(_ context.Context, _ string, _ time.Duration, args ...string) (string, error) {
			if args[0] == "rev-parse" {
				return "deadbeef", nil
			}
			if args[0] == "apply" {
				applyCalled = true
			}
			return "", nil
		},
	}
	ops := &gitexec.Ops{Runner: mock}
	patch := "diff --git a/../../etc/passwd b/../../etc/passwd\n--- a/../../etc/passwd\n+++ b/../../etc/passwd\n"
	result := task.NewCodingResult("malicious", patch, "deadbeef")

	err := ApplyResult(context.Background(), ops, "/repo", result)
	if err == nil || !strings.Contains(err.Error(), "traversal") {
		t.Fatalf("expected traversal rejection, got %v", err)
	}
	if applyCalled {
		t.Fatalf("git apply should never be invoked for a traversal patch")
	}
}

func TestApplyResultAppliesCleanPatch(t *testing.T) {
	mock := &gitexec.MockRunner{
		RunFunc: func(_ context.Context, _ string, _ time.Duration, args ...string) (string, error) {
			if args[0] == "rev-parse" {
				return "deadbeef", nil
			}
			return "", nil
		},
	}
	ops := &gitexec.Ops{Runner: mock}
	result := task.NewCodingResult("fixed bug", "diff --git a/x b/x\n--- a/x\n+++ b/x\n", "deadbeef")

	if err := ApplyResult(context.Background(), ops, "/repo", result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
