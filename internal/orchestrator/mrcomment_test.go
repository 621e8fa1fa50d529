package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/copilot-bridge/agent/internal/agent/agentfake"
	"github.com/copilot-bridge/agent/internal/executor"
	"github.com/copilot-bridge/agent/internal/gitexec"
	"github.com/copilot-bridge/agent/internal/task"
	"github.com/copilot-bridge/agent/internal/workspace"
)

var errFakeClone = errors.New("fake: clone failed")

func TestParseCopilotCommand(t *testing.T) {
	cases := []struct {
		body     string
		wantOK   bool
		wantText string
	}{
		{"/copilot fix the bug in main.go", true, "fix the bug in main.go"},
		{"/Copilot   add tests  ", true, "add tests"},
		{"/copilot ", false, ""},
		{"please /copilot do something", false, ""},
		{"not a command", false, ""},
	}

	for _, c := range cases {
		got, ok := ParseCopilotCommand(c.body)
		if ok != c.wantOK || got != c.wantText {
			t.Errorf("ParseCopilotCommand(%q) = (%q, %v), want (%q, %v)", c.body, got, ok, c.wantText, c.wantOK)
		}
	}
}

func TestMRCommentOrchestratorPostsChangesPushed(t *testing.T) {
	adapter, store, locks := newTestOrchestratorDeps()
	adapter.ClonedWorkspace = &workspace.Workspace{Path: "/tmp/repo", Branch: "feature"}

	runner := &agentfake.Runner{Output: "Fixed the bug."}
	exec := executor.NewInProcess(runner, store)
	mockRunner := &gitexec.MockRunner{
		RunFunc: func(_ context.Context, _ string, _ time.Duration, args ...string) (string, error) {
			if len(args) > 0 && args[0] == "status" {
				return " M main.go", nil
			}
			return "", nil
		},
	}
	git := &gitexec.Ops{Runner: mockRunner}

	orch := NewMRCommentOrchestrator(adapter, locks, exec, git, "tok", "system prompt")

	ev := MRCommentEvent{
		ProjectID: 1, MRIID: 5, CommentID: 9, Title: "Add feature",
		SourceBranch: "feature", TargetBranch: "main",
		CloneURL: "https://gitlab.example/repo.git", Instruction: "fix the bug",
	}

	if err := orch.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(adapter.Notes) != 1 {
		t.Fatalf("expected one note, got %d", len(adapter.Notes))
	}
	if adapter.Notes[0].Body != "Changes pushed.\n\nFixed the bug." {
		t.Fatalf("unexpected note body: %q", adapter.Notes[0].Body)
	}
}

func TestMRCommentOrchestratorAppliesRemoteExecutorPatchBeforeCommit(t *testing.T) {
	adapter, _, locks := newTestOrchestratorDeps()
	adapter.ClonedWorkspace = &workspace.Workspace{Path: "/tmp/repo", Branch: "feature"}

	exec := &remoteResultExecutor{result: task.Result{
		ResultType: string(task.KindCoding),
		Summary:    "Fixed the bug.",
		Patch:      "diff --git a/main.go b/main.go\n--- a/main.go\n+++ b/main.go\n@@ -1,1 +1,1 @@\n-old\n+new\n",
		BaseCommit: "def456",
	}}

	var calls []string
	dirty := false
	git := &gitexec.Ops{Runner: &gitexec.MockRunner{
		RunFunc: func(_ context.Context, _ string, _ time.Duration, args ...string) (string, error) {
			calls = append(calls, gitSubcommand(args))
			switch args[0] {
			case "rev-parse":
				return "def456", nil
			case "apply":
				dirty = true
				return "", nil
			case "status":
				if dirty {
					return " M main.go", nil
				}
				return "", nil
			}
			return "", nil
		},
	}}

	orch := NewMRCommentOrchestrator(adapter, locks, exec, git, "tok", "system prompt")

	ev := MRCommentEvent{
		ProjectID: 1, MRIID: 5, CommentID: 9, Title: "Add feature",
		SourceBranch: "feature", TargetBranch: "main",
		CloneURL: "https://gitlab.example/repo.git", Instruction: "fix the bug",
	}

	if err := orch.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applyIdx, commitIdx := -1, -1
	for i, c := range calls {
		if c == "apply" && applyIdx == -1 {
			applyIdx = i
		}
		if c == "commit" && commitIdx == -1 {
			commitIdx = i
		}
	}
	if applyIdx == -1 {
		t.Fatalf("expected the remote result's patch to be applied via git apply, calls: %v", calls)
	}
	if commitIdx == -1 || commitIdx < applyIdx {
		t.Fatalf("expected commit to follow patch application, calls: %v", calls)
	}
	if len(adapter.Notes) != 1 || adapter.Notes[0].Body != "Changes pushed.\n\nFixed the bug." {
		t.Fatalf("expected the applied patch to produce a pushed-changes note, got %+v", adapter.Notes)
	}
}

func TestMRCommentOrchestratorPostsNoChangesNeeded(t *testing.T) {
	adapter, store, locks := newTestOrchestratorDeps()
	adapter.ClonedWorkspace = &workspace.Workspace{Path: "/tmp/repo", Branch: "feature"}

	runner := &agentfake.Runner{Output: "Already correct."}
	exec := executor.NewInProcess(runner, store)
	git := &gitexec.Ops{Runner: &gitexec.MockRunner{}}

	orch := NewMRCommentOrchestrator(adapter, locks, exec, git, "tok", "system prompt")

	ev := MRCommentEvent{ProjectID: 1, MRIID: 5, CommentID: 9, SourceBranch: "feature", CloneURL: "https://gitlab.example/repo.git", Instruction: "noop"}

	if err := orch.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(adapter.Notes) != 1 || adapter.Notes[0].Body != "No file changes needed.\n\nAlready correct." {
		t.Fatalf("unexpected notes: %+v", adapter.Notes)
	}
}

func TestMRCommentOrchestratorPostsErrorNoteOnFailure(t *testing.T) {
	adapter, store, locks := newTestOrchestratorDeps()
	adapter.CloneErr = errFakeClone

	exec := executor.NewInProcess(&agentfake.Runner{}, store)
	git := &gitexec.Ops{Runner: &gitexec.MockRunner{}}
	orch := NewMRCommentOrchestrator(adapter, locks, exec, git, "tok", "system prompt")

	ev := MRCommentEvent{ProjectID: 1, MRIID: 5, CloneURL: "https://gitlab.example/repo.git", Instruction: "do it"}

	if err := orch.Handle(context.Background(), ev); err == nil {
		t.Fatalf("expected error to propagate")
	}

	if len(adapter.Notes) != 1 || adapter.Notes[0].Body != "Agent encountered an error processing your request." {
		t.Fatalf("expected an error note, got %+v", adapter.Notes)
	}
}
