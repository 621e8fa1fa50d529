package gitexec

import (
	"context"
	"testing"
	"time"
)

func TestCommitReturnsFalseWhenNothingStaged(t *testing.T) {
	mock := &MockRunner{
		RunFunc: func(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
			if args[0] == "status" {
				return "", nil
			}
			return "", nil
		},
	}
	ops := &Ops{Runner: mock}

	changed, err := ops.Commit(context.Background(), "/tmp/repo", "msg", "Bot", "bot@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected no changes to be reported")
	}

	for _, call := range mock.Calls {
		if subcommand(call) == "commit" {
			t.Fatal("commit must not run when status is clean")
		}
	}
}

func TestCommitCommitsWhenDirty(t *testing.T) {
	mock := &MockRunner{
		RunFunc: func(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
			if args[0] == "status" {
				return " M file.go", nil
			}
			return "", nil
		},
	}
	ops := &Ops{Runner: mock}

	changed, err := ops.Commit(context.Background(), "/tmp/repo", "msg", "Bot", "bot@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected changes to be reported")
	}

	found := false
	for _, call := range mock.Calls {
		if subcommand(call) == "commit" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a commit call")
	}
}

func TestPushScrubsTokenFromError(t *testing.T) {
	mock := &MockRunner{
		RunFunc: func(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
			return "", errWithToken("push failed: remote rejected secret-token-123")
		},
	}
	ops := &Ops{Runner: mock}

	err := ops.Push(context.Background(), "/tmp/repo", "origin", "agent/x", "secret-token-123")
	if err == nil {
		t.Fatal("expected error")
	}
	if containsSubstr(err.Error(), "secret-token-123") {
		t.Fatalf("token leaked into error: %v", err)
	}
}

type errWithToken string

func (e errWithToken) Error() string { return string(e) }

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// subcommand returns the git subcommand in args, skipping leading
// "-c key=value" config options.
func subcommand(args []string) string {
	for len(args) >= 2 && args[0] == "-c" {
		args = args[2:]
	}
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func TestRejectTraversalCatchesDotDot(t *testing.T) {
	patch := "diff --git a/../etc/passwd b/../etc/passwd\n--- a/../etc/passwd\n+++ b/../etc/passwd\n"
	if err := RejectTraversal(patch); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestRejectTraversalAllowsNormalPatch(t *testing.T) {
	patch := "diff --git a/main.go b/main.go\n--- a/main.go\n+++ b/main.go\n@@ -1,1 +1,1 @@\n-old\n+new\n"
	if err := RejectTraversal(patch); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestDiffStagesUntrackedBeforeDiffing(t *testing.T) {
	var calls [][]string
	mock := &MockRunner{
		RunFunc: func(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
			calls = append(calls, args)
			if args[0] == "diff" {
				return "diff --git a/new.go b/new.go\n", nil
			}
			return "", nil
		},
	}
	ops := &Ops{Runner: mock}

	out, err := ops.Diff(context.Background(), "/tmp/repo", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Fatal("expected diff output")
	}
	if len(calls) != 2 || calls[0][0] != "add" || calls[1][0] != "diff" || calls[1][1] != "abc123" {
		t.Fatalf("unexpected call sequence: %v", calls)
	}
}
