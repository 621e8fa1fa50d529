package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/copilot-bridge/agent/internal/executor"
	"github.com/copilot-bridge/agent/internal/gitexec"
	"github.com/copilot-bridge/agent/internal/lock"
	"github.com/copilot-bridge/agent/internal/task"
	"github.com/copilot-bridge/agent/internal/vcs"
)

const copilotPrefix = "/copilot "

const (
	agentAuthorName  = "Copilot Agent"
	agentAuthorEmail = "copilot-agent@noreply"
)

// ParseCopilotCommand extracts the instruction from a note body starting
// with the case-insensitive "/copilot " prefix. Returns ("", false) when
// the note isn't a command, or carries no instruction after the prefix.
func ParseCopilotCommand(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) < len(copilotPrefix) || !strings.EqualFold(trimmed[:len(copilotPrefix)], copilotPrefix) {
		return "", false
	}
	instruction := strings.TrimSpace(trimmed[len(copilotPrefix):])
	if instruction == "" {
		return "", false
	}
	return instruction, true
}

// MRCommentEvent is a note on an MR that has already passed the self-
// comment guard and the /copilot prefix check (spec.md §4.5.2, §4.6).
type MRCommentEvent struct {
	ProjectID    int
	MRIID        int
	CommentID    int
	Title        string
	SourceBranch string
	TargetBranch string
	CloneURL     string
	Instruction  string
}

// MRCommentOrchestrator implements the MR-comment Coding Orchestrator.
type MRCommentOrchestrator struct {
	adapter     vcs.Adapter
	locks       *lock.Manager
	exec        executor.Executor
	git         *gitexec.Ops
	gitlabToken string
	systemPrompt string
}

// NewMRCommentOrchestrator constructs an MRCommentOrchestrator.
func NewMRCommentOrchestrator(adapter vcs.Adapter, locks *lock.Manager, exec executor.Executor, git *gitexec.Ops, gitlabToken, systemPrompt string) *MRCommentOrchestrator {
	return &MRCommentOrchestrator{adapter: adapter, locks: locks, exec: exec, git: git, gitlabToken: gitlabToken, systemPrompt: systemPrompt}
}

// Handle runs the coding task requested by a /copilot comment and reports
// the outcome back onto the MR.
func (o *MRCommentOrchestrator) Handle(ctx context.Context, ev MRCommentEvent) error {
	handle, err := o.locks.Acquire(ctx, ev.CloneURL, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire repo lock for %s: %w", ev.CloneURL, err)
	}
	defer handle.Release(ctx)

	if err := o.run(ctx, ev); err != nil {
		log.Printf("[Orchestrator:mrcomment] copilot_command_failed project=%d mr=%d: %v", ev.ProjectID, ev.MRIID, err)
		if postErr := o.adapter.PostNote(ev.ProjectID, ev.MRIID, "Agent encountered an error processing your request."); postErr != nil {
			log.Printf("[Orchestrator:mrcomment] error_comment_failed project=%d mr=%d: %v", ev.ProjectID, ev.MRIID, postErr)
		}
		return err
	}
	return nil
}

func (o *MRCommentOrchestrator) run(ctx context.Context, ev MRCommentEvent) error {
	ws, err := o.adapter.CloneRepo(ctx, ev.CloneURL, ev.SourceBranch)
	if err != nil {
		return fmt.Errorf("clone %s: %w", ev.CloneURL, err)
	}
	defer ws.ReleaseLogged()

	spec := task.Spec{
		Kind:         task.KindCoding,
		TaskID:       fmt.Sprintf("mr-%d-%d-%d", ev.ProjectID, ev.MRIID, ev.CommentID),
		RepoURL:      ev.CloneURL,
		Branch:       ev.SourceBranch,
		SystemPrompt: o.systemPrompt,
		UserPrompt:   mrCodingPrompt(ev),
		RepoPath:     ws.Path,
	}

	result, err := o.exec.Execute(ctx, spec)
	if err != nil {
		return fmt.Errorf("run coding task: %w", err)
	}

	if err := executor.ApplyResult(ctx, o.git, ws.Path, result); err != nil {
		return fmt.Errorf("apply task result: %w", err)
	}

	commitMsg := "fix: " + truncate(ev.Instruction, 50)
	changed, err := o.git.Commit(ctx, ws.Path, commitMsg, agentAuthorName, agentAuthorEmail)
	if err != nil {
		return fmt.Errorf("commit changes: %w", err)
	}

	if !changed {
		return o.adapter.PostNote(ev.ProjectID, ev.MRIID, fmt.Sprintf("No file changes needed.\n\n%s", result.Summary))
	}

	if err := o.git.Push(ctx, ws.Path, "origin", ev.SourceBranch, o.gitlabToken); err != nil {
		return fmt.Errorf("push %s: %w", ev.SourceBranch, err)
	}

	return o.adapter.PostNote(ev.ProjectID, ev.MRIID, fmt.Sprintf("Changes pushed.\n\n%s", result.Summary))
}

func mrCodingPrompt(ev MRCommentEvent) string {
	return fmt.Sprintf(
		"## MR: %s\n**Branch:** %s -> %s\n**Instruction:** %s\n\n"+
			"Implement the requested changes on this merge request. "+
			"Explore the repository, make the changes, run tests, and provide a summary of what you did.",
		ev.Title, ev.SourceBranch, ev.TargetBranch, ev.Instruction,
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
