package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/copilot-bridge/agent/internal/executor"
	"github.com/copilot-bridge/agent/internal/gitexec"
	"github.com/copilot-bridge/agent/internal/issuetracker"
	"github.com/copilot-bridge/agent/internal/lock"
	"github.com/copilot-bridge/agent/internal/statestore"
	"github.com/copilot-bridge/agent/internal/task"
	"github.com/copilot-bridge/agent/internal/vcs"
)

// ProjectMapping targets a Jira project at a GitLab project, grounded on
// the original's GitLabProjectMapping.
type ProjectMapping struct {
	GitLabProjectID int
	CloneURL        string
	TargetBranch    string
}

// TransientCloneFailure marks a coding-task failure that should NOT mark
// the issue processed, per spec.md §4.5.3 step 3: the next poll cycle
// retries rather than losing the issue to a one-off clone hiccup.
type TransientCloneFailure struct {
	Err error
}

func (e *TransientCloneFailure) Error() string { return fmt.Sprintf("transient clone failure: %v", e.Err) }
func (e *TransientCloneFailure) Unwrap() error  { return e.Err }

// CodingOrchestrator implements the Issue-driven Coding Orchestrator.
// The in-memory processed set is this orchestrator's source of truth
// during a process lifetime; every mark is also mirrored into the State
// Store (24h TTL) so a restart within the TTL window doesn't reprocess a
// freshly-marked issue (SPEC_FULL.md §4.7 Open-Question resolution).
type CodingOrchestrator struct {
	adapter     vcs.Adapter
	issues      issuetracker.Adapter
	store       statestore.Store
	locks       *lock.Manager
	exec        executor.Executor
	git         *gitexec.Ops
	gitlabToken string

	inProgressStatus string
	inReviewStatus   string
	systemPrompt     string

	mu        sync.Mutex
	processed map[string]struct{}
}

// NewCodingOrchestrator constructs a CodingOrchestrator.
func NewCodingOrchestrator(
	adapter vcs.Adapter,
	issues issuetracker.Adapter,
	store statestore.Store,
	locks *lock.Manager,
	exec executor.Executor,
	git *gitexec.Ops,
	gitlabToken, inProgressStatus, inReviewStatus, systemPrompt string,
) *CodingOrchestrator {
	return &CodingOrchestrator{
		adapter: adapter, issues: issues, store: store, locks: locks, exec: exec, git: git,
		gitlabToken:      gitlabToken,
		inProgressStatus: inProgressStatus,
		inReviewStatus:   inReviewStatus,
		systemPrompt:     systemPrompt,
		processed:        make(map[string]struct{}),
	}
}

// IsProcessed checks the in-memory processed set first, lazily checking
// the State Store mirror on first sight of a key (never bulk-scanned).
func (o *CodingOrchestrator) IsProcessed(ctx context.Context, issueKey string) bool {
	o.mu.Lock()
	_, inMemory := o.processed[issueKey]
	o.mu.Unlock()
	if inMemory {
		return true
	}

	seen, err := o.store.IsSeen(ctx, "issue:"+issueKey)
	if err != nil {
		return false
	}
	if seen {
		o.mu.Lock()
		o.processed[issueKey] = struct{}{}
		o.mu.Unlock()
	}
	return seen
}

func (o *CodingOrchestrator) markProcessed(ctx context.Context, issueKey string) {
	o.mu.Lock()
	o.processed[issueKey] = struct{}{}
	o.mu.Unlock()

	if err := o.store.MarkSeen(ctx, "issue:"+issueKey, reviewDedupTTL); err != nil {
		log.Printf("[Orchestrator:coding] mark_seen mirror failed for %s: %v", issueKey, err)
	}
}

// Handle runs the issue-driven coding pipeline for one issue.
func (o *CodingOrchestrator) Handle(ctx context.Context, issue issuetracker.Issue, mapping ProjectMapping) error {
	if o.IsProcessed(ctx, issue.Key) {
		return nil
	}

	handle, err := o.locks.Acquire(ctx, mapping.CloneURL, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire repo lock for %s: %w", mapping.CloneURL, err)
	}
	defer handle.Release(ctx)

	noChanges, err := o.run(ctx, issue, mapping)
	if err != nil {
		var transient *TransientCloneFailure
		if errors.As(err, &transient) {
			log.Printf("[Orchestrator:coding] transient_clone_failure issue=%s: %v", issue.Key, err)
			if commentErr := o.issues.AddComment(ctx, issue.Key, fmt.Sprintf("Clone failed transiently, will retry next cycle: %v", err)); commentErr != nil {
				log.Printf("[Orchestrator:coding] failure_comment_post_failed issue=%s: %v", issue.Key, commentErr)
			}
			return err
		}

		log.Printf("[Orchestrator:coding] coding_task_failed issue=%s: %v", issue.Key, err)
		if commentErr := o.issues.AddComment(ctx, issue.Key, "Automated implementation failed. Check service logs for details."); commentErr != nil {
			log.Printf("[Orchestrator:coding] failure_comment_post_failed issue=%s: %v", issue.Key, commentErr)
		}
		return err
	}

	if noChanges {
		o.markProcessed(ctx, issue.Key)
		return nil
	}

	o.markProcessed(ctx, issue.Key)
	return nil
}

func (o *CodingOrchestrator) run(ctx context.Context, issue issuetracker.Issue, mapping ProjectMapping) (noChanges bool, err error) {
	if err := o.issues.TransitionIssue(ctx, issue.Key, o.inProgressStatus); err != nil {
		return false, fmt.Errorf("transition %s to in-progress: %w", issue.Key, err)
	}

	ws, err := o.adapter.CloneRepo(ctx, mapping.CloneURL, mapping.TargetBranch)
	if err != nil {
		return false, &TransientCloneFailure{Err: fmt.Errorf("clone %s: %w", mapping.CloneURL, err)}
	}
	defer ws.ReleaseLogged()

	branch := "agent/" + strings.ToLower(issue.Key)
	if err := o.git.CreateBranch(ctx, ws.Path, branch); err != nil {
		return false, fmt.Errorf("create branch %s: %w", branch, err)
	}

	if err := ws.EnsureIgnoreFile(".gitignore", defaultIgnoreContents); err != nil {
		return false, fmt.Errorf("ensure ignore file: %w", err)
	}

	spec := task.Spec{
		Kind:         task.KindCoding,
		TaskID:       issue.Key,
		RepoURL:      mapping.CloneURL,
		Branch:       branch,
		SystemPrompt: o.systemPrompt,
		UserPrompt:   issueCodingPrompt(issue),
		RepoPath:     ws.Path,
	}

	result, err := o.exec.Execute(ctx, spec)
	if err != nil {
		return false, fmt.Errorf("run coding task: %w", err)
	}

	if err := executor.ApplyResult(ctx, o.git, ws.Path, result); err != nil {
		return false, fmt.Errorf("apply task result: %w", err)
	}

	commitMsg := fmt.Sprintf("feat(%s): %s", strings.ToLower(issue.Key), issue.Fields.Summary)
	changed, err := o.git.Commit(ctx, ws.Path, commitMsg, agentAuthorName, agentAuthorEmail)
	if err != nil {
		return false, fmt.Errorf("commit changes: %w", err)
	}
	if !changed {
		if err := o.issues.AddComment(ctx, issue.Key, "Agent found no changes to make."); err != nil {
			log.Printf("[Orchestrator:coding] no_changes_comment_failed issue=%s: %v", issue.Key, err)
		}
		return true, nil
	}

	if err := o.git.Push(ctx, ws.Path, "origin", branch, o.gitlabToken); err != nil {
		return false, fmt.Errorf("push %s: %w", branch, err)
	}

	mrTitle := fmt.Sprintf("feat(%s): %s", strings.ToLower(issue.Key), issue.Fields.Summary)
	mrDesc := fmt.Sprintf("Automated implementation for %s.\n\n%s", issue.Key, result.Summary)
	mrIID, err := o.adapter.CreateMergeRequest(mapping.GitLabProjectID, branch, mapping.TargetBranch, mrTitle, mrDesc)
	if err != nil {
		return false, fmt.Errorf("create merge request: %w", err)
	}

	// Best-effort: failure here is logged and does not roll back the MR.
	if err := o.issues.TransitionIssue(ctx, issue.Key, o.inReviewStatus); err != nil {
		log.Printf("[Orchestrator:coding] in_review_transition_failed issue=%s: %v", issue.Key, err)
	}

	mrURL := fmt.Sprintf("%d/-/merge_requests/%d", mapping.GitLabProjectID, mrIID)
	if err := o.issues.AddComment(ctx, issue.Key, fmt.Sprintf("MR created: %s", mrURL)); err != nil {
		log.Printf("[Orchestrator:coding] mr_url_comment_failed issue=%s: %v", issue.Key, err)
	}

	return false, nil
}

const defaultIgnoreContents = "*.pyc\n__pycache__/\nnode_modules/\n.env\n"

func issueCodingPrompt(issue issuetracker.Issue) string {
	return fmt.Sprintf(
		"## %s: %s\n\n%s\n\nImplement this issue. Explore the repository, make the changes, run tests, and provide a summary of what you did.",
		issue.Key, issue.Fields.Summary, issue.DescriptionText(),
	)
}
