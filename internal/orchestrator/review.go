// Package orchestrator implements the three orchestrators from
// spec.md §4.5, grounded on the original's orchestrator.py,
// mr_comment_handler.py, and coding_orchestrator.py.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/copilot-bridge/agent/internal/executor"
	"github.com/copilot-bridge/agent/internal/lock"
	"github.com/copilot-bridge/agent/internal/review"
	"github.com/copilot-bridge/agent/internal/statestore"
	"github.com/copilot-bridge/agent/internal/task"
	"github.com/copilot-bridge/agent/internal/vcs"
)

const (
	lockTTL      = 5 * time.Minute
	reviewDedupTTL = 24 * time.Hour
)

// ReviewEvent is the normalized MR event the webhook and MR poller both
// produce, grounded on spec.md §4.5.1's input list.
type ReviewEvent struct {
	ProjectID    int
	MRIID        int
	SourceBranch string
	TargetBranch string
	HeadCommit   string
	Title        string
	Description  string
	CloneURL     string
}

// ReviewOrchestrator runs the MR Review pipeline: dedup -> lock -> clone ->
// review task -> parse -> post.
type ReviewOrchestrator struct {
	adapter        vcs.Adapter
	store          statestore.Store
	locks          *lock.Manager
	exec           executor.Executor
	gitlabToken    string
	reviewOnPush   bool
	systemPrompt   string
}

// NewReviewOrchestrator constructs a ReviewOrchestrator. reviewOnPush
// selects the dedup key shape (spec.md §4.5.1 step 1): when true, the
// head commit participates in the key so every new push gets its own
// review; when false, an MR is reviewed at most once regardless of push.
func NewReviewOrchestrator(adapter vcs.Adapter, store statestore.Store, locks *lock.Manager, exec executor.Executor, gitlabToken string, reviewOnPush bool, systemPrompt string) *ReviewOrchestrator {
	return &ReviewOrchestrator{
		adapter:      adapter,
		store:        store,
		locks:        locks,
		exec:         exec,
		gitlabToken:  gitlabToken,
		reviewOnPush: reviewOnPush,
		systemPrompt: systemPrompt,
	}
}

func (o *ReviewOrchestrator) dedupKey(ev ReviewEvent) string {
	if o.reviewOnPush {
		return fmt.Sprintf("review:%d:%d:%s", ev.ProjectID, ev.MRIID, ev.HeadCommit)
	}
	return fmt.Sprintf("review:%d:%d", ev.ProjectID, ev.MRIID)
}

// Handle runs the full review pipeline for one MR event.
func (o *ReviewOrchestrator) Handle(ctx context.Context, ev ReviewEvent) error {
	dedupKey := o.dedupKey(ev)
	seen, err := o.store.IsSeen(ctx, dedupKey)
	if err != nil {
		log.Printf("[Orchestrator:review] dedup check failed for %s: %v", dedupKey, err)
	}
	if seen {
		return nil
	}

	handle, err := o.locks.Acquire(ctx, ev.CloneURL, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire repo lock for %s: %w", ev.CloneURL, err)
	}
	defer handle.Release(ctx)

	if err := o.run(ctx, ev); err != nil {
		log.Printf("[Orchestrator:review] review_failed project=%d mr=%d: %v", ev.ProjectID, ev.MRIID, err)
		if postErr := o.adapter.PostNote(ev.ProjectID, ev.MRIID, "Automated review failed. Check service logs for details."); postErr != nil {
			log.Printf("[Orchestrator:review] failure_comment_post_failed project=%d mr=%d: %v", ev.ProjectID, ev.MRIID, postErr)
		}
		return err
	}

	if markErr := o.store.MarkSeen(ctx, dedupKey, reviewDedupTTL); markErr != nil {
		log.Printf("[Orchestrator:review] mark_seen failed for %s: %v", dedupKey, markErr)
	}
	return nil
}

func (o *ReviewOrchestrator) run(ctx context.Context, ev ReviewEvent) error {
	ws, err := o.adapter.CloneRepo(ctx, ev.CloneURL, ev.SourceBranch)
	if err != nil {
		return fmt.Errorf("clone %s: %w", ev.CloneURL, err)
	}
	defer ws.ReleaseLogged()

	spec := task.Spec{
		Kind:         task.KindReview,
		TaskID:       fmt.Sprintf("review:%d:%d:%s", ev.ProjectID, ev.MRIID, ev.HeadCommit),
		RepoURL:      ev.CloneURL,
		Branch:       ev.SourceBranch,
		SystemPrompt: o.systemPrompt,
		UserPrompt:   reviewPrompt(ev),
		RepoPath:     ws.Path,
	}

	result, err := o.exec.Execute(ctx, spec)
	if err != nil {
		return fmt.Errorf("run review task: %w", err)
	}

	parsed := review.Parse(result.Summary)

	diff, err := o.adapter.GetMRDetails(ev.ProjectID, ev.MRIID)
	if err != nil {
		return fmt.Errorf("fetch MR details: %w", err)
	}

	if err := review.PostComments(o.adapter, ev.ProjectID, ev.MRIID, diff, parsed); err != nil {
		return fmt.Errorf("post review comments: %w", err)
	}
	return nil
}

func reviewPrompt(ev ReviewEvent) string {
	return fmt.Sprintf(
		"## %s\n%s\n\n**Branch:** %s -> %s\n\nReview the changes on this branch and report findings.",
		ev.Title, ev.Description, ev.SourceBranch, ev.TargetBranch,
	)
}
