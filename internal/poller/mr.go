package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/copilot-bridge/agent/internal/orchestrator"
	"github.com/copilot-bridge/agent/internal/vcs"
)

// ReviewHandler runs the Review Orchestrator for one event. The
// orchestrator itself owns the review:{project}:{mr}[:{head}] dedup
// check (spec.md §4.5.1), so the poller does not duplicate it here — it
// only needs to avoid re-fetching MRs it already knows about, which the
// updated_after watermark handles.
type ReviewHandler interface {
	Handle(ctx context.Context, ev orchestrator.ReviewEvent) error
}

// MRPoller discovers opened MRs across a set of projects and feeds them
// through a ReviewHandler. The watermark only advances after a complete
// cycle succeeds over every project, grounded on gitlab_poller.py's
// `_poll_once` (captures poll_start before iterating, commits it to
// self._watermark only once the loop finishes).
type MRPoller struct {
	adapter    vcs.Adapter
	review     ReviewHandler
	projectIDs []int
	interval   time.Duration

	watermark *time.Time
}

// NewMRPoller constructs an MRPoller.
func NewMRPoller(adapter vcs.Adapter, review ReviewHandler, projectIDs []int, interval time.Duration) *MRPoller {
	return &MRPoller{adapter: adapter, review: review, projectIDs: projectIDs, interval: interval}
}

// Run blocks, polling on interval until ctx is canceled.
func (p *MRPoller) Run(ctx context.Context) {
	runLoop(ctx, "mr", p.interval, p.pollOnce)
}

func (p *MRPoller) pollOnce(ctx context.Context) error {
	pollStart := time.Now().UTC()

	for _, projectID := range p.projectIDs {
		mrs, err := p.adapter.ListProjectMRs(projectID, "opened", p.watermark)
		if err != nil {
			return fmt.Errorf("list MRs for project %d: %w", projectID, err)
		}
		for _, mr := range mrs {
			if err := p.processMR(ctx, projectID, mr); err != nil {
				return fmt.Errorf("process MR %d/%d: %w", projectID, mr.IID, err)
			}
		}
	}

	p.watermark = &pollStart
	return nil
}

func (p *MRPoller) processMR(ctx context.Context, projectID int, mr vcs.MRSummary) error {
	ev := orchestrator.ReviewEvent{
		ProjectID:    projectID,
		MRIID:        mr.IID,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		HeadCommit:   mr.HeadCommit,
		Title:        mr.Title,
		Description:  mr.Description,
		CloneURL:     mr.CloneURL,
	}
	return p.review.Handle(ctx, ev)
}
