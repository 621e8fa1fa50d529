package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/copilot-bridge/agent/internal/orchestrator"
	"github.com/copilot-bridge/agent/internal/vcs"
	"github.com/copilot-bridge/agent/internal/vcs/vcsfake"
)

type fakeReviewHandler struct {
	calls []orchestrator.ReviewEvent
	err   error
}

func (f *fakeReviewHandler) Handle(_ context.Context, ev orchestrator.ReviewEvent) error {
	f.calls = append(f.calls, ev)
	return f.err
}

func TestMRPollerProcessesEachOpenMR(t *testing.T) {
	adapter := vcsfake.New()
	adapter.ProjectMRs[1] = []vcs.MRSummary{
		{IID: 5, ProjectID: 1, Title: "Add feature", SourceBranch: "feature", TargetBranch: "main", HeadCommit: "abc"},
		{IID: 6, ProjectID: 1, Title: "Fix bug", SourceBranch: "bugfix", TargetBranch: "main", HeadCommit: "def"},
	}

	handler := &fakeReviewHandler{}
	p := NewMRPoller(adapter, handler, []int{1}, time.Second)

	if err := p.pollOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(handler.calls) != 2 {
		t.Fatalf("expected 2 review events, got %d", len(handler.calls))
	}
}

func TestMRPollerAdvancesWatermarkOnlyAfterFullCycle(t *testing.T) {
	adapter := vcsfake.New()
	adapter.ProjectMRs[1] = []vcs.MRSummary{{IID: 5, ProjectID: 1, HeadCommit: "abc"}}

	p := NewMRPoller(adapter, &fakeReviewHandler{}, []int{1}, time.Second)
	if p.watermark != nil {
		t.Fatalf("expected no watermark before the first cycle")
	}

	if err := p.pollOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.watermark == nil {
		t.Fatalf("expected watermark to advance after a successful cycle")
	}
}

func TestMRPollerDoesNotAdvanceWatermarkOnFailure(t *testing.T) {
	adapter := vcsfake.New()
	adapter.ProjectMRs[1] = []vcs.MRSummary{{IID: 5, ProjectID: 1, HeadCommit: "abc"}}

	p := NewMRPoller(adapter, &fakeReviewHandler{err: errors.New("boom")}, []int{1}, time.Second)

	if err := p.pollOnce(context.Background()); err == nil {
		t.Fatalf("expected error to propagate")
	}
	if p.watermark != nil {
		t.Fatalf("expected watermark to stay nil after a failed cycle")
	}
}
