package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/copilot-bridge/agent/internal/issuetracker"
	"github.com/copilot-bridge/agent/internal/orchestrator"
)

// CodingHandler runs the Coding Orchestrator for one discovered issue.
// The handler itself owns the processed-issue dedup (spec.md §4.7), so
// the poller calls it, without a dedup check of its own, for every issue
// the JQL search returns each cycle whose project key has a mapping.
type CodingHandler interface {
	Handle(ctx context.Context, issue issuetracker.Issue, mapping orchestrator.ProjectMapping) error
}

// IssuePoller searches Jira on an interval for issues in the configured
// trigger status across every mapped project, and feeds each one through
// a CodingHandler, grounded on jira_poller.py's `_poll_once`.
type IssuePoller struct {
	issues        issuetracker.Adapter
	handler       CodingHandler
	triggerStatus string
	projectMap    map[string]orchestrator.ProjectMapping
	interval      time.Duration
}

// NewIssuePoller constructs an IssuePoller.
func NewIssuePoller(issues issuetracker.Adapter, handler CodingHandler, triggerStatus string, projectMap map[string]orchestrator.ProjectMapping, interval time.Duration) *IssuePoller {
	return &IssuePoller{issues: issues, handler: handler, triggerStatus: triggerStatus, projectMap: projectMap, interval: interval}
}

// Run blocks, polling on interval until ctx is canceled.
func (p *IssuePoller) Run(ctx context.Context) {
	runLoop(ctx, "jira", p.interval, p.pollOnce)
}

func (p *IssuePoller) pollOnce(ctx context.Context) error {
	if len(p.projectMap) == 0 {
		return nil
	}

	jql := p.buildJQL()
	issues, err := p.issues.SearchIssues(ctx, jql)
	if err != nil {
		return fmt.Errorf("search issues: %w", err)
	}

	for _, issue := range issues {
		mapping, ok := p.projectMap[issue.ProjectKey()]
		if !ok {
			continue
		}
		if err := p.handler.Handle(ctx, issue, mapping); err != nil {
			return fmt.Errorf("handle issue %s: %w", issue.Key, err)
		}
	}
	return nil
}

func (p *IssuePoller) buildJQL() string {
	keys := make([]string, 0, len(p.projectMap))
	for key := range p.projectMap {
		keys = append(keys, fmt.Sprintf("%q", key))
	}
	return fmt.Sprintf(`status = %q AND project IN (%s)`, p.triggerStatus, strings.Join(keys, ", "))
}
