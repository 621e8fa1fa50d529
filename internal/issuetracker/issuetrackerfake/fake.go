// Package issuetrackerfake provides an in-memory issuetracker.Adapter
// double for orchestrator and poller tests, matching vcsfake's
// hand-written-fake style.
package issuetrackerfake

import (
	"context"

	"github.com/copilot-bridge/agent/internal/issuetracker"
)

type Transition struct {
	IssueKey, TargetStatus string
}

type Comment struct {
	IssueKey, Body string
}

// Adapter is a scriptable fake implementing issuetracker.Adapter.
type Adapter struct {
	SearchResult []issuetracker.Issue
	SearchErr    error

	Transitions []Transition
	TransitionErr error

	Comments []Comment
	CommentErr error
}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) SearchIssues(_ context.Context, _ string) ([]issuetracker.Issue, error) {
	if a.SearchErr != nil {
		return nil, a.SearchErr
	}
	return a.SearchResult, nil
}

func (a *Adapter) TransitionIssue(_ context.Context, issueKey, targetStatus string) error {
	if a.TransitionErr != nil {
		return a.TransitionErr
	}
	a.Transitions = append(a.Transitions, Transition{IssueKey: issueKey, TargetStatus: targetStatus})
	return nil
}

func (a *Adapter) AddComment(_ context.Context, issueKey, body string) error {
	if a.CommentErr != nil {
		return a.CommentErr
	}
	a.Comments = append(a.Comments, Comment{IssueKey: issueKey, Body: body})
	return nil
}

var _ issuetracker.Adapter = (*Adapter)(nil)
