package vcs

import (
	"context"
	"time"

	"github.com/copilot-bridge/agent/internal/workspace"
)

// DiffRefs is the commit triple GitLab requires to anchor inline
// discussions, matching spec.md's MRDiff entity.
type DiffRefs struct {
	BaseSHA  string
	StartSHA string
	HeadSHA  string
}

// Change is one file's unified diff within an MR.
type Change struct {
	OldPath     string
	NewPath     string
	Diff        string
	NewFile     bool
	DeletedFile bool
	RenamedFile bool
}

// MRDiff is the full set of changes plus anchoring commits for one MR.
type MRDiff struct {
	Title       string
	Description string
	Refs        DiffRefs
	Changes     []Change
}

// MRSummary is the shape returned by listing MRs for the poller.
type MRSummary struct {
	IID          int
	ProjectID    int
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	HeadCommit   string
	CloneURL     string
	UpdatedAt    time.Time
}

// Note is a single MR note/comment, used by the poller/comment-command path.
type Note struct {
	ID        int
	Body      string
	AuthorID  int
	Username  string
	CreatedAt time.Time
}

// Adapter is the VCS Adapter component from spec.md §4.2.
type Adapter interface {
	GetMRDetails(projectID, mrIID int) (MRDiff, error)
	CloneRepo(ctx context.Context, cloneURL, branch string) (*workspace.Workspace, error)
	PostNote(projectID, mrIID int, body string) error
	PostInlineDiscussion(projectID, mrIID int, refs DiffRefs, file string, line int, body string) error
	CreateBranch(projectID int, fromBranch, toBranch string) error
	CreateMergeRequest(projectID int, sourceBranch, targetBranch, title, description string) (int, error)
	ListProjectMRs(projectID int, state string, updatedAfter *time.Time) ([]MRSummary, error)
	ListMRNotes(projectID, mrIID int, createdAfter *time.Time) ([]Note, error)
	ResolveProject(ref string) (int, error)
}
