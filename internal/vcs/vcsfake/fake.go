// Package vcsfake provides an in-memory vcs.Adapter double for tests in
// other packages (orchestrators, pollers) that need a VCS collaborator
// without a live GitLab instance — the teacher's own test style
// (hand-written fakes, no mocking library).
package vcsfake

import (
	"context"
	"fmt"
	"time"

	"github.com/copilot-bridge/agent/internal/vcs"
	"github.com/copilot-bridge/agent/internal/workspace"
)

// Adapter is a scriptable fake implementing vcs.Adapter.
type Adapter struct {
	MRDetails       map[string]vcs.MRDiff // keyed by "projectID/mrIID"
	ClonedWorkspace *workspace.Workspace
	CloneErr        error

	Notes        []PostedNote
	Discussions  []PostedDiscussion
	Branches     []CreatedBranch
	MergeRequests []CreatedMR
	ProjectMRs   map[int][]vcs.MRSummary
	MRNotes      map[string][]vcs.Note
	Projects     map[string]int

	NextMRIID int
	FailNotes bool
}

type PostedNote struct {
	ProjectID, MRIID int
	Body             string
}

type PostedDiscussion struct {
	ProjectID, MRIID int
	File             string
	Line             int
	Body             string
}

type CreatedBranch struct {
	ProjectID            int
	FromBranch, ToBranch string
}

type CreatedMR struct {
	ProjectID                          int
	SourceBranch, TargetBranch, Title, Description string
}

func New() *Adapter {
	return &Adapter{
		MRDetails:    make(map[string]vcs.MRDiff),
		ProjectMRs:   make(map[int][]vcs.MRSummary),
		MRNotes:      make(map[string][]vcs.Note),
		Projects:     make(map[string]int),
		NextMRIID:    1,
	}
}

func key(projectID, iid int) string { return fmt.Sprintf("%d/%d", projectID, iid) }

func (a *Adapter) GetMRDetails(projectID, mrIID int) (vcs.MRDiff, error) {
	d, ok := a.MRDetails[key(projectID, mrIID)]
	if !ok {
		return vcs.MRDiff{}, fmt.Errorf("no fake MR details for %d/%d", projectID, mrIID)
	}
	return d, nil
}

func (a *Adapter) CloneRepo(_ context.Context, _, _ string) (*workspace.Workspace, error) {
	if a.CloneErr != nil {
		return nil, a.CloneErr
	}
	if a.ClonedWorkspace != nil {
		return a.ClonedWorkspace, nil
	}
	return &workspace.Workspace{Path: "/tmp/fake-workspace"}, nil
}

func (a *Adapter) PostNote(projectID, mrIID int, body string) error {
	if a.FailNotes {
		return fmt.Errorf("fake: post note failed")
	}
	a.Notes = append(a.Notes, PostedNote{ProjectID: projectID, MRIID: mrIID, Body: body})
	return nil
}

func (a *Adapter) PostInlineDiscussion(projectID, mrIID int, _ vcs.DiffRefs, file string, line int, body string) error {
	if a.FailNotes {
		return fmt.Errorf("fake: post discussion failed")
	}
	a.Discussions = append(a.Discussions, PostedDiscussion{ProjectID: projectID, MRIID: mrIID, File: file, Line: line, Body: body})
	return nil
}

func (a *Adapter) CreateBranch(projectID int, fromBranch, toBranch string) error {
	a.Branches = append(a.Branches, CreatedBranch{ProjectID: projectID, FromBranch: fromBranch, ToBranch: toBranch})
	return nil
}

func (a *Adapter) CreateMergeRequest(projectID int, sourceBranch, targetBranch, title, description string) (int, error) {
	a.MergeRequests = append(a.MergeRequests, CreatedMR{
		ProjectID: projectID, SourceBranch: sourceBranch, TargetBranch: targetBranch,
		Title: title, Description: description,
	})
	iid := a.NextMRIID
	a.NextMRIID++
	return iid, nil
}

func (a *Adapter) ListProjectMRs(projectID int, _ string, updatedAfter *time.Time) ([]vcs.MRSummary, error) {
	all := a.ProjectMRs[projectID]
	if updatedAfter == nil {
		return all, nil
	}
	out := make([]vcs.MRSummary, 0, len(all))
	for _, mr := range all {
		if mr.UpdatedAt.After(*updatedAfter) {
			out = append(out, mr)
		}
	}
	return out, nil
}

func (a *Adapter) ListMRNotes(projectID, mrIID int, createdAfter *time.Time) ([]vcs.Note, error) {
	all := a.MRNotes[key(projectID, mrIID)]
	if createdAfter == nil {
		return all, nil
	}
	out := make([]vcs.Note, 0, len(all))
	for _, n := range all {
		if n.CreatedAt.After(*createdAfter) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (a *Adapter) ResolveProject(ref string) (int, error) {
	id, ok := a.Projects[ref]
	if !ok {
		return 0, fmt.Errorf("fake: unknown project ref %q", ref)
	}
	return id, nil
}
