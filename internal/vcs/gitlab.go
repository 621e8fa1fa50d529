package vcs

import (
	"context"
	"fmt"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/copilot-bridge/agent/internal/workspace"
)

// GitLabAdapter implements Adapter on top of the GitLab project's own Go
// client, grounded on the original's gitlab_client.py (GitLabClient).
type GitLabAdapter struct {
	client          *gitlab.Client
	token           string
	cloneMaxRetries int
	cloneInitDelay  time.Duration
}

// NewGitLabAdapter constructs an adapter against a self-managed or
// gitlab.com instance.
func NewGitLabAdapter(baseURL, token string, cloneMaxRetries int, cloneInitDelay time.Duration) (*GitLabAdapter, error) {
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("construct gitlab client: %w", err)
	}
	return &GitLabAdapter{
		client:          client,
		token:           token,
		cloneMaxRetries: cloneMaxRetries,
		cloneInitDelay:  cloneInitDelay,
	}, nil
}

func (a *GitLabAdapter) GetMRDetails(projectID, mrIID int) (MRDiff, error) {
	mr, _, err := a.client.MergeRequests.GetMergeRequestChanges(projectID, mrIID, nil)
	if err != nil {
		return MRDiff{}, fmt.Errorf("get mr %d/%d changes: %w", projectID, mrIID, err)
	}

	diff := MRDiff{
		Title:       mr.Title,
		Description: mr.Description,
	}
	if mr.DiffRefs != nil {
		diff.Refs = DiffRefs{
			BaseSHA:  mr.DiffRefs.BaseSha,
			StartSHA: mr.DiffRefs.StartSha,
			HeadSHA:  mr.DiffRefs.HeadSha,
		}
	}
	for _, c := range mr.Changes {
		diff.Changes = append(diff.Changes, Change{
			OldPath:     c.OldPath,
			NewPath:     c.NewPath,
			Diff:        c.Diff,
			NewFile:     c.NewFile,
			DeletedFile: c.DeletedFile,
			RenamedFile: c.RenamedFile,
		})
	}
	return diff, nil
}

// CloneRepo shallow-clones clone_url at branch, retrying transient
// failures per spec.md §4.2. Returns a *workspace.Workspace the caller
// must Release.
func (a *GitLabAdapter) CloneRepo(ctx context.Context, cloneURL, branch string) (*workspace.Workspace, error) {
	var ws *workspace.Workspace
	err := retryClone(ctx, a.cloneMaxRetries, a.cloneInitDelay, func() error {
		w, err := workspace.Clone(ctx, cloneURL, branch, a.token)
		if err != nil {
			return err
		}
		ws = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (a *GitLabAdapter) PostNote(projectID, mrIID int, body string) error {
	_, _, err := a.client.Notes.CreateMergeRequestNote(projectID, mrIID, &gitlab.CreateMergeRequestNoteOptions{
		Body: gitlab.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("post note on mr %d/%d: %w", projectID, mrIID, err)
	}
	return nil
}

func (a *GitLabAdapter) PostInlineDiscussion(projectID, mrIID int, refs DiffRefs, file string, line int, body string) error {
	_, _, err := a.client.Discussions.CreateMergeRequestDiscussion(projectID, mrIID, &gitlab.CreateMergeRequestDiscussionOptions{
		Body: gitlab.Ptr(body),
		Position: &gitlab.PositionOptions{
			BaseSHA:      gitlab.Ptr(refs.BaseSHA),
			StartSHA:     gitlab.Ptr(refs.StartSHA),
			HeadSHA:      gitlab.Ptr(refs.HeadSHA),
			PositionType: gitlab.Ptr("text"),
			OldPath:      gitlab.Ptr(file),
			NewPath:      gitlab.Ptr(file),
			NewLine:      gitlab.Ptr(line),
		},
	})
	if err != nil {
		return fmt.Errorf("post inline discussion on mr %d/%d %s:%d: %w", projectID, mrIID, file, line, err)
	}
	return nil
}

func (a *GitLabAdapter) CreateBranch(projectID int, fromBranch, toBranch string) error {
	_, _, err := a.client.Branches.CreateBranch(projectID, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(toBranch),
		Ref:    gitlab.Ptr(fromBranch),
	})
	if err != nil {
		return fmt.Errorf("create branch %s from %s in project %d: %w", toBranch, fromBranch, projectID, err)
	}
	return nil
}

func (a *GitLabAdapter) CreateMergeRequest(projectID int, sourceBranch, targetBranch, title, description string) (int, error) {
	mr, _, err := a.client.MergeRequests.CreateMergeRequest(projectID, &gitlab.CreateMergeRequestOptions{
		SourceBranch: gitlab.Ptr(sourceBranch),
		TargetBranch: gitlab.Ptr(targetBranch),
		Title:        gitlab.Ptr(title),
		Description:  gitlab.Ptr(description),
	})
	if err != nil {
		return 0, fmt.Errorf("create mr %s -> %s in project %d: %w", sourceBranch, targetBranch, projectID, err)
	}
	return mr.IID, nil
}

func (a *GitLabAdapter) ListProjectMRs(projectID int, state string, updatedAfter *time.Time) ([]MRSummary, error) {
	opts := &gitlab.ListProjectMergeRequestsOptions{
		State: gitlab.Ptr(state),
	}
	if updatedAfter != nil {
		opts.UpdatedAfter = updatedAfter
	}

	mrs, _, err := a.client.MergeRequests.ListProjectMergeRequests(projectID, opts)
	if err != nil {
		return nil, fmt.Errorf("list mrs for project %d: %w", projectID, err)
	}

	out := make([]MRSummary, 0, len(mrs))
	for _, mr := range mrs {
		var updated time.Time
		if mr.UpdatedAt != nil {
			updated = *mr.UpdatedAt
		}
		out = append(out, MRSummary{
			IID:          mr.IID,
			ProjectID:    projectID,
			Title:        mr.Title,
			Description:  mr.Description,
			SourceBranch: mr.SourceBranch,
			TargetBranch: mr.TargetBranch,
			HeadCommit:   mr.SHA,
			UpdatedAt:    updated,
		})
	}
	return out, nil
}

func (a *GitLabAdapter) ListMRNotes(projectID, mrIID int, createdAfter *time.Time) ([]Note, error) {
	notes, _, err := a.client.Notes.ListMergeRequestNotes(projectID, mrIID, &gitlab.ListMergeRequestNotesOptions{})
	if err != nil {
		return nil, fmt.Errorf("list notes for mr %d/%d: %w", projectID, mrIID, err)
	}

	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if createdAfter != nil && n.CreatedAt != nil && !n.CreatedAt.After(*createdAfter) {
			continue
		}
		var created time.Time
		if n.CreatedAt != nil {
			created = *n.CreatedAt
		}
		var authorID int
		var username string
		authorID = n.Author.ID
		username = n.Author.Username
		out = append(out, Note{
			ID:        n.ID,
			Body:      n.Body,
			AuthorID:  authorID,
			Username:  username,
			CreatedAt: created,
		})
	}
	return out, nil
}

func (a *GitLabAdapter) ResolveProject(ref string) (int, error) {
	project, _, err := a.client.Projects.GetProject(ref, nil)
	if err != nil {
		return 0, fmt.Errorf("resolve project %q: %w", ref, err)
	}
	return project.ID, nil
}
