package review

import (
	"fmt"
	"log"
	"strings"

	"github.com/copilot-bridge/agent/internal/vcs"
	"github.com/copilot-bridge/agent/internal/vcs/diffpos"
)

// PostComments posts a parsed review's comments to an MR: inline
// discussions when the comment's position is anchorable in the current
// diff, unanchored notes otherwise, with a best-effort fallback from
// inline to note on posting failure. A summary note is always posted
// last. Per spec.md §4.3, a single comment's post failure is logged and
// skipped rather than aborting the rest of the review.
func PostComments(adapter vcs.Adapter, projectID, mrIID int, diff vcs.MRDiff, parsed Parsed) error {
	valid := make(map[diffpos.Position]struct{})
	for _, change := range diff.Changes {
		for pos := range diffpos.ValidPositions(change.Diff, change.NewPath) {
			valid[pos] = struct{}{}
		}
	}

	for _, c := range parsed.Comments {
		body := formatBody(c)

		if !diffpos.Contains(valid, c.File, c.Line) {
			postFallbackNote(adapter, projectID, mrIID, c, body)
			continue
		}

		if err := adapter.PostInlineDiscussion(projectID, mrIID, diff.Refs, c.File, c.Line, body); err != nil {
			log.Printf("[Review:poster] inline comment failed for %s:%d: %v", c.File, c.Line, err)
			postFallbackNote(adapter, projectID, mrIID, c, body)
		}
	}

	if err := adapter.PostNote(projectID, mrIID, fmt.Sprintf("## Code Review Summary\n\n%s", parsed.Summary)); err != nil {
		return fmt.Errorf("post review summary: %w", err)
	}
	return nil
}

func postFallbackNote(adapter vcs.Adapter, projectID, mrIID int, c Comment, body string) {
	note := fmt.Sprintf("%s\n\n`%s:%d`", body, c.File, c.Line)
	if err := adapter.PostNote(projectID, mrIID, note); err != nil {
		log.Printf("[Review:poster] fallback note failed for %s:%d: %v", c.File, c.Line, err)
	}
}

func formatBody(c Comment) string {
	body := fmt.Sprintf("**[%s]** %s", strings.ToUpper(c.Severity), c.Comment)
	if c.Suggestion != "" {
		body += fmt.Sprintf("\n\n```suggestion:-%d+%d\n%s\n```", c.SuggestionStartOffset, c.SuggestionEndOffset, c.Suggestion)
	}
	return body
}
