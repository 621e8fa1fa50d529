// Package task defines the TaskSpec/TaskResult types shared by every
// orchestrator and executor, and the result-parsing helper described in
// spec.md §4.4.3.
package task

import "encoding/json"

// Kind identifies what an agent session was asked to do.
type Kind string

const (
	KindReview Kind = "review"
	KindCoding Kind = "coding"
)

// Spec is an immutable request to run the agent, grounded on the
// original's TaskParams.
type Spec struct {
	Kind Kind `json:"kind"`

	// TaskID stably identifies the logical unit of work: for reviews
	// "review:{project}:{mr}:{head_commit}", for issue-driven coding the
	// issue key, for MR-comment coding "mr-{project}-{mr}-{comment_id}".
	TaskID string `json:"task_id"`

	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch"`

	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`

	// RepoPath is the orchestrator's local checkout. The orchestrators set
	// it whichever executor is configured; only the in-process executor
	// uses it (the agent runs directly against it), and the remote
	// executors do not pass it to the worker.
	RepoPath string `json:"repo_path,omitempty"`

	// Metadata carries free-form routing hints an orchestrator wants
	// echoed back to it by a remote worker (e.g. the triggering note ID,
	// the issue key) — recovered from the original's per-execution
	// payload pattern, not present in the TaskParams model itself but
	// threaded through the webhook/job env contract.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is the tagged union produced by an executor.
type Result struct {
	ResultType string `json:"result_type"`
	Summary    string `json:"summary"`

	// Patch and BaseCommit are populated only for CodingResult produced
	// by a remote executor; empty for ReviewResult and for an in-process
	// coding result (the checkout already holds the mutations).
	Patch      string `json:"patch,omitempty"`
	BaseCommit string `json:"base_commit,omitempty"`
}

// NewReviewResult builds a ReviewResult-shaped Result.
func NewReviewResult(summary string) Result {
	return Result{ResultType: string(KindReview), Summary: summary}
}

// NewCodingResult builds a CodingResult-shaped Result.
func NewCodingResult(summary, patch, baseCommit string) Result {
	return Result{ResultType: string(KindCoding), Summary: summary, Patch: patch, BaseCommit: baseCommit}
}

// ParseResult implements spec.md §4.4.3: if raw is JSON carrying a
// result_type discriminator, decode it directly; otherwise wrap raw as a
// plain-summary result typed by the originating Spec's Kind.
func ParseResult(raw string, kind Kind) Result {
	var decoded Result
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil && decoded.ResultType != "" {
		return decoded
	}

	if kind == KindReview {
		return NewReviewResult(raw)
	}
	return NewCodingResult(raw, "", "")
}

// Serialize renders a Result for storage in the State Store result cache.
func Serialize(r Result) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
