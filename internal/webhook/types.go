package webhook

// GitLab webhook event payloads, grounded on original_source/models.py —
// only the fields this service actually reads.

type WebhookUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type WebhookProject struct {
	ID                 int    `json:"id"`
	PathWithNamespace  string `json:"path_with_namespace"`
	GitHTTPURL         string `json:"git_http_url"`
}

type MRLastCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type MRObjectAttributes struct {
	IID          int          `json:"iid"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Action       string       `json:"action"`
	SourceBranch string       `json:"source_branch"`
	TargetBranch string       `json:"target_branch"`
	LastCommit   MRLastCommit `json:"last_commit"`
	URL          string       `json:"url"`
}

// MergeRequestPayload is GitLab's "Merge Request Hook" body.
type MergeRequestPayload struct {
	ObjectKind       string             `json:"object_kind"`
	User             WebhookUser        `json:"user"`
	Project          WebhookProject     `json:"project"`
	ObjectAttributes MRObjectAttributes `json:"object_attributes"`
}

type NoteObjectAttributes struct {
	ID           int    `json:"id"`
	Note         string `json:"note"`
	NoteableType string `json:"noteable_type"`
}

type NoteMergeRequest struct {
	IID          int    `json:"iid"`
	Title        string `json:"title"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
}

// NotePayload is GitLab's "Comment Hook" body for notes on an MR.
type NotePayload struct {
	ObjectKind       string               `json:"object_kind"`
	User             WebhookUser          `json:"user"`
	Project          WebhookProject       `json:"project"`
	ObjectAttributes NoteObjectAttributes `json:"object_attributes"`
	MergeRequest     NoteMergeRequest     `json:"merge_request"`
}

// envelope peeks at object_kind before committing to a concrete payload
// shape, since a merge_request hook and a note hook share nothing but
// that discriminator field.
type envelope struct {
	ObjectKind string `json:"object_kind"`
}
