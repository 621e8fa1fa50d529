// Package webhook implements the HTTP ingress from spec.md §4.6: GitLab
// webhook authentication, payload decoding, and async dispatch into the
// MR Review and MR-comment Coding orchestrators, grounded on the
// teacher's internal/webhook/handler.go shape (read payload -> verify ->
// parse event -> filter -> dispatch in background -> respond
// immediately) adapted from GitHub issue-comment events to GitLab
// merge_request/note hooks.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/copilot-bridge/agent/internal/metrics"
	"github.com/copilot-bridge/agent/internal/orchestrator"
)

// ReviewHandler runs the MR Review pipeline for one event.
type ReviewHandler interface {
	Handle(ctx context.Context, ev orchestrator.ReviewEvent) error
}

// CommentHandler runs the MR-comment Coding pipeline for one event.
type CommentHandler interface {
	Handle(ctx context.Context, ev orchestrator.MRCommentEvent) error
}

var handledMRActions = map[string]bool{"open": true, "update": true}

// Handler handles GitLab webhook requests.
type Handler struct {
	webhookSecret string
	agentUsername string
	review        ReviewHandler
	comment       CommentHandler
}

// NewHandler constructs a webhook Handler. agentUsername, when non-empty,
// guards against the agent reacting to its own MR comments.
func NewHandler(webhookSecret, agentUsername string, review ReviewHandler, comment CommentHandler) *Handler {
	return &Handler{
		webhookSecret: webhookSecret,
		agentUsername: agentUsername,
		review:        review,
		comment:       comment,
	}
}

type webhookResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, event string, resp webhookResponse) {
	metrics.WebhookRequestsTotal.WithLabelValues(event, resp.Status).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Handle is the POST /webhook entrypoint.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if !VerifyToken(r.Header.Get("X-Gitlab-Token"), h.webhookSecret) {
		metrics.WebhookRequestsTotal.WithLabelValues("unknown", "unauthorized").Inc()
		http.Error(w, "invalid webhook token", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("unknown", "error").Inc()
		http.Error(w, "error reading payload", http.StatusBadRequest)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("unknown", "error").Inc()
		http.Error(w, "error parsing event", http.StatusBadRequest)
		return
	}

	switch env.ObjectKind {
	case "merge_request":
		h.handleMergeRequest(w, body)
	case "note":
		h.handleNote(w, body)
	default:
		writeJSON(w, http.StatusOK, env.ObjectKind, webhookResponse{Status: "ignored", Reason: "unhandled event: " + env.ObjectKind})
	}
}

func (h *Handler) handleMergeRequest(w http.ResponseWriter, body []byte) {
	var payload MergeRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("merge_request", "error").Inc()
		http.Error(w, "error parsing merge_request payload", http.StatusBadRequest)
		return
	}

	action := payload.ObjectAttributes.Action
	if !handledMRActions[action] {
		writeJSON(w, http.StatusOK, "merge_request", webhookResponse{Status: "ignored", Reason: "action '" + action + "' not handled"})
		return
	}

	ev := orchestrator.ReviewEvent{
		ProjectID:    payload.Project.ID,
		MRIID:        payload.ObjectAttributes.IID,
		SourceBranch: payload.ObjectAttributes.SourceBranch,
		TargetBranch: payload.ObjectAttributes.TargetBranch,
		HeadCommit:   payload.ObjectAttributes.LastCommit.ID,
		Title:        payload.ObjectAttributes.Title,
		Description:  payload.ObjectAttributes.Description,
		CloneURL:     payload.Project.GitHTTPURL,
	}

	go func() {
		if err := h.review.Handle(context.Background(), ev); err != nil {
			log.Printf("[Webhook] background review failed project=%d mr=%d: %v", ev.ProjectID, ev.MRIID, err)
		}
	}()

	writeJSON(w, http.StatusOK, "merge_request", webhookResponse{Status: "queued"})
}

func (h *Handler) handleNote(w http.ResponseWriter, body []byte) {
	var payload NotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("note", "error").Inc()
		http.Error(w, "error parsing note payload", http.StatusBadRequest)
		return
	}

	if payload.ObjectAttributes.NoteableType != "MergeRequest" {
		writeJSON(w, http.StatusOK, "note", webhookResponse{Status: "ignored", Reason: "not an MR note"})
		return
	}

	instruction, ok := orchestrator.ParseCopilotCommand(payload.ObjectAttributes.Note)
	if !ok {
		writeJSON(w, http.StatusOK, "note", webhookResponse{Status: "ignored", Reason: "not a /copilot command"})
		return
	}

	if h.agentUsername != "" && payload.User.Username == h.agentUsername {
		writeJSON(w, http.StatusOK, "note", webhookResponse{Status: "ignored", Reason: "self-comment"})
		return
	}

	ev := orchestrator.MRCommentEvent{
		ProjectID:    payload.Project.ID,
		MRIID:        payload.MergeRequest.IID,
		CommentID:    payload.ObjectAttributes.ID,
		Title:        payload.MergeRequest.Title,
		SourceBranch: payload.MergeRequest.SourceBranch,
		TargetBranch: payload.MergeRequest.TargetBranch,
		CloneURL:     payload.Project.GitHTTPURL,
		Instruction:  instruction,
	}

	go func() {
		if err := h.comment.Handle(context.Background(), ev); err != nil {
			log.Printf("[Webhook] background copilot comment failed project=%d mr=%d: %v", ev.ProjectID, ev.MRIID, err)
		}
	}()

	writeJSON(w, http.StatusOK, "note", webhookResponse{Status: "queued"})
}
