package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/copilot-bridge/agent/internal/metrics"
	"github.com/copilot-bridge/agent/internal/statestore"
	"github.com/copilot-bridge/agent/internal/task"
)

// JobState collapses a remote job's lifecycle to three states per
// spec.md §4.4.2.
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobSpec is the backend-agnostic description of a one-shot worker
// execution: the environment contract named in spec.md §4.4.2.
type JobSpec struct {
	Name         string
	TaskType     string
	TaskID       string
	RepoURL      string
	Branch       string
	SystemPrompt string
	UserPrompt   string
	Metadata     map[string]string
}

// EnvOverrides renders the non-sensitive per-execution environment
// variables passed to the worker. Secrets are never included here — they
// are pre-configured on the job template, per spec.md §4.4.2.
func (j JobSpec) EnvOverrides() map[string]string {
	payload, _ := json.Marshal(map[string]interface{}{
		"prompt":   j.UserPrompt,
		"metadata": j.Metadata,
	})
	return map[string]string{
		"TASK_TYPE":     j.TaskType,
		"TASK_ID":       j.TaskID,
		"REPO_URL":      j.RepoURL,
		"BRANCH":        j.Branch,
		"SYSTEM_PROMPT": j.SystemPrompt,
		"USER_PROMPT":   j.UserPrompt,
		"TASK_PAYLOAD":  string(payload),
	}
}

// RemoteJobBackend is the interface shared by every one-shot-worker
// dispatch mechanism (k8sjob, containerjob). Submit is expected to
// tolerate "already exists" conditions for backends with deterministic
// naming by returning the existing job's identifier rather than erroring.
type RemoteJobBackend interface {
	Submit(ctx context.Context, spec JobSpec) (jobID string, err error)
	Status(ctx context.Context, jobID string) (JobState, error)
	Delete(ctx context.Context, jobID string) error
	// Logs best-effort retrieves worker output for a failed job. Backends
	// that cannot retrieve logs should return an empty string and nil.
	Logs(ctx context.Context, jobID string) (string, error)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9-]`)

// JobName derives the deterministic job name from spec.md §4.4.2:
// "copilot-{kind}-{hex16(sha256(task_id))}", lowercased, non-alphanumerics
// replaced with '-', truncated to 63 characters.
func JobName(kind task.Kind, taskID string) string {
	sum := sha256.Sum256([]byte(taskID))
	hash := hex.EncodeToString(sum[:])[:16]
	sanitizedKind := strings.Trim(nonAlphanumeric.ReplaceAllString(strings.ToLower(string(kind)), "-"), "-")

	name := fmt.Sprintf("copilot-%s-%s", sanitizedKind, hash)
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// Remote dispatches a one-shot worker through a RemoteJobBackend and
// polls its lifecycle to completion, grounded on the original's
// k8s_executor.py/aca_executor.py shared polling/timeout/deletion shape.
type Remote struct {
	backend      RemoteJobBackend
	store        statestore.Store
	pollInterval time.Duration
	timeout      time.Duration
}

// NewRemote constructs a Remote executor over the given backend.
func NewRemote(backend RemoteJobBackend, store statestore.Store, pollInterval, timeout time.Duration) *Remote {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Remote{backend: backend, store: store, pollInterval: pollInterval, timeout: timeout}
}

func (e *Remote) Execute(ctx context.Context, spec task.Spec) (task.Result, error) {
	if cached, ok, err := e.store.GetResult(ctx, spec.TaskID); err == nil && ok {
		return task.ParseResult(cached, spec.Kind), nil
	}

	jobSpec := JobSpec{
		Name:         JobName(spec.Kind, spec.TaskID),
		TaskType:     string(spec.Kind),
		TaskID:       spec.TaskID,
		RepoURL:      spec.RepoURL,
		Branch:       spec.Branch,
		SystemPrompt: spec.SystemPrompt,
		UserPrompt:   spec.UserPrompt,
		Metadata:     spec.Metadata,
	}

	start := time.Now()
	jobID, err := e.backend.Submit(ctx, jobSpec)
	if err != nil {
		metrics.TaskDuration.WithLabelValues(string(spec.Kind)).Observe(time.Since(start).Seconds())
		metrics.TasksTotal.WithLabelValues(string(spec.Kind), "failure").Inc()
		return task.Result{}, fmt.Errorf("submit remote job for task %s: %w", spec.TaskID, err)
	}

	result, err := e.waitForResult(ctx, jobID, spec)
	metrics.TaskDuration.WithLabelValues(string(spec.Kind)).Observe(time.Since(start).Seconds())
	metrics.TasksTotal.WithLabelValues(string(spec.Kind), outcomeLabel(err)).Inc()
	return result, err
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if _, ok := err.(*ExecutionTimeout); ok {
		return "timeout"
	}
	return "failure"
}

func (e *Remote) waitForResult(ctx context.Context, jobID string, spec task.Spec) (task.Result, error) {
	deadline := time.Now().Add(e.timeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		if cached, ok, err := e.store.GetResult(ctx, spec.TaskID); err == nil && ok {
			return task.ParseResult(cached, spec.Kind), nil
		}

		status, err := e.backend.Status(ctx, jobID)
		if err != nil {
			return task.Result{}, fmt.Errorf("poll remote job %s: %w", jobID, err)
		}

		switch status {
		case JobSucceeded:
			if cached, ok, err := e.store.GetResult(ctx, spec.TaskID); err == nil && ok {
				return task.ParseResult(cached, spec.Kind), nil
			}
			return task.ParseResult("", spec.Kind), nil
		case JobFailed:
			logs, _ := e.backend.Logs(ctx, jobID)
			if err := e.backend.Delete(ctx, jobID); err != nil {
				log.Printf("[Executor:remote] cleanup failed for job %s: %v", jobID, err)
			}
			return task.Result{}, &ExecutionFailure{JobName: jobID, Logs: logs}
		}

		if time.Now().After(deadline) {
			if err := e.backend.Delete(ctx, jobID); err != nil {
				log.Printf("[Executor:remote] cleanup failed for job %s: %v", jobID, err)
			}
			return task.Result{}, &ExecutionTimeout{JobName: jobID, Timeout: e.timeout.String()}
		}

		select {
		case <-ctx.Done():
			return task.Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
