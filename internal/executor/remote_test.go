package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/copilot-bridge/agent/internal/statestore"
	"github.com/copilot-bridge/agent/internal/task"
)

type fakeBackend struct {
	mu        sync.Mutex
	statuses  map[string]JobState
	logs      map[string]string
	deleted   map[string]bool
	submitErr error
	statusErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		statuses: make(map[string]JobState),
		logs:     make(map[string]string),
		deleted:  make(map[string]bool),
	}
}

func (f *fakeBackend) Submit(_ context.Context, spec JobSpec) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[spec.Name] = JobRunning
	return spec.Name, nil
}

func (f *fakeBackend) Status(_ context.Context, jobID string) (JobState, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[jobID], nil
}

func (f *fakeBackend) Delete(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[jobID] = true
	return nil
}

func (f *fakeBackend) Logs(_ context.Context, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[jobID], nil
}

func (f *fakeBackend) setStatus(jobID string, s JobState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = s
}

func TestJobNameDeterministicAndBounded(t *testing.T) {
	a := JobName(task.KindReview, "review:proj:1:abcdef")
	b := JobName(task.KindReview, "review:proj:1:abcdef")
	if a != b {
		t.Fatalf("JobName not deterministic: %q != %q", a, b)
	}
	if len(a) > 63 {
		t.Fatalf("job name exceeds 63 chars: %q", a)
	}
	c := JobName(task.KindCoding, "same-task-id")
	d := JobName(task.KindReview, "same-task-id")
	if c == d {
		t.Fatalf("expected different kinds to produce different names")
	}
}

func TestRemoteExecuteSucceeds(t *testing.T) {
	store := statestore.NewMemory(0)
	backend := newFakeBackend()
	exec := NewRemote(backend, store, 5*time.Millisecond, time.Second)

	spec := task.Spec{Kind: task.KindReview, TaskID: "t1"}
	jobName := JobName(spec.Kind, spec.TaskID)

	go func() {
		time.Sleep(20 * time.Millisecond)
		result, _ := task.Serialize(task.NewReviewResult("looks good"))
		_ = store.SetResult(context.Background(), spec.TaskID, result, time.Minute)
		backend.setStatus(jobName, JobSucceeded)
	}()

	result, err := exec.Execute(context.Background(), spec)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Summary != "looks good" {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
}

func TestRemoteExecuteReturnsExecutionFailure(t *testing.T) {
	store := statestore.NewMemory(0)
	backend := newFakeBackend()
	exec := NewRemote(backend, store, 5*time.Millisecond, time.Second)

	spec := task.Spec{Kind: task.KindCoding, TaskID: "t2"}
	jobName := JobName(spec.Kind, spec.TaskID)
	backend.logs[jobName] = "boom"

	go func() {
		time.Sleep(10 * time.Millisecond)
		backend.setStatus(jobName, JobFailed)
	}()

	_, err := exec.Execute(context.Background(), spec)
	var failure *ExecutionFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ExecutionFailure, got %v", err)
	}
	if failure.Logs != "boom" {
		t.Fatalf("expected logs to be carried through, got %q", failure.Logs)
	}
	if !backend.deleted[jobName] {
		t.Fatalf("expected failed job to be deleted")
	}
}

func TestRemoteExecuteTimesOut(t *testing.T) {
	store := statestore.NewMemory(0)
	backend := newFakeBackend()
	exec := NewRemote(backend, store, 5*time.Millisecond, 20*time.Millisecond)

	spec := task.Spec{Kind: task.KindCoding, TaskID: "t3"}
	jobName := JobName(spec.Kind, spec.TaskID)
	backend.statuses[jobName] = JobRunning

	_, err := exec.Execute(context.Background(), spec)
	var timeout *ExecutionTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ExecutionTimeout, got %v", err)
	}
	if !backend.deleted[jobName] {
		t.Fatalf("expected timed-out job to be deleted")
	}
}

func TestRemoteExecuteSkipsSubmitWhenAlreadyCached(t *testing.T) {
	store := statestore.NewMemory(0)
	backend := newFakeBackend()
	backend.submitErr = errors.New("should not be called")
	exec := NewRemote(backend, store, 5*time.Millisecond, time.Second)

	spec := task.Spec{Kind: task.KindReview, TaskID: "t4"}
	cached, _ := task.Serialize(task.NewReviewResult("cached summary"))
	_ = store.SetResult(context.Background(), spec.TaskID, cached, time.Minute)

	result, err := exec.Execute(context.Background(), spec)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Summary != "cached summary" {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
}
