package k8sjob

import (
	"context"
	"testing"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/copilot-bridge/agent/internal/executor"
	"github.com/copilot-bridge/agent/internal/task"
)

func newTestBackend() (*Backend, *k8sfake.Clientset) {
	clientset := k8sfake.NewSimpleClientset()
	return &Backend{clientset: clientset, namespace: "default", image: "copilot-agent:latest"}, clientset
}

func TestSubmitCreatesJob(t *testing.T) {
	backend, clientset := newTestBackend()
	spec := executor.JobSpec{Name: executor.JobName(task.KindReview, "t1"), TaskType: "review", TaskID: "t1"}

	jobID, err := backend.Submit(context.Background(), spec)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if jobID != spec.Name {
		t.Fatalf("expected job id %q, got %q", spec.Name, jobID)
	}

	job, err := clientset.BatchV1().Jobs("default").Get(context.Background(), spec.Name, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected job to exist: %v", err)
	}
	if job.Spec.Template.Spec.Containers[0].Image != "copilot-agent:latest" {
		t.Fatalf("unexpected container image: %s", job.Spec.Template.Spec.Containers[0].Image)
	}
}

func TestSubmitToleratesAlreadyExists(t *testing.T) {
	backend, _ := newTestBackend()
	spec := executor.JobSpec{Name: "existing-job", TaskType: "review", TaskID: "t1"}

	if _, err := backend.Submit(context.Background(), spec); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	jobID, err := backend.Submit(context.Background(), spec)
	if err != nil {
		t.Fatalf("expected second submit with same name to be tolerated, got: %v", err)
	}
	if jobID != spec.Name {
		t.Fatalf("expected existing job name back, got %q", jobID)
	}
}

func TestStatusReflectsJobCondition(t *testing.T) {
	backend, clientset := newTestBackend()
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "j1", Namespace: "default"},
		Status:     batchv1.JobStatus{Succeeded: 1},
	}
	if _, err := clientset.BatchV1().Jobs("default").Create(context.Background(), job, metav1.CreateOptions{}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	status, err := backend.Status(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status != executor.JobSucceeded {
		t.Fatalf("expected succeeded, got %v", status)
	}
}

func TestStatusTreatsNotFoundAsFailed(t *testing.T) {
	backend, _ := newTestBackend()
	status, err := backend.Status(context.Background(), "missing-job")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status != executor.JobFailed {
		t.Fatalf("expected failed for a missing job, got %v", status)
	}
}

func TestLogsReturnsPlaceholderWhenNoPods(t *testing.T) {
	backend, _ := newTestBackend()
	logs, err := backend.Logs(context.Background(), "no-pods-job")
	if err != nil {
		t.Fatalf("Logs returned error: %v", err)
	}
	if logs != "<no pods found>" {
		t.Fatalf("unexpected logs: %q", logs)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	backend, clientset := newTestBackend()
	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "j2", Namespace: "default"}}
	if _, err := clientset.BatchV1().Jobs("default").Create(context.Background(), job, metav1.CreateOptions{}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	if err := backend.Delete(context.Background(), "j2"); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := backend.Delete(context.Background(), "j2"); err != nil {
		t.Fatalf("expected delete of already-deleted job to be a no-op, got: %v", err)
	}
}

func TestBuildEnvIncludesTaskContract(t *testing.T) {
	spec := executor.JobSpec{TaskType: "coding", TaskID: "t9", RepoURL: "https://example.test/repo.git", Branch: "main"}
	env := buildEnv(spec, map[string]string{"REDIS_URL": "redis://r:6379"})

	seen := map[string]string{}
	for _, e := range env {
		seen[e.Name] = e.Value
	}
	for _, want := range []string{"TASK_TYPE", "TASK_ID", "REPO_URL", "BRANCH", "TASK_PAYLOAD", "HOME", "REDIS_URL"} {
		if _, ok := seen[want]; !ok {
			t.Fatalf("expected env var %s to be set, got %v", want, seen)
		}
	}
	if seen["TASK_TYPE"] != "coding" {
		t.Fatalf("unexpected TASK_TYPE: %q", seen["TASK_TYPE"])
	}
}
