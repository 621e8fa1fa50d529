// Command remote-worker is the one-shot executable a k8sjob/containerjob
// Job runs: it reads the TASK_* environment contract spec.md §4.4.2
// defines, clones the target repo, runs a single agent session against
// it, and writes the serialized task.Result into the shared State Store
// before exiting, grounded on the original's task_runner.py entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/copilot-bridge/agent/internal/agent"
	"github.com/copilot-bridge/agent/internal/gitexec"
	"github.com/copilot-bridge/agent/internal/statestore"
	"github.com/copilot-bridge/agent/internal/task"
	"github.com/copilot-bridge/agent/internal/workspace"
)

const resultTTL = time.Hour

func main() {
	ctx := context.Background()

	spec, err := specFromEnv()
	if err != nil {
		log.Fatalf("[remote-worker] invalid task environment: %v", err)
	}

	store, err := storeFromEnv()
	if err != nil {
		log.Fatalf("[remote-worker] state store error: %v", err)
	}

	result, err := run(ctx, spec)
	if err != nil {
		log.Fatalf("[remote-worker] task %s failed: %v", spec.TaskID, err)
	}

	serialized, err := task.Serialize(result)
	if err != nil {
		log.Fatalf("[remote-worker] serialize result for task %s: %v", spec.TaskID, err)
	}
	if err := store.SetResult(ctx, spec.TaskID, serialized, resultTTL); err != nil {
		log.Fatalf("[remote-worker] write result for task %s: %v", spec.TaskID, err)
	}

	log.Printf("[remote-worker] task %s completed", spec.TaskID)
}

func run(ctx context.Context, spec task.Spec) (task.Result, error) {
	token := os.Getenv("GITLAB_TOKEN")
	ws, err := workspace.Clone(ctx, spec.RepoURL, spec.Branch, token)
	if err != nil {
		return task.Result{}, err
	}
	defer ws.ReleaseLogged()

	git := gitexec.New()
	baseCommit, err := git.HeadCommit(ctx, ws.Path)
	if err != nil {
		return task.Result{}, err
	}

	runner := agent.NewSubprocessRunner(getEnv("AGENT_BINARY", "copilot-agent"), 0)
	spec.RepoPath = ws.Path
	raw, err := runner.Run(ctx, spec)
	if err != nil {
		return task.Result{}, err
	}

	result := task.ParseResult(raw, spec.Kind)
	if spec.Kind == task.KindCoding {
		diff, err := git.Diff(ctx, ws.Path, baseCommit)
		if err != nil {
			return task.Result{}, err
		}
		result.Patch = diff
		result.BaseCommit = baseCommit
	}
	return result, nil
}

func specFromEnv() (task.Spec, error) {
	taskID := os.Getenv("TASK_ID")
	if taskID == "" {
		return task.Spec{}, fmt.Errorf("missing required environment variable TASK_ID")
	}
	repoURL := os.Getenv("REPO_URL")
	if repoURL == "" {
		return task.Spec{}, fmt.Errorf("missing required environment variable REPO_URL")
	}

	var metadata map[string]string
	if payload := os.Getenv("TASK_PAYLOAD"); payload != "" {
		var decoded struct {
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			metadata = decoded.Metadata
		}
	}

	return task.Spec{
		Kind:         task.Kind(getEnv("TASK_TYPE", string(task.KindCoding))),
		TaskID:       taskID,
		RepoURL:      repoURL,
		Branch:       os.Getenv("BRANCH"),
		SystemPrompt: os.Getenv("SYSTEM_PROMPT"),
		UserPrompt:   os.Getenv("USER_PROMPT"),
		Metadata:     metadata,
	}, nil
}

func storeFromEnv() (statestore.Store, error) {
	if getEnv("STATE_BACKEND", "memory") != "redis" {
		log.Println("[remote-worker] warning: STATE_BACKEND=memory in a remote worker cannot hand results back to the service process; set STATE_BACKEND=redis")
		return statestore.NewMemory(0), nil
	}
	opts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, err
	}
	return statestore.NewRedis(redis.NewClient(opts)), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
