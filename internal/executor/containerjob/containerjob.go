// Package containerjob implements a generic managed-container-job REST
// backend, the stand-in for Azure Container Apps Jobs named in spec.md
// §4.4.2 (no Azure SDK exists anywhere in the retrieval pack — see
// DESIGN.md). Unlike k8sjob, a managed job API of this shape always
// creates a brand new execution per start call rather than accepting a
// deterministic name, so duplicate-start suppression is done with an
// execution-lock sentinel in the State Store instead of relying on the
// backend to reject a second create.
package containerjob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/copilot-bridge/agent/internal/executor"
	"github.com/copilot-bridge/agent/internal/statestore"
)

const executionLockTTL = 15 * time.Minute
const executionLockPrefix = "containerjob_exec:"

// Backend talks to a managed container-job control-plane REST API: POST to
// start a new execution, GET to poll its status, DELETE to stop it early.
// The base URL and job name identify the pre-provisioned job template;
// secrets live on that template, never in the per-execution payload (the
// original's S1 note: "secrets are pre-configured on the Job template as
// Key Vault references").
type Backend struct {
	baseURL    string
	jobName    string
	authToken  string
	httpClient *http.Client
	store      statestore.Store
}

// NewBackend constructs a containerjob.Backend. store is used only for the
// execution-lock sentinel described above, never for task results.
func NewBackend(baseURL, jobName, authToken string, store statestore.Store) *Backend {
	return &Backend{
		baseURL:    baseURL,
		jobName:    jobName,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
	}
}

type startExecutionRequest struct {
	Env map[string]string `json:"env"`
}

type startExecutionResponse struct {
	ExecutionName string `json:"executionName"`
}

type executionStatusResponse struct {
	Status string `json:"status"`
	Logs   string `json:"logs"`
}

// Submit starts a new execution of the configured job, unless a prior
// Submit for the same spec.Name is already tracked in the execution lock.
func (b *Backend) Submit(ctx context.Context, spec executor.JobSpec) (string, error) {
	lockKey := executionLockPrefix + spec.Name
	if existing, ok, err := b.store.GetResult(ctx, lockKey); err == nil && ok {
		return existing, nil
	}

	reqBody, err := json.Marshal(startExecutionRequest{Env: spec.EnvOverrides()})
	if err != nil {
		return "", fmt.Errorf("encode start request: %w", err)
	}

	var resp startExecutionResponse
	if err := b.do(ctx, http.MethodPost, fmt.Sprintf("/jobs/%s/start", b.jobName), reqBody, &resp); err != nil {
		return "", fmt.Errorf("start job execution: %w", err)
	}

	if err := b.store.SetResult(ctx, lockKey, resp.ExecutionName, executionLockTTL); err != nil {
		return "", fmt.Errorf("record execution lock: %w", err)
	}
	return resp.ExecutionName, nil
}

func (b *Backend) Status(ctx context.Context, jobID string) (executor.JobState, error) {
	var resp executionStatusResponse
	if err := b.do(ctx, http.MethodGet, fmt.Sprintf("/jobs/%s/executions/%s", b.jobName, jobID), nil, &resp); err != nil {
		return "", fmt.Errorf("read execution status: %w", err)
	}

	switch resp.Status {
	case "Succeeded":
		return executor.JobSucceeded, nil
	case "Failed":
		return executor.JobFailed, nil
	default:
		return executor.JobRunning, nil
	}
}

func (b *Backend) Logs(ctx context.Context, jobID string) (string, error) {
	var resp executionStatusResponse
	if err := b.do(ctx, http.MethodGet, fmt.Sprintf("/jobs/%s/executions/%s", b.jobName, jobID), nil, &resp); err != nil {
		return "", nil
	}
	return resp.Logs, nil
}

func (b *Backend) Delete(ctx context.Context, jobID string) error {
	err := b.do(ctx, http.MethodDelete, fmt.Sprintf("/jobs/%s/executions/%s", b.jobName, jobID), nil, nil)
	if err != nil {
		return fmt.Errorf("stop execution %s: %w", jobID, err)
	}
	return nil
}

func (b *Backend) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
