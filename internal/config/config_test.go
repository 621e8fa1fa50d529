package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"GITLAB_URL", "GITLAB_TOKEN", "GITLAB_WEBHOOK_SECRET", "GITLAB_PROJECTS", "GITLAB_POLL",
		"JIRA_URL", "JIRA_EMAIL", "JIRA_API_TOKEN", "JIRA_PROJECT_MAP",
		"STATE_BACKEND", "REDIS_URL", "TASK_EXECUTOR", "K8S_JOB_IMAGE",
		"CONTAINER_APPS_URL", "CONTAINER_APPS_JOB_NAME",
		"LLM_AUTH_TOKEN", "LLM_PROVIDER_TYPE", "LLM_PROVIDER_BASE_URL", "LLM_PROVIDER_API_KEY",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func baseValidEnv(t *testing.T) {
	t.Helper()
	os.Setenv("GITLAB_URL", "https://gitlab.example.com")
	os.Setenv("GITLAB_TOKEN", "tok")
	os.Setenv("GITLAB_WEBHOOK_SECRET", "secret")
	os.Setenv("LLM_AUTH_TOKEN", "llm-token")
}

func TestLoadMissingGitLabURL(t *testing.T) {
	clearEnv(t)
	os.Setenv("GITLAB_TOKEN", "tok")
	os.Setenv("GITLAB_WEBHOOK_SECRET", "secret")
	os.Setenv("LLM_AUTH_TOKEN", "llm-token")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing GITLAB_URL")
	}
}

func TestLoadWebhookSecretRequiredWithoutPoll(t *testing.T) {
	clearEnv(t)
	os.Setenv("GITLAB_URL", "https://gitlab.example.com")
	os.Setenv("GITLAB_TOKEN", "tok")
	os.Setenv("LLM_AUTH_TOKEN", "llm-token")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when webhook secret is missing and polling is disabled")
	}
}

func TestLoadPollRequiresProjects(t *testing.T) {
	clearEnv(t)
	baseValidEnv(t)
	os.Setenv("GITLAB_POLL", "true")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when GITLAB_POLL=true with empty GITLAB_PROJECTS")
	}
}

func TestLoadRedisBackendRequiresURL(t *testing.T) {
	clearEnv(t)
	baseValidEnv(t)
	os.Setenv("STATE_BACKEND", "redis")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when STATE_BACKEND=redis without REDIS_URL")
	}
}

func TestLoadExactlyOneLLMAuthForm(t *testing.T) {
	clearEnv(t)
	os.Setenv("GITLAB_URL", "https://gitlab.example.com")
	os.Setenv("GITLAB_TOKEN", "tok")
	os.Setenv("GITLAB_WEBHOOK_SECRET", "secret")
	os.Setenv("LLM_AUTH_TOKEN", "llm-token")
	os.Setenv("LLM_PROVIDER_TYPE", "openai")
	os.Setenv("LLM_PROVIDER_BASE_URL", "https://api.openai.com")
	os.Setenv("LLM_PROVIDER_API_KEY", "key")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when both LLM auth forms are set")
	}
}

func TestLoadPartialBYOKRejected(t *testing.T) {
	clearEnv(t)
	os.Setenv("GITLAB_URL", "https://gitlab.example.com")
	os.Setenv("GITLAB_TOKEN", "tok")
	os.Setenv("GITLAB_WEBHOOK_SECRET", "secret")
	os.Setenv("LLM_PROVIDER_TYPE", "openai")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for partially specified BYOK provider config")
	}
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	baseValidEnv(t)
	os.Setenv("JIRA_URL", "https://issues.example.com")
	os.Setenv("JIRA_EMAIL", "bot@example.com")
	os.Setenv("JIRA_API_TOKEN", "jira-tok")
	os.Setenv("JIRA_PROJECT_MAP", `{"PROJ":{"vcs_project_id":1,"clone_url":"https://gitlab.example.com/a/b.git","target_branch":"main"}}`)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitLabURL != "https://gitlab.example.com" {
		t.Fatalf("unexpected GitLabURL: %s", cfg.GitLabURL)
	}
	mapping, ok := cfg.JiraProjectMap["PROJ"]
	if !ok {
		t.Fatal("expected PROJ mapping to be parsed")
	}
	if mapping.VCSProjectID != 1 || mapping.TargetBranch != "main" {
		t.Fatalf("unexpected mapping: %+v", mapping)
	}
}
