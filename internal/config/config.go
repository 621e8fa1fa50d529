// Package config loads and validates the service's environment-driven configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProjectMapping maps a Jira project key to the GitLab project it targets.
type ProjectMapping struct {
	VCSProjectID int    `json:"vcs_project_id"`
	CloneURL     string `json:"clone_url"`
	TargetBranch string `json:"target_branch"`
}

// Config holds all configuration for the copilot-bridge service.
type Config struct {
	Port int

	// GitLab
	GitLabURL           string
	GitLabToken         string
	GitLabWebhookSecret string
	GitLabProjects      []string
	GitLabPoll          bool
	GitLabPollInterval  time.Duration
	GitLabReviewOnPush  bool
	AgentUsername       string

	// Jira
	JiraURL              string
	JiraEmail            string
	JiraAPIToken         string
	JiraTriggerStatus    string
	JiraInProgressStatus string
	JiraInReviewStatus   string
	JiraPollInterval     time.Duration
	JiraProjectMap       map[string]ProjectMapping

	// Task executor
	TaskExecutor     string // local, k8s, container_apps
	K8sNamespace     string
	K8sJobImage      string
	K8sJobTimeout    time.Duration
	ContainerAppsURL string
	ContainerAppsJob string
	RemoteJobTimeout time.Duration
	RemotePollInterval time.Duration

	// State backend
	StateBackend string // memory, redis
	RedisURL     string
	MemoryMaxSize int

	// LLM auth (exactly one of these forms must be present)
	LLMAuthToken       string
	LLMProviderType    string
	LLMProviderBaseURL string
	LLMProviderAPIKey  string
	AgentBinary        string

	// Git clone retry
	CloneMaxRetries   int
	CloneInitialDelay time.Duration

	// Prompt overrides (see internal/prompt)
	SystemPrompt            string
	SystemPromptSuffix      string
	CodingSystemPrompt      string
	CodingSystemPromptSuffix string
	ReviewSystemPrompt      string
	ReviewSystemPromptSuffix string
	MRCommentSystemPrompt      string
	MRCommentSystemPromptSuffix string
}

// Load reads configuration from the environment, applying defaults and validating
// the result. A .env file in the working directory is loaded first, if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnvInt("PORT", 8000),
		GitLabURL:           os.Getenv("GITLAB_URL"),
		GitLabToken:         os.Getenv("GITLAB_TOKEN"),
		GitLabWebhookSecret: os.Getenv("GITLAB_WEBHOOK_SECRET"),
		GitLabProjects:      splitCSV(os.Getenv("GITLAB_PROJECTS")),
		GitLabPoll:          getEnvBool("GITLAB_POLL"),
		GitLabPollInterval:  time.Duration(getEnvInt("GITLAB_POLL_INTERVAL", 30)) * time.Second,
		GitLabReviewOnPush:  getEnvBool("GITLAB_REVIEW_ON_PUSH"),
		AgentUsername:       getEnv("GITLAB_AGENT_USERNAME", "copilot-agent"),

		JiraURL:              os.Getenv("JIRA_URL"),
		JiraEmail:            os.Getenv("JIRA_EMAIL"),
		JiraAPIToken:         os.Getenv("JIRA_API_TOKEN"),
		JiraTriggerStatus:    getEnv("JIRA_TRIGGER_STATUS", "AI Ready"),
		JiraInProgressStatus: getEnv("JIRA_IN_PROGRESS_STATUS", "In Progress"),
		JiraInReviewStatus:   getEnv("JIRA_IN_REVIEW_STATUS", "In Review"),
		JiraPollInterval:     time.Duration(getEnvInt("JIRA_POLL_INTERVAL", 30)) * time.Second,

		TaskExecutor:       getEnv("TASK_EXECUTOR", "local"),
		K8sNamespace:       getEnv("K8S_NAMESPACE", "default"),
		K8sJobImage:        os.Getenv("K8S_JOB_IMAGE"),
		K8sJobTimeout:      time.Duration(getEnvInt("K8S_JOB_TIMEOUT", 600)) * time.Second,
		ContainerAppsURL:   os.Getenv("CONTAINER_APPS_URL"),
		ContainerAppsJob:   os.Getenv("CONTAINER_APPS_JOB_NAME"),
		RemoteJobTimeout:   time.Duration(getEnvInt("REMOTE_JOB_TIMEOUT", 600)) * time.Second,
		RemotePollInterval: time.Duration(getEnvInt("REMOTE_POLL_INTERVAL", 5)) * time.Second,

		StateBackend:  getEnv("STATE_BACKEND", "memory"),
		RedisURL:      os.Getenv("REDIS_URL"),
		MemoryMaxSize: getEnvInt("STATE_MEMORY_MAX_SIZE", 10000),

		LLMAuthToken:       os.Getenv("LLM_AUTH_TOKEN"),
		LLMProviderType:    os.Getenv("LLM_PROVIDER_TYPE"),
		LLMProviderBaseURL: os.Getenv("LLM_PROVIDER_BASE_URL"),
		LLMProviderAPIKey:  os.Getenv("LLM_PROVIDER_API_KEY"),
		AgentBinary:        getEnv("AGENT_BINARY", "copilot-agent"),

		CloneMaxRetries:   getEnvInt("GIT_CLONE_MAX_RETRIES", 3),
		CloneInitialDelay: time.Duration(getEnvInt("GIT_CLONE_BACKOFF_BASE_SECONDS", 5)) * time.Second,

		SystemPrompt:                os.Getenv("SYSTEM_PROMPT"),
		SystemPromptSuffix:          os.Getenv("SYSTEM_PROMPT_SUFFIX"),
		CodingSystemPrompt:          os.Getenv("CODING_SYSTEM_PROMPT"),
		CodingSystemPromptSuffix:    os.Getenv("CODING_SYSTEM_PROMPT_SUFFIX"),
		ReviewSystemPrompt:          os.Getenv("REVIEW_SYSTEM_PROMPT"),
		ReviewSystemPromptSuffix:    os.Getenv("REVIEW_SYSTEM_PROMPT_SUFFIX"),
		MRCommentSystemPrompt:       os.Getenv("MR_COMMENT_SYSTEM_PROMPT"),
		MRCommentSystemPromptSuffix: os.Getenv("MR_COMMENT_SYSTEM_PROMPT_SUFFIX"),
	}

	projectMap, err := parseProjectMap(os.Getenv("JIRA_PROJECT_MAP"))
	if err != nil {
		return nil, fmt.Errorf("parse JIRA_PROJECT_MAP: %w", err)
	}
	cfg.JiraProjectMap = projectMap

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseProjectMap(raw string) (map[string]ProjectMapping, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]ProjectMapping{}, nil
	}
	var m map[string]ProjectMapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Config) validate() error {
	if err := c.validateGitLabCredentials(); err != nil {
		return err
	}
	if err := c.validateJiraConfig(); err != nil {
		return err
	}
	if err := c.validateStateBackend(); err != nil {
		return err
	}
	if err := c.validateExecutorConfig(); err != nil {
		return err
	}
	return c.validateLLMAuth()
}

func (c *Config) validateGitLabCredentials() error {
	if c.GitLabURL == "" {
		return fmt.Errorf("GITLAB_URL is required")
	}
	if c.GitLabToken == "" {
		return fmt.Errorf("GITLAB_TOKEN is required")
	}
	if c.GitLabWebhookSecret == "" && !c.GitLabPoll {
		return fmt.Errorf("GITLAB_WEBHOOK_SECRET is required unless GITLAB_POLL is enabled")
	}
	if c.GitLabPoll && len(c.GitLabProjects) == 0 {
		return fmt.Errorf("GITLAB_PROJECTS is required when GITLAB_POLL=true")
	}
	return nil
}

func (c *Config) validateJiraConfig() error {
	jiraConfigured := c.JiraURL != "" || c.JiraEmail != "" || c.JiraAPIToken != ""
	if !jiraConfigured {
		return nil
	}
	if c.JiraURL == "" || c.JiraEmail == "" || c.JiraAPIToken == "" {
		return fmt.Errorf("JIRA_URL, JIRA_EMAIL, and JIRA_API_TOKEN must all be set together")
	}
	if len(c.JiraProjectMap) == 0 {
		return fmt.Errorf("JIRA_PROJECT_MAP is required when Jira is configured")
	}
	return nil
}

func (c *Config) validateStateBackend() error {
	switch c.StateBackend {
	case "memory":
		return nil
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STATE_BACKEND=redis")
		}
		return nil
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
}

func (c *Config) validateExecutorConfig() error {
	switch c.TaskExecutor {
	case "local":
		return nil
	case "k8s":
		if c.K8sJobImage == "" {
			return fmt.Errorf("K8S_JOB_IMAGE is required when TASK_EXECUTOR=k8s")
		}
		return nil
	case "container_apps":
		if c.ContainerAppsURL == "" || c.ContainerAppsJob == "" {
			return fmt.Errorf("CONTAINER_APPS_URL and CONTAINER_APPS_JOB_NAME are required when TASK_EXECUTOR=container_apps")
		}
		return nil
	default:
		return fmt.Errorf("unknown TASK_EXECUTOR %q", c.TaskExecutor)
	}
}

func (c *Config) validateLLMAuth() error {
	hasToken := c.LLMAuthToken != ""
	hasBYOK := c.LLMProviderType != "" && c.LLMProviderBaseURL != "" && c.LLMProviderAPIKey != ""
	partialBYOK := (c.LLMProviderType != "" || c.LLMProviderBaseURL != "" || c.LLMProviderAPIKey != "") && !hasBYOK

	if hasToken && hasBYOK {
		return fmt.Errorf("exactly one of LLM_AUTH_TOKEN or the provider-type/base-url/api-key triple must be set, not both")
	}
	if partialBYOK {
		return fmt.Errorf("LLM_PROVIDER_TYPE, LLM_PROVIDER_BASE_URL, and LLM_PROVIDER_API_KEY must all be set together")
	}
	if !hasToken && !hasBYOK {
		return fmt.Errorf("either LLM_AUTH_TOKEN or the provider-type/base-url/api-key triple is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
