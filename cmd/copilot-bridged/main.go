// Command copilot-bridged runs the copilot-bridge service: GitLab webhook
// ingress, the optional MR/issue pollers, and the three orchestrators
// wired to whichever task executor and state backend the environment
// selects. Grounded on the original's main.py FastAPI lifespan (settings
// load -> executor/lock/client construction -> poller startup -> serve ->
// graceful poller/client teardown) and the teacher's
// cmd/mcp-comment-server/main.go signal-driven shutdown idiom.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/copilot-bridge/agent/internal/agent"
	"github.com/copilot-bridge/agent/internal/config"
	"github.com/copilot-bridge/agent/internal/executor"
	"github.com/copilot-bridge/agent/internal/executor/containerjob"
	"github.com/copilot-bridge/agent/internal/executor/k8sjob"
	"github.com/copilot-bridge/agent/internal/gitexec"
	"github.com/copilot-bridge/agent/internal/issuetracker"
	"github.com/copilot-bridge/agent/internal/lock"
	"github.com/copilot-bridge/agent/internal/orchestrator"
	"github.com/copilot-bridge/agent/internal/poller"
	"github.com/copilot-bridge/agent/internal/prompt"
	"github.com/copilot-bridge/agent/internal/statestore"
	"github.com/copilot-bridge/agent/internal/vcs"
	"github.com/copilot-bridge/agent/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[copilot-bridged] config error: %v", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("[copilot-bridged] state store error: %v", err)
	}

	locks := lock.New(store)

	vcsAdapter, err := vcs.NewGitLabAdapter(cfg.GitLabURL, cfg.GitLabToken, cfg.CloneMaxRetries, cfg.CloneInitialDelay)
	if err != nil {
		log.Fatalf("[copilot-bridged] gitlab client error: %v", err)
	}

	exec, err := buildExecutor(cfg, store)
	if err != nil {
		log.Fatalf("[copilot-bridged] executor error: %v", err)
	}

	git := gitexec.New()

	reviewPrompt := prompt.Resolve(prompt.KindReview, promptOverrides(cfg))
	codingPrompt := prompt.Resolve(prompt.KindCoding, promptOverrides(cfg))
	mrCommentPrompt := prompt.Resolve(prompt.KindMRComment, promptOverrides(cfg))

	reviewOrch := orchestrator.NewReviewOrchestrator(vcsAdapter, store, locks, exec, cfg.GitLabToken, cfg.GitLabReviewOnPush, reviewPrompt)
	mrCommentOrch := orchestrator.NewMRCommentOrchestrator(vcsAdapter, locks, exec, git, cfg.GitLabToken, mrCommentPrompt)

	var codingOrch *orchestrator.CodingOrchestrator
	var issueClient issuetracker.Adapter
	if cfg.JiraURL != "" {
		issueClient = issuetracker.NewJiraClient(cfg.JiraURL, cfg.JiraEmail, cfg.JiraAPIToken)
		codingOrch = orchestrator.NewCodingOrchestrator(
			vcsAdapter, issueClient, store, locks, exec, git,
			cfg.GitLabToken, cfg.JiraInProgressStatus, cfg.JiraInReviewStatus, codingPrompt,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.GitLabPoll {
		mrPoller := buildMRPoller(cfg, vcsAdapter, reviewOrch)
		go mrPoller.Run(ctx)
		log.Printf("[copilot-bridged] mr poller started interval=%s projects=%v", cfg.GitLabPollInterval, cfg.GitLabProjects)
	}

	if codingOrch != nil {
		issuePoller := poller.NewIssuePoller(issueClient, codingOrch, cfg.JiraTriggerStatus, toOrchestratorProjectMap(cfg.JiraProjectMap), cfg.JiraPollInterval)
		go issuePoller.Run(ctx)
		log.Printf("[copilot-bridged] issue poller started interval=%s trigger_status=%q", cfg.JiraPollInterval, cfg.JiraTriggerStatus)
	}

	handler := webhook.NewHandler(cfg.GitLabWebhookSecret, cfg.AgentUsername, reviewOrch, mrCommentOrch)

	router := mux.NewRouter()
	router.HandleFunc("/webhook", handler.Handle).Methods(http.MethodPost)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}

	go func() {
		log.Printf("[copilot-bridged] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[copilot-bridged] server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("[copilot-bridged] received shutdown signal")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[copilot-bridged] graceful shutdown error: %v", err)
	}
	log.Println("[copilot-bridged] service stopped")
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func buildStore(cfg *config.Config) (statestore.Store, error) {
	switch cfg.StateBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return statestore.NewRedis(redis.NewClient(opts)), nil
	default:
		return statestore.NewMemory(cfg.MemoryMaxSize), nil
	}
}

func buildExecutor(cfg *config.Config, store statestore.Store) (executor.Executor, error) {
	switch cfg.TaskExecutor {
	case "k8s":
		backend, err := k8sjob.NewBackend(k8sjob.Config{
			Namespace: cfg.K8sNamespace,
			Image:     cfg.K8sJobImage,
			ExtraEnv:  workerExtraEnv(cfg),
		})
		if err != nil {
			return nil, err
		}
		return executor.NewRemote(backend, store, cfg.RemotePollInterval, cfg.K8sJobTimeout), nil
	case "container_apps":
		backend := containerjob.NewBackend(cfg.ContainerAppsURL, cfg.ContainerAppsJob, cfg.GitLabToken, store)
		return executor.NewRemote(backend, store, cfg.RemotePollInterval, cfg.RemoteJobTimeout), nil
	default:
		runner := agent.NewSubprocessRunner(cfg.AgentBinary, cfg.RemoteJobTimeout)
		return executor.NewInProcess(runner, store), nil
	}
}

// workerExtraEnv collects the LLM auth material and state-store settings
// remote workers need that aren't derivable from a task.Spec. The k8s
// backend writes each of them as a literal env value on every Job it
// creates; they are not taken from secret references on a job template.
func workerExtraEnv(cfg *config.Config) map[string]string {
	env := map[string]string{}
	if cfg.LLMAuthToken != "" {
		env["LLM_AUTH_TOKEN"] = cfg.LLMAuthToken
	}
	if cfg.LLMProviderType != "" {
		env["LLM_PROVIDER_TYPE"] = cfg.LLMProviderType
		env["LLM_PROVIDER_BASE_URL"] = cfg.LLMProviderBaseURL
		env["LLM_PROVIDER_API_KEY"] = cfg.LLMProviderAPIKey
	}
	if cfg.StateBackend == "redis" {
		env["REDIS_URL"] = cfg.RedisURL
		env["STATE_BACKEND"] = "redis"
	}
	return env
}

func buildMRPoller(cfg *config.Config, adapter vcs.Adapter, review poller.ReviewHandler) *poller.MRPoller {
	projectIDs := make([]int, 0, len(cfg.GitLabProjects))
	for _, ref := range cfg.GitLabProjects {
		id, err := adapter.ResolveProject(ref)
		if err != nil {
			log.Printf("[copilot-bridged] could not resolve project %q: %v", ref, err)
			continue
		}
		projectIDs = append(projectIDs, id)
	}
	return poller.NewMRPoller(adapter, review, projectIDs, cfg.GitLabPollInterval)
}

func toOrchestratorProjectMap(in map[string]config.ProjectMapping) map[string]orchestrator.ProjectMapping {
	out := make(map[string]orchestrator.ProjectMapping, len(in))
	for key, m := range in {
		out[key] = orchestrator.ProjectMapping{
			GitLabProjectID: m.VCSProjectID,
			CloneURL:        m.CloneURL,
			TargetBranch:    m.TargetBranch,
		}
	}
	return out
}

func promptOverrides(cfg *config.Config) prompt.Overrides {
	return prompt.Overrides{
		Global:            cfg.SystemPrompt,
		GlobalSuffix:      cfg.SystemPromptSuffix,
		CodingOverride:    cfg.CodingSystemPrompt,
		CodingSuffix:      cfg.CodingSystemPromptSuffix,
		ReviewOverride:    cfg.ReviewSystemPrompt,
		ReviewSuffix:      cfg.ReviewSystemPromptSuffix,
		MRCommentOverride: cfg.MRCommentSystemPrompt,
		MRCommentSuffix:   cfg.MRCommentSystemPromptSuffix,
	}
}
