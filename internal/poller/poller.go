// Package poller implements the two background pollers from spec.md §4.7:
// an MR poller that discovers new/updated merge requests and feeds them
// through the Review Orchestrator, and an Issue poller that discovers
// trigger-status Jira issues and feeds them through the Coding
// Orchestrator. Both share the same backoff control loop, grounded on
// the original's gitlab_poller.py/jira_poller.py `_poll_loop`.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/copilot-bridge/agent/internal/metrics"
)

const maxBackoff = 5 * time.Minute

// runLoop calls once() on every tick of interval until ctx is canceled.
// Each failure doubles the next delay (capped at maxBackoff); a success
// resets the delay back to interval, grounded on gitlab_poller.py's
// `min(self._interval * 2**self._failures, _MAX_BACKOFF)` shape.
func runLoop(ctx context.Context, name string, interval time.Duration, once func(context.Context) error) {
	failures := 0
	for {
		cycleStart := time.Now()
		err := once(ctx)
		metrics.PollerCycleDuration.WithLabelValues(name).Observe(time.Since(cycleStart).Seconds())
		if err != nil {
			failures++
			log.Printf("[Poller:%s] poll_error (failures=%d): %v", name, failures, err)
		} else {
			failures = 0
		}

		delay := interval
		for i := 0; i < failures; i++ {
			delay *= 2
			if delay >= maxBackoff {
				delay = maxBackoff
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
