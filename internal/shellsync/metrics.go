package shellsync

import (
	"time"

	"backend/internal/metrics"
)

// recordReconciliation records that a release/reload for a tenant was
// either published locally (source="publish", from a hook) or applied
// because a peer published it (source="poll", from the poller).
func recordReconciliation(op, source string) {
	metrics.ShellSyncReconciliationsTotal.WithLabelValues(op, source).Inc()
}

// recordPollError records a poller-side cache or settings-store failure,
// bucketed by which step of the loop observed it.
func recordPollError(step string) {
	metrics.ShellSyncPollErrorsTotal.WithLabelValues(step).Inc()
}

// recordIdleSeconds reports the poller's current idle interval, so a
// prolonged cache outage is visible as a rising gauge instead of only a
// log line.
func recordIdleSeconds(d time.Duration) {
	metrics.ShellSyncPollIdleSeconds.Set(d.Seconds())
}
