package network

import (
	"context"
	"time"

	"metasearch/internal/domain"
)

const (
	// fallbackTimeout applies to calls that carry no timeout at all.
	fallbackTimeout = 120 * time.Second
	// timeoutOverhead is added to every effective timeout.
	timeoutOverhead = 200 * time.Millisecond
)

// effectiveTimeout resolves the timeout of one call: the smaller of the
// caller's timeout and the task budget, plus overhead, minus the time
// already spent since the task started.
func effectiveTimeout(ctx context.Context, callerTimeout time.Duration, now time.Time) time.Duration {
	timeout := callerTimeout
	d, ok := domain.DeadlineFromContext(ctx)
	if ok && d.Budget > 0 && (timeout <= 0 || d.Budget < timeout) {
		timeout = d.Budget
	}
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	timeout += timeoutOverhead
	if ok && !d.Start.IsZero() {
		timeout -= now.Sub(d.Start)
	}
	return timeout
}
