package domain

import (
	"context"
	"sync/atomic"
	"time"
)

type ctxKey string

const (
	searchCtxKey   ctxKey = "search_id"
	deadlineCtxKey ctxKey = "deadline"
)

// ContextWithSearchID returns a new context carrying the search ID (ULID).
func ContextWithSearchID(ctx context.Context, searchID string) context.Context {
	return context.WithValue(ctx, searchCtxKey, searchID)
}

// SearchIDFromContext extracts the search ID from the context.
// Returns empty string if not set.
func SearchIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(searchCtxKey).(string); ok {
		return v
	}
	return ""
}

// Deadline is the time budget of one engine task, shared by every HTTP call
// the task makes. It also accumulates the time spent in HTTP.
type Deadline struct {
	Start     time.Time
	Budget    time.Duration
	httpNanos atomic.Int64
}

// ContextWithDeadline attaches a budget that started at start.
func ContextWithDeadline(ctx context.Context, start time.Time, budget time.Duration) context.Context {
	return context.WithValue(ctx, deadlineCtxKey, &Deadline{Start: start, Budget: budget})
}

// DeadlineFromContext returns the task deadline, if any.
func DeadlineFromContext(ctx context.Context) (*Deadline, bool) {
	d, ok := ctx.Value(deadlineCtxKey).(*Deadline)
	return d, ok
}

// AddHTTPTime records time spent in one HTTP call.
func (d *Deadline) AddHTTPTime(elapsed time.Duration) {
	d.httpNanos.Add(int64(elapsed))
}

// HTTPTime returns the accumulated HTTP time.
func (d *Deadline) HTTPTime() time.Duration {
	return time.Duration(d.httpNanos.Load())
}

// HTTPTimeFromContext returns the HTTP time accumulated under ctx's deadline.
func HTTPTimeFromContext(ctx context.Context) time.Duration {
	if d, ok := DeadlineFromContext(ctx); ok {
		return d.HTTPTime()
	}
	return 0
}
