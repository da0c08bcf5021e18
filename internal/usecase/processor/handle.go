package processor

import "sync/atomic"

const (
	handleRunning int32 = iota
	handleCommitted
	handleTimedOut
)

// Handle is the orchestrator's view of one engine task. Exactly one of
// Commit (by the task) and MarkTimedOut (by the orchestrator) wins, so a
// task either writes to the container before the deadline or not at all.
type Handle struct {
	Engine string

	state atomic.Int32
	done  chan struct{}
}

// NewHandle creates a running task handle.
func NewHandle(engine string) *Handle {
	return &Handle{Engine: engine, done: make(chan struct{})}
}

// Commit claims the right to write results. It fails once the task has been
// marked as timed out.
func (h *Handle) Commit() bool {
	return h.state.CompareAndSwap(handleRunning, handleCommitted)
}

// MarkTimedOut flags a task still running past its window. It fails when the
// task already committed.
func (h *Handle) MarkTimedOut() bool {
	return h.state.CompareAndSwap(handleRunning, handleTimedOut)
}

// TimedOut reports whether the task was marked as timed out.
func (h *Handle) TimedOut() bool {
	return h.state.Load() == handleTimedOut
}

// Finish signals that the task returned.
func (h *Handle) Finish() { close(h.done) }

// Done is closed when the task returns.
func (h *Handle) Done() <-chan struct{} { return h.done }
