package processor

import (
	"sync"
	"time"

	"metasearch/internal/domain"
)

// SuspensionState is a point-in-time copy of one suspension record.
type SuspensionState struct {
	ContinuousErrors int       `json:"continuous_errors"`
	SuspendUntil     time.Time `json:"suspend_until"`
	Reason           string    `json:"reason,omitempty"`
}

// suspendedStatus is the mutable record behind one suspension key.
type suspendedStatus struct {
	mu               sync.Mutex
	continuousErrors int
	suspendUntil     time.Time
	reason           string
}

// SuspensionPolicy holds the backoff parameters.
type SuspensionPolicy struct {
	BanTimeOnFail    time.Duration
	MaxBanTimeOnFail time.Duration
	// KindDefaults applies to failures that carry no explicit duration.
	KindDefaults map[domain.ErrorKind]time.Duration
}

// SuspensionRegistry owns the suspension state of every engine (or shared
// network), keyed by domain.Engine.SuspensionKey. Suspended engines recover
// lazily once the clock passes their suspend-until time.
type SuspensionRegistry struct {
	policy SuspensionPolicy

	mu       sync.Mutex
	statuses map[string]*suspendedStatus

	now func() time.Time
}

// NewSuspensionRegistry creates a registry using the wall clock.
func NewSuspensionRegistry(policy SuspensionPolicy) *SuspensionRegistry {
	return &SuspensionRegistry{
		policy:   policy,
		statuses: make(map[string]*suspendedStatus),
		now:      time.Now,
	}
}

// WithClock replaces the registry clock.
func (r *SuspensionRegistry) WithClock(now func() time.Time) *SuspensionRegistry {
	r.now = now
	return r
}

func (r *SuspensionRegistry) status(key string) *suspendedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.statuses[key]
	if !ok {
		s = &suspendedStatus{}
		r.statuses[key] = s
	}
	return s
}

// IsSuspended reports whether key is suspended right now, and why.
func (r *SuspensionRegistry) IsSuspended(key string) (bool, string) {
	s := r.status(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspendUntil.IsZero() || !r.now().Before(s.suspendUntil) {
		return false, ""
	}
	return true, s.reason
}

// Suspend records one eligible failure. A zero duration uses the backoff
// min(max ban, continuous errors × ban increment). The suspend-until time
// never moves backwards. It returns the new suspend-until time.
func (r *SuspensionRegistry) Suspend(key string, d time.Duration, reason string) time.Time {
	s := r.status(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.continuousErrors++
	if d <= 0 {
		d = time.Duration(s.continuousErrors) * r.policy.BanTimeOnFail
		if r.policy.MaxBanTimeOnFail > 0 && d > r.policy.MaxBanTimeOnFail {
			d = r.policy.MaxBanTimeOnFail
		}
	}
	until := r.now().Add(d)
	if until.After(s.suspendUntil) {
		s.suspendUntil = until
	}
	s.reason = reason
	return s.suspendUntil
}

// SuspendFor suspends key for a classified failure, applying the kind's
// default duration when the error carries none.
func (r *SuspensionRegistry) SuspendFor(key string, err *domain.EngineError) time.Time {
	d := err.SuspendFor
	if d <= 0 {
		d = r.policy.KindDefaults[err.Kind]
	}
	return r.Suspend(key, d, err.Reason())
}

// Reset clears key after a successful call.
func (r *SuspensionRegistry) Reset(key string) {
	s := r.status(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuousErrors = 0
	s.suspendUntil = time.Time{}
	s.reason = ""
}

// State returns a copy of key's record.
func (r *SuspensionRegistry) State(key string) SuspensionState {
	s := r.status(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return SuspensionState{
		ContinuousErrors: s.continuousErrors,
		SuspendUntil:     s.suspendUntil,
		Reason:           s.reason,
	}
}
