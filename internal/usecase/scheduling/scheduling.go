// Package scheduling runs recurring background actions on a cron expression
// or a fixed interval.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduledAction identifies a type of scheduled action.
type ScheduledAction string

const (
	ActionEngineCheck ScheduledAction = "engine_check"
)

// DefaultTaskTimeout bounds a single run of a task.
const DefaultTaskTimeout = 5 * time.Minute

// ScheduledTask defines a recurring task.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30m"
	Action   ScheduledAction
	// RunOnStart also runs the task once when the scheduler starts.
	RunOnStart bool
	// Timeout overrides DefaultTaskTimeout.
	Timeout time.Duration
}

// RunInfo describes the last completed run of a task.
type RunInfo struct {
	Started  time.Time
	Duration time.Duration
	Err      error
}

type task struct {
	ScheduledTask
	fn      func(ctx context.Context) error
	entry   cron.EntryID
	running atomic.Bool

	mu   sync.Mutex
	last *RunInfo
}

// Scheduler runs registered actions as named tasks. A task never overlaps
// itself: a tick that fires while the previous run is in progress is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	actions map[ScheduledAction]func(ctx context.Context) error
	tasks   map[string]*task

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. A nil logger uses slog.Default.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger.With("component", "scheduler"),
		actions: make(map[ScheduledAction]func(ctx context.Context) error),
		tasks:   make(map[string]*task),
	}
}

// RegisterAction sets the handler run by tasks of the given action.
func (s *Scheduler) RegisterAction(action ScheduledAction, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask schedules t. Its action must be registered and its name unused.
func (s *Scheduler) AddTask(t ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[t.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", t.Action, t.Name)
	}
	if _, dup := s.tasks[t.Name]; dup {
		return fmt.Errorf("scheduler: task %q already exists", t.Name)
	}
	schedule, err := ParseSchedule(t.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: task %q: %w", t.Name, err)
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTaskTimeout
	}

	tk := &task{ScheduledTask: t, fn: fn}
	tk.entry = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(tk) }))
	s.tasks[t.Name] = tk

	s.logger.Info("task scheduled", "task", t.Name, "schedule", t.Schedule, "action", string(t.Action))
	return nil
}

func (s *Scheduler) run(tk *task) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if !tk.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in progress, tick skipped", "task", tk.Name)
		return
	}
	defer tk.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, tk.Timeout)
	defer cancel()

	start := time.Now()
	err := tk.fn(ctx)
	info := &RunInfo{Started: start, Duration: time.Since(start), Err: err}

	tk.mu.Lock()
	tk.last = info
	tk.mu.Unlock()

	if err != nil {
		s.logger.Warn("task failed", "task", tk.Name, "error", err, "duration", info.Duration)
		return
	}
	s.logger.Info("task done", "task", tk.Name, "duration", info.Duration)
}

// NextRun returns the next run time of a task, or nil if the task is unknown
// or the scheduler is not running.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	tk, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry := s.cron.Entry(tk.entry)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

// LastRun reports the last completed run of a task.
func (s *Scheduler) LastRun(name string) (RunInfo, bool) {
	s.mu.Lock()
	tk, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return RunInfo{}, false
	}
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if tk.last == nil {
		return RunInfo{}, false
	}
	return *tk.last, true
}

// Start begins running tasks until ctx ends or Stop is called. Tasks marked
// RunOnStart run immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()

	for _, tk := range s.tasks {
		if !tk.RunOnStart {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(tk)
		}()
	}
	return nil
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	return nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts a five-field cron expression, a descriptor such as
// "@daily", or a positive Go duration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if sched, err := cronParser.Parse(schedule); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay(d), nil
}

// constantDelay is a fixed interval. Unlike cron.Every it keeps sub-second
// precision.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}
