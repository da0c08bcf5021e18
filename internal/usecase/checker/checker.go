// Package checker runs self tests against the configured engines and keeps
// the latest report in memory.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"metasearch/internal/domain"
	"metasearch/internal/usecase/processor"
	"metasearch/internal/usecase/results"
)

// Expectations a test can place on its results container.
const (
	ExpectNotEmpty   = "not_empty"
	ExpectHasAnswer  = "has_answer"
	ExpectHasInfobox = "has_infobox"
)

// Report statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Searcher runs a single-engine search. The orchestrator implements it.
type Searcher interface {
	Search(ctx context.Context, q domain.SearchQuery) *results.Container
}

// TestResult is the outcome of one engine test.
type TestResult struct {
	Name   string   `json:"name"`
	Query  string   `json:"query"`
	PageNo int      `json:"pageno"`
	Errors []string `json:"errors,omitempty"`
}

// EngineStatus sums up the tests of one engine.
type EngineStatus struct {
	Engine  string       `json:"engine"`
	Success bool         `json:"success"`
	Tests   []TestResult `json:"tests"`
}

// Report is the result of one checker run.
type Report struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Engines   []EngineStatus `json:"engines"`
}

// Options configures a Checker.
type Options struct {
	// Engines restricts the run to the named engines; empty means all
	// enabled engines.
	Engines []string
	// Concurrency bounds how many engines are checked at once.
	Concurrency int
}

// Checker tests engines through a Searcher.
type Checker struct {
	searcher Searcher
	procs    []processor.Processor
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last *Report
}

// New creates a checker over procs.
func New(s Searcher, procs []processor.Processor, opts Options, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Checker{
		searcher: s,
		procs:    procs,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Checker) selected() []processor.Processor {
	var out []processor.Processor
	for _, p := range c.procs {
		e := p.Engine()
		if len(c.opts.Engines) > 0 {
			if slices.Contains(c.opts.Engines, e.Name) {
				out = append(out, p)
			}
			continue
		}
		if !e.Disabled {
			out = append(out, p)
		}
	}
	return out
}

// Run checks every selected engine and stores the report.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	start := c.now()
	procs := c.selected()
	if len(c.opts.Engines) > 0 && len(procs) == 0 {
		return Report{}, domain.NewSubSystemError("checker", "checker.Run", domain.ErrEngineNotFound,
			fmt.Sprintf("%v", c.opts.Engines))
	}

	statuses := make([]EngineStatus, len(procs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, p := range procs {
		g.Go(func() error {
			statuses[i] = c.CheckEngine(gctx, p)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("checker: %w", err)
	}

	report := Report{
		Status:    StatusOK,
		Timestamp: start,
		Duration:  c.now().Sub(start),
		Engines:   statuses,
	}
	failed := 0
	for _, s := range statuses {
		if !s.Success {
			failed++
			report.Status = StatusFailed
		}
	}

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()

	c.logger.Info("engine check finished", "engines", len(statuses), "failed", failed, "duration", report.Duration)
	return report, nil
}

// Last returns the latest report.
func (c *Checker) Last() (Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

// CheckEngine runs the engine's configured tests. Without any, it runs the
// default tests of p's kind followed by the engine's additional tests.
func (c *Checker) CheckEngine(ctx context.Context, p processor.Processor) EngineStatus {
	e := p.Engine()
	tests := e.Tests
	if len(tests) == 0 {
		tests = append(p.DefaultTests(), e.AdditionalTests...)
	}
	status := EngineStatus{Engine: e.Name, Success: true}
	for _, t := range tests {
		tr := c.runTest(ctx, e, t)
		if len(tr.Errors) > 0 {
			status.Success = false
			c.logger.Warn("engine test failed", "engine", e.Name, "test", tr.Name, "errors", tr.Errors)
		}
		status.Tests = append(status.Tests, tr)
	}
	return status
}

func (c *Checker) runTest(ctx context.Context, e *domain.Engine, t domain.EngineTest) TestResult {
	pageno := max(t.PageNo, 1)
	tr := TestResult{Name: t.Name, Query: t.Query, PageNo: pageno}

	container, err := c.search(ctx, e, t, pageno)
	if err != nil {
		tr.Errors = append(tr.Errors, err.Error())
		return tr
	}
	tr.Errors = append(tr.Errors, check(container, t.Expect)...)

	// A page beyond the first must differ from the first.
	if pageno > 1 && len(tr.Errors) == 0 {
		first, err := c.search(ctx, e, t, 1)
		if err != nil {
			tr.Errors = append(tr.Errors, err.Error())
			return tr
		}
		if errs := check(first, []string{ExpectNotEmpty}); len(errs) > 0 {
			tr.Errors = append(tr.Errors, "page 1: "+errs[0])
		} else if slices.Equal(urls(first), urls(container)) {
			tr.Errors = append(tr.Errors, fmt.Sprintf("page 1 and page %d are identical", pageno))
		}
	}
	return tr
}

func (c *Checker) search(ctx context.Context, e *domain.Engine, t domain.EngineTest, pageno int) (*results.Container, error) {
	category := "general"
	if len(e.Categories) > 0 {
		category = e.Categories[0]
	}
	q, err := domain.NewSearchQuery(domain.SearchQuery{
		Query:      t.Query,
		EngineRefs: []domain.EngineRef{{Name: e.Name, Category: category}},
		Lang:       t.Lang,
		PageNo:     pageno,
	})
	if err != nil {
		return nil, err
	}
	return c.searcher.Search(ctx, q), nil
}

// check evaluates the expectations against a container. An unresponsive
// engine fails every test.
func check(c *results.Container, expect []string) []string {
	var errs []string
	for _, u := range c.UnresponsiveEngines() {
		errs = append(errs, "unresponsive: "+u.Reason)
	}
	if len(errs) > 0 {
		return errs
	}
	for _, exp := range expect {
		switch exp {
		case ExpectNotEmpty:
			if c.ResultsLength() == 0 && len(c.Answers()) == 0 && len(c.Infoboxes()) == 0 {
				errs = append(errs, "no result")
			}
		case ExpectHasAnswer:
			if len(c.Answers()) == 0 {
				errs = append(errs, "no answer")
			}
		case ExpectHasInfobox:
			if len(c.Infoboxes()) == 0 {
				errs = append(errs, "no infobox")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown expectation %q", exp))
		}
	}
	return errs
}

func urls(c *results.Container) []string {
	var out []string
	for _, r := range c.OrderedResults() {
		out = append(out, r.URL)
	}
	return out
}
