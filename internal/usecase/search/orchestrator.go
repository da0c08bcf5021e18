// Package search fans a query out to the selected engines and collects
// their answers into one results container within a time budget.
package search

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"metasearch/internal/domain"
	"metasearch/internal/infra/tracer"
	"metasearch/internal/usecase/processor"
	"metasearch/internal/usecase/results"
)

// BangResolver turns an external bang into a redirect URL.
type BangResolver interface {
	Resolve(bang, query string) (string, bool)
}

// Answerers produce instant answers for a query.
type Answerers interface {
	Ask(q domain.SearchQuery) []domain.Result
}

// answerEngine is the engine name answerer results are filed under.
const answerEngine = "answerer"

// Orchestrator runs searches over a fixed set of processors.
type Orchestrator struct {
	processors map[string]processor.Processor
	order      []string

	bangs             BangResolver
	answerers         Answerers
	scores            results.ScoreRecorder
	maxRequestTimeout time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator. Later processors with the same
// engine name replace earlier ones.
func NewOrchestrator(procs []processor.Processor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		processors: make(map[string]processor.Processor, len(procs)),
		logger:     logger,
		now:        time.Now,
	}
	for _, p := range procs {
		name := p.Engine().Name
		if _, dup := o.processors[name]; !dup {
			o.order = append(o.order, name)
		}
		o.processors[name] = p
	}
	return o
}

// SetBangs enables external bang redirects.
func (o *Orchestrator) SetBangs(b BangResolver) { o.bangs = b }

// SetAnswerers enables the answerer short-circuit.
func (o *Orchestrator) SetAnswerers(a Answerers) { o.answerers = a }

// SetScoreRecorder reports final result scores per engine.
func (o *Orchestrator) SetScoreRecorder(r results.ScoreRecorder) { o.scores = r }

// SetMaxRequestTimeout sets the global budget ceiling; 0 disables it.
func (o *Orchestrator) SetMaxRequestTimeout(d time.Duration) { o.maxRequestTimeout = d }

// Processor returns the processor of the named engine.
func (o *Orchestrator) Processor(name string) (processor.Processor, bool) {
	p, ok := o.processors[name]
	return p, ok
}

// Processors returns all processors in registration order.
func (o *Orchestrator) Processors() []processor.Processor {
	out := make([]processor.Processor, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.processors[name])
	}
	return out
}

func (o *Orchestrator) lookup(name string) *domain.Engine {
	if p, ok := o.processors[name]; ok {
		return p.Engine()
	}
	return nil
}

// NewContainer creates an empty container wired to the orchestrator's engines.
func (o *Orchestrator) NewContainer() *results.Container {
	opts := []results.ContainerOption{results.WithLogger(o.logger)}
	if o.scores != nil {
		opts = append(opts, results.WithScoreRecorder(o.scores))
	}
	return results.NewContainer(o.lookup, opts...)
}

// Search runs q and returns the filled container. It never fails: engines
// that cannot answer are listed as unresponsive.
func (o *Orchestrator) Search(ctx context.Context, q domain.SearchQuery) *results.Container {
	c := o.NewContainer()
	o.searchInto(ctx, q, c)
	return c
}

func (o *Orchestrator) searchInto(ctx context.Context, q domain.SearchQuery, c *results.Container) {
	start := o.now()
	searchID := domain.SearchIDFromContext(ctx)
	if searchID == "" {
		searchID = newSearchID(start)
		ctx = domain.ContextWithSearchID(ctx, searchID)
	}
	logger := o.logger.With("search_id", searchID)

	if q.ExternalBang != "" && o.bangs != nil {
		if u, ok := o.bangs.Resolve(q.ExternalBang, q.Query); ok {
			c.SetRedirectURL(u)
			logger.Debug("external bang redirect", "bang", q.ExternalBang)
			return
		}
	}

	if o.answerers != nil {
		if answers := o.answerers.Ask(q); len(answers) > 0 {
			c.Extend(answerEngine, answers)
			return
		}
	}

	requests, defaultTimeout := o.requests(q, logger)
	if len(requests) == 0 {
		return
	}
	budget := resolveBudget(defaultTimeout, q.TimeoutLimit, o.maxRequestTimeout)

	ctx, span := tracer.StartSpan(ctx, "search",
		tracer.StringAttr("search.id", searchID),
		tracer.IntAttr("search.engines", len(requests)),
		tracer.DurationAttr("search.budget_ms", budget),
	)
	defer span.End()

	logger.Debug("search started", "engines", len(requests), "budget", budget,
		"default_timeout", defaultTimeout, "timeout_limit", q.TimeoutLimit, "max_request_timeout", o.maxRequestTimeout)

	o.fanOut(ctx, logger, requests, q.Query, start, budget, c)
	tracer.SetOK(span)
}

type request struct {
	proc   processor.Processor
	params *domain.RequestParams
}

// requests resolves the processors able to serve q and the largest of their
// timeouts.
func (o *Orchestrator) requests(q domain.SearchQuery, logger *slog.Logger) ([]request, time.Duration) {
	var (
		out            []request
		defaultTimeout time.Duration
	)
	for _, ref := range q.EngineRefs {
		p, ok := o.processors[ref.Name]
		if !ok {
			logger.Debug("unknown engine skipped", "engine", ref.Name)
			continue
		}
		params := p.GetParams(q, ref.Category)
		if params == nil {
			continue
		}
		out = append(out, request{proc: p, params: params})
		defaultTimeout = max(defaultTimeout, p.Engine().Timeout)
	}
	return out, defaultTimeout
}

// resolveBudget combines the engines' timeout with the user limit and the
// global ceiling. When both limits are set the engines' timeout is ignored.
func resolveBudget(defaultTimeout, timeoutLimit, maxRequestTimeout time.Duration) time.Duration {
	switch {
	case timeoutLimit <= 0 && maxRequestTimeout <= 0:
		return defaultTimeout
	case timeoutLimit > 0 && maxRequestTimeout > 0:
		return min(timeoutLimit, maxRequestTimeout)
	case timeoutLimit > 0:
		return min(defaultTimeout, timeoutLimit)
	default:
		return min(defaultTimeout, maxRequestTimeout)
	}
}

type task struct {
	engine *domain.Engine
	handle *processor.Handle
}

// fanOut starts one goroutine per request and joins them against the
// budget. Tasks still running when their window closes are flagged as timed
// out and left to finish on their own.
func (o *Orchestrator) fanOut(ctx context.Context, logger *slog.Logger, requests []request, query string, start time.Time, budget time.Duration, c *results.Container) {
	taskCtx := context.WithoutCancel(ctx)
	tasks := make([]task, 0, len(requests))
	for _, r := range requests {
		engine := r.proc.Engine()
		h := processor.NewHandle(engine.Name)
		tasks = append(tasks, task{engine: engine, handle: h})

		call := processor.Call{Query: query, Params: r.params, Start: start, Budget: budget, Handle: h}
		go func(p processor.Processor) {
			defer h.Finish()
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("engine task panicked", "engine", engine.Name, "panic", rec)
				}
			}()
			p.Search(taskCtx, call, c)
		}(r.proc)
	}

	for _, t := range tasks {
		select {
		case <-t.handle.Done():
			continue
		default:
		}

		remaining := max(0, budget-o.now().Sub(start))
		timer := time.NewTimer(remaining)
		select {
		case <-t.handle.Done():
			timer.Stop()
		case <-timer.C:
			if t.handle.MarkTimedOut() {
				if t.engine.DisplayErrorMessages {
					c.AddUnresponsiveEngine(t.engine.Name, domain.KindTimeout.UnresponsiveReason(), false)
				}
				logger.Warn("engine timeout", "engine", t.engine.Name, "budget", budget)
				continue
			}
			// Committed just in time: its container writes are in flight.
			<-t.handle.Done()
		}
	}
}

func newSearchID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
