// Package processor executes one engine's side of one search request. The
// four processor kinds form a closed set behind the Processor interface.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"metasearch/internal/domain"
	"metasearch/internal/infra/tracer"
)

// Container receives an engine's outcome. The results container implements it.
type Container interface {
	// Extend adds results and returns how many were accepted and rejected.
	Extend(engine string, results []domain.Result) (accepted, invalid int)
	AddUnresponsiveEngine(engine, reason string, suspended bool)
	AddTiming(engine string, total, http time.Duration)
}

// Stats is per-engine bookkeeping.
type Stats interface {
	Sent(engine string)
	Success(engine string, results int, total, http time.Duration)
	// Error counts one failure of the given kind ("timeout", "http", ...).
	Error(engine, kind string)
	// SoftError records a problem that did not fail the call.
	SoftError(engine, message string)
}

// NopStats discards everything.
type NopStats struct{}

func (NopStats) Sent(string)                                       {}
func (NopStats) Success(string, int, time.Duration, time.Duration) {}
func (NopStats) Error(string, string)                              {}
func (NopStats) SoftError(string, string)                          {}

// Fetcher performs outgoing HTTP calls under the task deadline carried by ctx.
type Fetcher interface {
	Request(ctx context.Context, req *domain.HTTPRequest) (*domain.Response, error)
}

// Call is one dispatch of a processor by the orchestrator.
type Call struct {
	Query  string
	Params *domain.RequestParams
	Start  time.Time
	Budget time.Duration
	Handle *Handle
}

// Processor runs one engine. GetParams returns nil when the engine cannot
// serve the query. Search never returns an error: every outcome is written
// to the container or to the stats.
type Processor interface {
	Engine() *domain.Engine
	Kind() domain.ProcessorKind
	GetParams(q domain.SearchQuery, category string) *domain.RequestParams
	Search(ctx context.Context, call Call, c Container)
	DefaultTests() []domain.EngineTest

	sealed()
}

// Deps are the collaborators shared by every processor.
type Deps struct {
	Suspensions *SuspensionRegistry
	Stats       Stats
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type base struct {
	engine      *domain.Engine
	suspensions *SuspensionRegistry
	stats       Stats
	logger      *slog.Logger
	now         func() time.Time
}

func newBase(engine *domain.Engine, deps Deps) base {
	b := base{
		engine:      engine,
		suspensions: deps.Suspensions,
		stats:       deps.Stats,
		logger:      deps.Logger,
		now:         deps.Now,
	}
	if b.suspensions == nil {
		b.suspensions = NewSuspensionRegistry(SuspensionPolicy{})
	}
	if b.stats == nil {
		b.stats = NopStats{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *base) Engine() *domain.Engine { return b.engine }

func (b *base) sealed() {}

// GetParams fills the parameters common to all kinds.
func (b *base) GetParams(q domain.SearchQuery, category string) *domain.RequestParams {
	if q.PageNo > 1 && !b.engine.Paging {
		return nil
	}
	if q.TimeRange != domain.TimeRangeNone && !b.engine.TimeRangeSupport {
		return nil
	}
	lang := q.Lang
	if b.engine.Language != "" {
		lang = b.engine.Language
	}
	return &domain.RequestParams{
		Category:   category,
		PageNo:     q.PageNo,
		SafeSearch: q.SafeSearch,
		TimeRange:  q.TimeRange,
		Language:   lang,
		EngineData: q.EngineDataFor(b.engine.Name),
	}
}

func (b *base) DefaultTests() []domain.EngineTest {
	tests := []domain.EngineTest{{Name: "simple", Query: "time", PageNo: 1, Expect: []string{"not_empty"}}}
	if b.engine.Paging {
		tests = append(tests, domain.EngineTest{Name: "paging", Query: "time", PageNo: 2, Expect: []string{"not_empty"}})
	}
	return tests
}

// execFunc performs the engine-specific part of a call.
type execFunc func(ctx context.Context, call Call) ([]domain.Result, error)

// run wraps exec with suspension checks, deadline propagation, failure
// classification and the late-arrival rule.
func (b *base) run(ctx context.Context, call Call, c Container, exec execFunc) {
	name := b.engine.Name
	key := b.engine.SuspensionKey()
	logger := b.logger.With("engine", name, "search_id", domain.SearchIDFromContext(ctx))

	b.stats.Sent(name)

	if suspended, reason := b.suspensions.IsSuspended(key); suspended {
		if (call.Handle == nil || call.Handle.Commit()) && b.engine.DisplayErrorMessages {
			c.AddUnresponsiveEngine(name, "suspended: "+reason, true)
		}
		logger.Debug("engine suspended, skipped", "reason", reason)
		return
	}

	ctx = domain.ContextWithDeadline(ctx, call.Start, call.Budget)
	ctx, span := tracer.StartSpan(ctx, "engine.search",
		tracer.StringAttr("engine.name", name),
		tracer.StringAttr("engine.kind", string(b.engine.Kind)),
		tracer.DurationAttr("engine.budget_ms", call.Budget),
	)
	defer func() {
		span.SetAttributes(tracer.BoolAttr("engine.timed_out", call.Handle != nil && call.Handle.TimedOut()))
		span.End()
	}()

	results, err := safeExec(ctx, call, exec)
	total := b.now().Sub(call.Start)
	httpTime := domain.HTTPTimeFromContext(ctx)

	if err != nil {
		tracer.RecordError(span, err)
		b.fail(logger, call, c, ClassifyEngineError(err))
		return
	}

	if call.Handle != nil && !call.Handle.Commit() {
		logger.Debug("late engine response discarded", "results", len(results), "elapsed", total)
		b.stats.Error(name, domain.KindTimeout.String())
		return
	}

	_, invalid := c.Extend(name, results)
	c.AddTiming(name, total, httpTime)
	b.suspensions.Reset(key)
	b.stats.Success(name, len(results)-invalid, total, httpTime)
	if invalid > 0 {
		b.stats.SoftError(name, domain.ErrInvalidResult.Error())
	}
	tracer.SetOK(span)
}

func (b *base) fail(logger *slog.Logger, call Call, c Container, ee *domain.EngineError) {
	name := b.engine.Name
	b.stats.Error(name, ee.Kind.String())
	logger.Warn("engine failed", "kind", ee.Kind.String(), "error", ee)

	if ee.Kind.Suspends() {
		until := b.suspensions.SuspendFor(b.engine.SuspensionKey(), ee)
		logger.Warn("engine suspended", "until", until, "reason", ee.Reason())
	}

	if call.Handle != nil && !call.Handle.Commit() {
		return
	}
	if b.engine.DisplayErrorMessages {
		c.AddUnresponsiveEngine(name, ee.Kind.UnresponsiveReason(), false)
	}
}

// safeExec turns an adapter panic into an error.
func safeExec(ctx context.Context, call Call, exec execFunc) (results []domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = &panicError{value: r}
		}
	}()
	return exec(ctx, call)
}

// New builds the processor matching engine.Kind.
func New(engine *domain.Engine, deps Deps, fetcher Fetcher, userAgent string) (Processor, error) {
	switch engine.Kind {
	case domain.ProcessorOnline, "":
		if engine.Online == nil {
			return nil, fmt.Errorf("engine %s: online processor without online adapter", engine.Name)
		}
		return NewOnline(engine, deps, fetcher, userAgent), nil
	case domain.ProcessorOnlineDictionary:
		if engine.Online == nil {
			return nil, fmt.Errorf("engine %s: dictionary processor without online adapter", engine.Name)
		}
		return NewDictionary(engine, deps, fetcher, userAgent), nil
	case domain.ProcessorOnlineCurrency:
		if engine.Online == nil {
			return nil, fmt.Errorf("engine %s: currency processor without online adapter", engine.Name)
		}
		return NewCurrency(engine, deps, fetcher, userAgent), nil
	case domain.ProcessorOffline:
		if engine.Offline == nil {
			return nil, fmt.Errorf("engine %s: offline processor without offline adapter", engine.Name)
		}
		return NewOffline(engine, deps), nil
	}
	return nil, domain.NewSubSystemError("engine", "processor.New", domain.ErrUnknownEngine, string(engine.Kind))
}
