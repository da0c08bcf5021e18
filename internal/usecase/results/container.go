// Package results aggregates the result lists of one search request into a
// single ranked, de-duplicated list.
package results

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"metasearch/internal/domain"
)

// EngineLookup resolves engine settings by name; nil means unknown.
type EngineLookup func(name string) *domain.Engine

// ScoreRecorder receives the final score of each result per contributing engine.
type ScoreRecorder interface {
	AddScore(engine string, score float64)
}

// UnresponsiveEngine is an engine that contributed nothing, with the reason.
type UnresponsiveEngine struct {
	Engine    string `json:"engine"`
	Reason    string `json:"error_type"`
	Suspended bool   `json:"suspended"`
}

// Timing is the time one engine took to answer.
type Timing struct {
	Engine string        `json:"engine"`
	Total  time.Duration `json:"total"`
	HTTP   time.Duration `json:"load"`
}

// batch is one Extend call's standard results, in the engine's order.
type batch struct {
	engine  string
	seq     int
	results []domain.Result
}

// Container is the per-request aggregation buffer. Extend and the other
// writers may be called concurrently; the ranked list is computed once, on
// the first read after the writers are done.
type Container struct {
	lookup EngineLookup
	scores ScoreRecorder
	logger *slog.Logger

	mu              sync.Mutex
	batches         []batch
	seqs            map[string]int
	answers         []domain.Result
	answerSeen      map[string]bool
	suggestions     []string
	corrections     []string
	infoboxes       []*domain.Infobox
	numberOfResults []int
	engineData      map[string]map[string]string
	unresponsive    map[string]UnresponsiveEngine
	timings         []Timing
	redirectURL     string
	paging          bool

	ordered   []domain.Result
	isOrdered bool
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithScoreRecorder reports final scores to r.
func WithScoreRecorder(r ScoreRecorder) ContainerOption {
	return func(c *Container) { c.scores = r }
}

// WithLogger sets the container logger.
func WithLogger(l *slog.Logger) ContainerOption {
	return func(c *Container) { c.logger = l }
}

// NewContainer creates an empty container. lookup may be nil, in which case
// every engine has weight 1 and no paging.
func NewContainer(lookup EngineLookup, opts ...ContainerOption) *Container {
	c := &Container{
		lookup:       lookup,
		logger:       slog.Default(),
		seqs:         map[string]int{},
		answerSeen:   map[string]bool{},
		engineData:   map[string]map[string]string{},
		unresponsive: map[string]UnresponsiveEngine{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Container) engine(name string) *domain.Engine {
	if c.lookup == nil {
		return nil
	}
	return c.lookup(name)
}

func (c *Container) weight(name string) float64 {
	if e := c.engine(name); e != nil {
		return e.EffectiveWeight()
	}
	return 1
}

// Extend files results from engine. Standard results without a URL or a
// title, or with an unparsable URL, are rejected and counted as invalid.
func (c *Container) Extend(engine string, results []domain.Result) (accepted, invalid int) {
	var standard []domain.Result
	for _, r := range results {
		r.Engine = engine
		switch r.Kind() {
		case domain.KindStandard:
			prepared, ok := prepareStandard(r)
			if !ok {
				c.logger.Debug("invalid result dropped", "engine", engine, "url", r.URL, "title", r.Title)
				invalid++
				continue
			}
			standard = append(standard, prepared)
		default:
			c.addSpecial(engine, r)
		}
		accepted++
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(standard) > 0 {
		seq := c.seqs[engine]
		c.seqs[engine] = seq + 1
		c.batches = append(c.batches, batch{engine: engine, seq: seq, results: standard})
		if e := c.engine(engine); e != nil && e.Paging {
			c.paging = true
		}
	}
	c.isOrdered = false
	return accepted, invalid
}

func prepareStandard(r domain.Result) (domain.Result, bool) {
	if strings.TrimSpace(r.URL) == "" || strings.TrimSpace(r.Title) == "" {
		return r, false
	}
	u, err := normalizeURL(r.URL)
	if err != nil || u.Host == "" {
		return r, false
	}
	r.ParsedURL = u
	r.URL = u.String()
	if r.Content != "" {
		r.Content = whitespaceRun.ReplaceAllString(r.Content, " ")
	}
	r.Engines = []string{r.Engine}
	return r, true
}

func (c *Container) addSpecial(engine string, r domain.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r.Kind() {
	case domain.KindSuggestion:
		if !slices.Contains(c.suggestions, r.Suggestion) {
			c.suggestions = append(c.suggestions, r.Suggestion)
		}
	case domain.KindAnswer:
		if !c.answerSeen[r.Answer] {
			c.answerSeen[r.Answer] = true
			c.answers = append(c.answers, r)
		}
	case domain.KindCorrection:
		if !slices.Contains(c.corrections, r.Correction) {
			c.corrections = append(c.corrections, r.Correction)
		}
	case domain.KindInfobox:
		box := *r.Infobox
		if box.Engine == "" {
			box.Engine = engine
		}
		c.infoboxes = mergeInfobox(c.infoboxes, &box, c.weight)
	case domain.KindNumberOfResults:
		c.numberOfResults = append(c.numberOfResults, r.NumberOfResults)
	case domain.KindEngineData:
		if c.engineData[engine] == nil {
			c.engineData[engine] = map[string]string{}
		}
		c.engineData[engine][r.EngineDataKey] = r.EngineDataValue
	}
}

// AddAnswer adds an answer produced outside the engines (answerers, plugins).
func (c *Container) AddAnswer(r domain.Result) {
	c.addSpecial(r.Engine, r)
}

// ClearAnswers drops every answer collected so far.
func (c *Container) ClearAnswers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = nil
	c.answerSeen = map[string]bool{}
}

// AddUnresponsiveEngine records that engine contributed nothing. The first
// report per engine wins.
func (c *Container) AddUnresponsiveEngine(engine, reason string, suspended bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.unresponsive[engine]; ok {
		return
	}
	c.unresponsive[engine] = UnresponsiveEngine{Engine: engine, Reason: reason, Suspended: suspended}
}

// AddTiming records how long engine took, in total and in HTTP.
func (c *Container) AddTiming(engine string, total, http time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings = append(c.timings, Timing{Engine: engine, Total: total, HTTP: http})
}

// SetRedirectURL marks the request as answered by a redirect.
func (c *Container) SetRedirectURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redirectURL = u
}

// OrderedResults returns the ranked list. It must only be called once every
// engine task has returned or been marked as timed out.
func (c *Container) OrderedResults() []domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOrdered {
		c.ordered = c.order()
		c.isOrdered = true
	}
	return slices.Clone(c.ordered)
}

// order interleaves the batches round-robin, scores each position, merges
// duplicates and sorts by score. Batches are visited by engine name then
// arrival sequence so the outcome does not depend on goroutine scheduling.
func (c *Container) order() []domain.Result {
	lists := slices.Clone(c.batches)
	slices.SortFunc(lists, func(a, b batch) int {
		if n := strings.Compare(a.engine, b.engine); n != 0 {
			return n
		}
		return cmp.Compare(a.seq, b.seq)
	})

	var flat []domain.Result
	for pos := 0; ; pos++ {
		more := false
		for _, l := range lists {
			if pos < len(l.results) {
				flat = append(flat, l.results[pos])
				more = true
			}
		}
		if !more {
			break
		}
	}

	n, engines := len(flat), len(lists)
	merged := make([]*domain.Result, 0, n)
	index := make(map[dedupKey]*domain.Result, n)
	for i := range flat {
		r := flat[i]
		r.Score = float64((n-i)/engines)*c.weight(r.Engine) + 1

		k := keyOf(&r)
		if kept, ok := index[k]; ok {
			mergeDuplicate(kept, &r)
			continue
		}
		kept := r
		index[k] = &kept
		merged = append(merged, &kept)
	}

	slices.SortStableFunc(merged, func(a, b *domain.Result) int {
		return cmp.Compare(b.Score, a.Score)
	})

	out := make([]domain.Result, len(merged))
	for i, r := range merged {
		out[i] = *r
		if c.scores != nil {
			for _, e := range r.Engines {
				c.scores.AddScore(e, r.Score)
			}
		}
	}
	return out
}

// FilterResults drops ranked results for which keep returns false. keep may
// modify the result.
func (c *Container) FilterResults(keep func(r *domain.Result) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOrdered {
		c.ordered = c.order()
		c.isOrdered = true
	}
	kept := c.ordered[:0]
	for i := range c.ordered {
		if keep(&c.ordered[i]) {
			kept = append(kept, c.ordered[i])
		}
	}
	c.ordered = kept
}

// ResultsLength is the number of ranked results.
func (c *Container) ResultsLength() int {
	return len(c.OrderedResults())
}

func (c *Container) Answers() []domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.answers)
}

func (c *Container) Suggestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.suggestions)
}

func (c *Container) Corrections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.corrections)
}

func (c *Container) Infoboxes() []domain.Infobox {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Infobox, len(c.infoboxes))
	for i, b := range c.infoboxes {
		out[i] = *b
	}
	return out
}

// UnresponsiveEngines returns the failed engines sorted by name.
func (c *Container) UnresponsiveEngines() []UnresponsiveEngine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]UnresponsiveEngine, 0, len(c.unresponsive))
	for _, u := range c.unresponsive {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b UnresponsiveEngine) int { return strings.Compare(a.Engine, b.Engine) })
	return out
}

func (c *Container) Timings() []Timing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.timings)
}

func (c *Container) RedirectURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirectURL
}

// EngineData returns the carry-over values reported per engine.
func (c *Container) EngineData() map[string]map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[string]string, len(c.engineData))
	for e, kv := range c.engineData {
		cp := make(map[string]string, len(kv))
		for k, v := range kv {
			cp[k] = v
		}
		out[e] = cp
	}
	return out
}

// NumberOfResults is the average of the totals engines reported, 0 if none.
func (c *Container) NumberOfResults() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.numberOfResults) == 0 {
		return 0
	}
	sum := 0
	for _, n := range c.numberOfResults {
		sum += n
	}
	return sum / len(c.numberOfResults)
}

// Paging reports whether a paging engine contributed standard results.
func (c *Container) Paging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paging
}
