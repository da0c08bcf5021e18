package results

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/internal/domain"
)

func lookupOf(engines ...*domain.Engine) EngineLookup {
	m := make(map[string]*domain.Engine, len(engines))
	for _, e := range engines {
		m[e.Name] = e
	}
	return func(name string) *domain.Engine { return m[name] }
}

func TestDuplicateKeepsLongerContentAndSumsScores(t *testing.T) {
	c := NewContainer(nil)
	c.Extend("A", []domain.Result{{URL: "https://x.com/page", Title: "x", Content: strings.Repeat("a", 10)}})
	c.Extend("B", []domain.Result{{URL: "https://www.x.com/page/", Title: "x", Content: strings.Repeat("b", 50)}})

	got := c.OrderedResults()
	require.Len(t, got, 1)
	assert.Len(t, got[0].Content, 50)
	assert.Equal(t, []string{"A", "B"}, got[0].Engines)
	// N=2, E=2: i=0 scores floor(2/2)+1, i=1 scores floor(1/2)+1.
	assert.Equal(t, 3.0, got[0].Score)
}

func TestDuplicatePrefersHTTPS(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		wantTo string
	}{
		{"https kept", "https://x.com/a", "http://x.com/a", "https://x.com/a"},
		{"upgraded to https", "http://x.com/a", "https://x.com/a", "https://x.com/a"},
		{"both http", "http://x.com/a", "http://x.com/a", "http://x.com/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContainer(nil)
			c.Extend("A", []domain.Result{{URL: tt.a, Title: "a"}})
			c.Extend("B", []domain.Result{{URL: tt.b, Title: "a"}})

			got := c.OrderedResults()
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantTo, got[0].URL)
			assert.Equal(t, strings.SplitN(tt.wantTo, ":", 2)[0], got[0].ParsedURL.Scheme)
		})
	}
}

func TestMergingSameListTwiceAccumulatesScores(t *testing.T) {
	list := []domain.Result{
		{URL: "https://a.org/1", Title: "1"},
		{URL: "https://a.org/2", Title: "2"},
		{URL: "https://a.org/3", Title: "3"},
	}

	once := NewContainer(nil)
	once.Extend("e", list)
	twice := NewContainer(nil)
	twice.Extend("e", list)
	twice.Extend("e", list)

	a, b := once.OrderedResults(), twice.OrderedResults()
	require.Len(t, a, 3)
	require.Len(t, b, 3)
	for i := range a {
		assert.Equal(t, a[i].URL, b[i].URL)
		assert.Greater(t, b[i].Score, a[i].Score, "result %s", a[i].URL)
		assert.Equal(t, []string{"e"}, b[i].Engines)
	}
	assert.Equal(t, []float64{4, 3, 2}, []float64{a[0].Score, a[1].Score, a[2].Score})
	// N=6, E=2: each URL sums the scores of its two interleaved slots.
	assert.Equal(t, []float64{7, 5, 3}, []float64{b[0].Score, b[1].Score, b[2].Score})
}

func TestRoundRobinScoring(t *testing.T) {
	c := NewContainer(lookupOf(&domain.Engine{Name: "heavy", Weight: 2}))
	c.Extend("heavy", []domain.Result{
		{URL: "https://h.org/1", Title: "h1"},
		{URL: "https://h.org/2", Title: "h2"},
	})
	c.Extend("light", []domain.Result{
		{URL: "https://l.org/1", Title: "l1"},
	})

	got := c.OrderedResults()
	require.Len(t, got, 3)
	// flat order: h1 (i=0), l1 (i=1), h2 (i=2); N=3, E=2.
	scores := map[string]float64{}
	for _, r := range got {
		scores[r.Title] = r.Score
	}
	assert.Equal(t, map[string]float64{"h1": 3, "l1": 2, "h2": 1}, scores)
	assert.Equal(t, []string{"h1", "l1", "h2"}, []string{got[0].Title, got[1].Title, got[2].Title})
}

func TestSharedResultDoesNotOutrankTopResult(t *testing.T) {
	c := NewContainer(nil)
	c.Extend("A", []domain.Result{
		{URL: "https://a.org/1", Title: "a1"},
		{URL: "https://a.org/2", Title: "a2"},
		{URL: "https://shared.org/x", Title: "shared"},
	})
	c.Extend("B", []domain.Result{
		{URL: "https://shared.org/x", Title: "shared"},
	})

	got := c.OrderedResults()
	require.Len(t, got, 3)
	// flat order: a1 (i=0), shared (i=1), a2 (i=2), shared (i=3); N=4, E=2.
	assert.Equal(t, []string{"a1", "shared", "a2"}, []string{got[0].Title, got[1].Title, got[2].Title})
	assert.Equal(t, 3.0, got[0].Score)
	assert.Equal(t, 3.0, got[1].Score)
	assert.Equal(t, []string{"A", "B"}, got[1].Engines)
	assert.Equal(t, 2.0, got[2].Score)
}

func TestSingleResultScoresAboveBase(t *testing.T) {
	c := NewContainer(nil)
	c.Extend("A", []domain.Result{{URL: "https://a.org/1", Title: "a1"}})

	got := c.OrderedResults()
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Score)
}

func TestOrderDoesNotDependOnArrivalOrder(t *testing.T) {
	build := func(order []string) []domain.Result {
		c := NewContainer(nil)
		for _, e := range order {
			c.Extend(e, []domain.Result{
				{URL: "https://" + e + ".org/1", Title: e + "1"},
				{URL: "https://shared.org/x", Title: "shared"},
			})
		}
		return c.OrderedResults()
	}
	a := build([]string{"alpha", "beta", "gamma"})
	b := build([]string{"gamma", "alpha", "beta"})
	assert.Equal(t, a, b)
}

func TestConcurrentExtend(t *testing.T) {
	c := NewContainer(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := fmt.Sprintf("e%02d", i)
			c.Extend(e, []domain.Result{
				{URL: fmt.Sprintf("https://%s.org/", e), Title: e},
				{URL: "https://common.org/", Title: "common"},
			})
			c.AddTiming(e, 0, 0)
		}(i)
	}
	wg.Wait()

	got := c.OrderedResults()
	require.Len(t, got, 21)
	assert.Equal(t, "common", got[0].Title)
	assert.Len(t, got[0].Engines, 20)
	assert.Len(t, c.Timings(), 20)
}

func TestExtendNormalizesAndRejects(t *testing.T) {
	c := NewContainer(nil)
	accepted, invalid := c.Extend("e", []domain.Result{
		{URL: "example.com/a", Title: "no scheme", Content: "two\n\n  lines\tand tabs"},
		{URL: "", Title: "missing url"},
		{URL: "https://example.com/b"},
		{URL: "http://[::1", Title: "bad url"},
		{Suggestion: "golang"},
	})
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 3, invalid)

	got := c.OrderedResults()
	require.Len(t, got, 1)
	assert.Equal(t, "http://example.com/a", got[0].URL)
	assert.Equal(t, "two lines and tabs", got[0].Content)
	assert.Equal(t, "e", got[0].Engine)
}

func TestImagesDedupOnImgSrc(t *testing.T) {
	c := NewContainer(nil)
	c.Extend("e", []domain.Result{
		{URL: "https://img.org/p", Title: "a", Template: "images.html", ImgSrc: "https://img.org/1.png"},
		{URL: "https://img.org/p", Title: "b", Template: "images.html", ImgSrc: "https://img.org/2.png"},
		{URL: "https://img.org/p", Title: "c", Template: "images.html", ImgSrc: "https://img.org/1.png"},
		{URL: "https://img.org/p", Title: "d"},
	})
	assert.Len(t, c.OrderedResults(), 3)
}

func TestSpecialResults(t *testing.T) {
	c := NewContainer(nil)
	c.Extend("a", []domain.Result{
		{Answer: "42"},
		{Suggestion: "go lang"},
		{Correction: "golang"},
		{NumberOfResults: 100},
		{EngineDataKey: "next_page", EngineDataValue: "tok1"},
	})
	c.Extend("b", []domain.Result{
		{Answer: "42"},
		{Answer: "forty-two"},
		{Suggestion: "go lang"},
		{NumberOfResults: 300},
	})
	c.AddAnswer(domain.Result{Answer: "from plugin", Engine: "hash"})

	answers := c.Answers()
	require.Len(t, answers, 3)
	assert.Equal(t, "42", answers[0].Answer)
	assert.Equal(t, "a", answers[0].Engine)
	assert.Equal(t, []string{"go lang"}, c.Suggestions())
	assert.Equal(t, []string{"golang"}, c.Corrections())
	assert.Equal(t, 200, c.NumberOfResults())
	assert.Equal(t, map[string]map[string]string{"a": {"next_page": "tok1"}}, c.EngineData())
	assert.Empty(t, c.OrderedResults())
}

func TestNumberOfResultsWithoutReports(t *testing.T) {
	assert.Zero(t, NewContainer(nil).NumberOfResults())
}

func TestPagingFlag(t *testing.T) {
	lookup := lookupOf(&domain.Engine{Name: "pager", Paging: true}, &domain.Engine{Name: "flat"})

	c := NewContainer(lookup)
	c.Extend("flat", []domain.Result{{URL: "https://a.org", Title: "a"}})
	c.Extend("pager", []domain.Result{{Answer: "only an answer"}})
	assert.False(t, c.Paging())

	c.Extend("pager", []domain.Result{{URL: "https://b.org", Title: "b"}})
	assert.True(t, c.Paging())
}

func TestUnresponsiveEngines(t *testing.T) {
	c := NewContainer(nil)
	c.AddUnresponsiveEngine("zeta", "timeout", false)
	c.AddUnresponsiveEngine("alpha", "suspended: HTTP error", true)
	c.AddUnresponsiveEngine("zeta", "HTTP error", false)

	assert.Equal(t, []UnresponsiveEngine{
		{Engine: "alpha", Reason: "suspended: HTTP error", Suspended: true},
		{Engine: "zeta", Reason: "timeout"},
	}, c.UnresponsiveEngines())
}

func TestFilterResults(t *testing.T) {
	c := NewContainer(nil)
	c.Extend("e", []domain.Result{
		{URL: "https://a.org/1", Title: "keep"},
		{URL: "https://a.org/2", Title: "drop"},
	})
	c.FilterResults(func(r *domain.Result) bool {
		r.Content = "seen"
		return r.Title != "drop"
	})

	got := c.OrderedResults()
	require.Len(t, got, 1)
	assert.Equal(t, "seen", got[0].Content)
	assert.Equal(t, 1, c.ResultsLength())
}

type recordingScores map[string]float64

func (r recordingScores) AddScore(engine string, score float64) { r[engine] += score }

func TestScoreRecorder(t *testing.T) {
	rec := recordingScores{}
	c := NewContainer(nil, WithScoreRecorder(rec))
	c.Extend("a", []domain.Result{{URL: "https://x.org", Title: "x"}})
	c.Extend("b", []domain.Result{{URL: "https://x.org", Title: "x"}})

	c.OrderedResults()
	c.OrderedResults()
	assert.Equal(t, recordingScores{"a": 3, "b": 3}, rec)
}

func TestContentLen(t *testing.T) {
	assert.Equal(t, 5, contentLen("h.e-l l,o"))
	assert.Equal(t, 0, contentLen(" ()-_ "))
}
