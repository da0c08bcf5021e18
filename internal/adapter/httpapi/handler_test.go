package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/internal/adapter/answerer"
	"metasearch/internal/adapter/bang"
	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
	"metasearch/internal/infra/metrics"
	"metasearch/internal/plugin"
	"metasearch/internal/usecase/checker"
	"metasearch/internal/usecase/processor"
	"metasearch/internal/usecase/scheduling"
	"metasearch/internal/usecase/search"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type offlineFunc func(query string, params *domain.RequestParams) ([]domain.Result, error)

func (f offlineFunc) Search(_ context.Context, query string, params *domain.RequestParams) ([]domain.Result, error) {
	return f(query, params)
}

func echoEngine(query string, params *domain.RequestParams) ([]domain.Result, error) {
	return []domain.Result{
		{URL: "https://docs.test/" + url.PathEscape(query), Title: "Docs " + query, Content: "lang=" + params.Language},
		{URL: "https://blog.test/?utm_source=feed&p=1", Title: "Blog " + query},
		{EngineDataKey: "next", EngineDataValue: params.EngineData["cursor"] + "+1"},
	}, nil
}

type fixture struct {
	orch    *search.Orchestrator
	metrics *metrics.Metrics
	deps    Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.New(false)
	pdeps := processor.Deps{Stats: m.Engines, Logger: discardLogger()}

	var procs []processor.Processor
	for _, e := range []*domain.Engine{
		{Name: "docs", Shortcut: "d", Categories: []string{"general"}, Paging: true},
		{Name: "pics", Categories: []string{"images"}},
	} {
		e.Kind = domain.ProcessorOffline
		e.Timeout = 2 * time.Second
		e.DisplayErrorMessages = true
		e.Offline = offlineFunc(echoEngine)
		p, err := processor.New(e, pdeps, nil, "")
		require.NoError(t, err)
		procs = append(procs, p)
	}

	o := search.NewOrchestrator(procs, discardLogger())
	bangs, err := bang.Default()
	require.NoError(t, err)
	o.SetBangs(bangs)
	answerers := answerer.Default()
	o.SetAnswerers(answerers)
	o.SetScoreRecorder(m.Engines)

	plugins, err := plugin.NewDefaultManager([]string{"self_info", "tracker_url_remover"}, discardLogger())
	require.NoError(t, err)

	return &fixture{
		orch:    o,
		metrics: m,
		deps: Deps{
			Orchestrator: o,
			Plugins:      plugins,
			Answerers:    answerers,
			Stats:        m.Engines,
			Metrics:      m,
			MetricsPath:  "/metrics",
			Search:       config.SearchConfig{DefaultLanguage: "en"},
			Version:      "test",
			Logger:       discardLogger(),
		},
	}
}

func (f *fixture) do(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(t.Context(), f.deps)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "httpapi-test")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

type searchBody struct {
	Query               string                       `json:"query"`
	SearchID            string                       `json:"search_id"`
	Results             []domain.Result              `json:"results"`
	Answers             []domain.Result              `json:"answers"`
	UnresponsiveEngines []map[string]any             `json:"unresponsive_engines"`
	EngineData          map[string]map[string]string `json:"engine_data"`
	Timings             []timing                     `json:"timings"`
	RedirectURL         string                       `json:"redirect_url"`
	Paging              bool                         `json:"paging"`
	Suggestions         []string                     `json:"suggestions"`
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "/search?q=golang&language=de&engine_data-docs-cursor=abc")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	body := decode[searchBody](t, w)
	assert.Equal(t, "golang", body.Query)
	assert.Len(t, body.SearchID, 26)
	assert.Equal(t, body.SearchID, w.Header().Get("X-Search-Id"))
	require.Len(t, body.Results, 2)
	assert.Equal(t, "https://docs.test/golang", body.Results[0].URL)
	assert.Equal(t, "lang=de", body.Results[0].Content)
	assert.Equal(t, "https://blog.test/?p=1", body.Results[1].URL, "tracker parameters removed")
	assert.Equal(t, map[string]map[string]string{"docs": {"next": "abc+1"}}, body.EngineData)
	assert.True(t, body.Paging)
	require.Len(t, body.Timings, 1)
	assert.Equal(t, "docs", body.Timings[0].Engine)
	assert.NotNil(t, body.Suggestions)
	assert.NotNil(t, body.UnresponsiveEngines)
}

func TestSearchQueryModifiers(t *testing.T) {
	f := newFixture(t)

	body := decode[searchBody](t, f.do(t, "/search?q="+url.QueryEscape("!pics :fr cats")))
	require.Len(t, body.Results, 2)
	assert.Equal(t, "cats", body.Query)
	assert.Equal(t, []string{"pics"}, body.Results[0].Engines)
	assert.Equal(t, "lang=fr", body.Results[0].Content)

	body = decode[searchBody](t, f.do(t, "/search?q=cats&categories=images,general"))
	assert.ElementsMatch(t, []string{"docs", "pics"}, body.Results[0].Engines)
}

func TestSearchAnswersAndPlugins(t *testing.T) {
	f := newFixture(t)

	body := decode[searchBody](t, f.do(t, "/search?q=sum+1+2+3"))
	require.Len(t, body.Answers, 1)
	assert.Equal(t, "6", body.Answers[0].Answer)
	assert.Empty(t, body.Results, "answerers short-circuit the engines")

	body = decode[searchBody](t, f.do(t, "/search?q=ip"))
	require.Len(t, body.Answers, 1)
	assert.Equal(t, "192.0.2.10", body.Answers[0].Answer)

	body = decode[searchBody](t, f.do(t, "/search?q=my+user+agent"))
	require.Len(t, body.Answers, 1)
	assert.Equal(t, "httpapi-test", body.Answers[0].Answer)
}

func TestSearchExternalBang(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "/search?q="+url.QueryEscape("!!gh cobra"))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://github.com/search?q=cobra", w.Header().Get("Location"))

	w = f.do(t, "/search?format=json&q="+url.QueryEscape("!!gh cobra"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[searchBody](t, w)
	assert.Equal(t, "https://github.com/search?q=cobra", body.RedirectURL)
	assert.Empty(t, body.Results)
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		target string
		code   string
	}{
		{"/search", "EMPTY_QUERY"},
		{"/search?q=++", "EMPTY_QUERY"},
		{"/search?q=%3Afr", "EMPTY_QUERY"},
		{"/search?q=go&pageno=two", "INVALID_INPUT"},
		{"/search?q=go&safesearch=5", "INVALID_INPUT"},
		{"/search?q=go&time_range=decade", "INVALID_INPUT"},
		{"/search?q=go&timeout_limit=-1", "INVALID_INPUT"},
		{"/search?q=go&format=rss", ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := f.do(t, tt.target)
			require.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[errorResponse](t, w)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.code, body.Code)
		})
	}

	// 0 means the first page.
	assert.Equal(t, http.StatusOK, f.do(t, "/search?q=go&pageno=0").Code)
}

func TestEngineData(t *testing.T) {
	form := url.Values{
		"engine_data-docs-cursor": {"a"},
		"engine_data-docs-page":   {"2"},
		"engine_data-pics-x-y":    {"z"},
		"engine_data--k":          {"bad"},
		"engine_data-docs":        {"bad"},
		"q":                       {"go"},
	}
	assert.Equal(t, map[string]map[string]string{
		"docs": {"cursor": "a", "page": "2"},
		"pics": {"x-y": "z"},
	}, engineData(form))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, "/search?q=golang").Code)

	w := f.do(t, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Engines []metrics.EngineSnapshot `json:"engines"`
	}](t, w)
	require.Len(t, body.Engines, 1)
	assert.Equal(t, "docs", body.Engines[0].Engine)
	assert.Equal(t, int64(1), body.Engines[0].Sent)
	assert.Equal(t, int64(1), body.Engines[0].Successful)
	assert.Equal(t, 100.0, body.Engines[0].Reliability)
}

type fixedChecker struct{ report *checker.Report }

func (c fixedChecker) Last() (checker.Report, bool) {
	if c.report == nil {
		return checker.Report{}, false
	}
	return *c.report, true
}

func TestChecker(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "/checker")
	assert.JSONEq(t, `{"status": "unknown"}`, w.Body.String())

	f.deps.Checker = fixedChecker{}
	w = f.do(t, "/checker")
	assert.JSONEq(t, `{"status": "unknown"}`, w.Body.String())

	f.deps.Checker = fixedChecker{report: &checker.Report{
		Status:  checker.StatusFailed,
		Engines: []checker.EngineStatus{{Engine: "docs", Success: false}},
	}}
	w = f.do(t, "/checker")
	body := decode[checker.Report](t, w)
	assert.Equal(t, checker.StatusFailed, body.Status)
	require.Len(t, body.Engines, 1)
	assert.Equal(t, "docs", body.Engines[0].Engine)
}

type fixedSchedule struct {
	next *time.Time
	last *scheduling.RunInfo
}

func (s fixedSchedule) NextRun(name string) *time.Time {
	if name != string(scheduling.ActionEngineCheck) {
		return nil
	}
	return s.next
}

func (s fixedSchedule) LastRun(name string) (scheduling.RunInfo, bool) {
	if s.last == nil || name != string(scheduling.ActionEngineCheck) {
		return scheduling.RunInfo{}, false
	}
	return *s.last, true
}

func TestCheckerSchedule(t *testing.T) {
	next := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	started := next.Add(-time.Hour)

	tests := []struct {
		name     string
		checker  CheckerSource
		schedule fixedSchedule
		want     string
	}{
		{
			name:     "not run yet",
			schedule: fixedSchedule{next: &next},
			want:     `{"status": "unknown", "next_run": "2026-10-19T13:00:00Z"}`,
		},
		{
			name:     "failed run",
			schedule: fixedSchedule{next: &next, last: &scheduling.RunInfo{Started: started, Duration: 1500 * time.Millisecond, Err: errors.New("no engines")}},
			want: `{"status": "unknown", "next_run": "2026-10-19T13:00:00Z",
				"last_run": {"started": "2026-10-19T12:00:00Z", "duration_ms": 1500, "error": "no engines"}}`,
		},
		{
			name:     "report and run",
			checker:  fixedChecker{report: &checker.Report{Status: checker.StatusOK, Timestamp: started, Duration: time.Second, Engines: []checker.EngineStatus{}}},
			schedule: fixedSchedule{last: &scheduling.RunInfo{Started: started, Duration: time.Second}},
			want: `{"status": "ok", "timestamp": "2026-10-19T12:00:00Z", "duration": 1000000000, "engines": [],
				"last_run": {"started": "2026-10-19T12:00:00Z", "duration_ms": 1000}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.deps.Checker = tt.checker
			f.deps.Schedule = tt.schedule

			w := f.do(t, "/checker")
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestConfig(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "/config")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Version    string                `json:"version"`
		Categories []string              `json:"categories"`
		Engines    []engineInfo          `json:"engines"`
		Plugins    []plugin.Info         `json:"plugins"`
		Answerers  []domain.AnswererInfo `json:"answerers"`
	}](t, w)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, []string{"general", "images"}, body.Categories)
	require.Len(t, body.Engines, 2)
	assert.Equal(t, engineInfo{
		Name: "docs", Shortcut: "d", Categories: []string{"general"}, Processor: "offline",
		Paging: true, Enabled: true, Timeout: 2,
	}, body.Engines[0])
	assert.Len(t, body.Plugins, 3)
	assert.Len(t, body.Answerers, 2)
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "/healthz")
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())

	f.do(t, "/nowhere")
	w = f.do(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	text := w.Body.String()
	assert.Contains(t, text, `metasearch_http_requests_total{method="GET",path="/healthz",status="2xx"} 1`)
	assert.Contains(t, text, `metasearch_http_requests_total{method="GET",path="other",status="4xx"} 1`)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)
	f.deps.Server.RateLimit = config.RateLimitConfig{RequestsPerMin: 60, Burst: 2}
	h := NewHandler(t.Context(), f.deps)

	var codes []int
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "198.51.100.4:1000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "198.51.100.5:1000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "metasearch_http_ratelimit_rejected_total 1")
}

func TestServerStartStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(config.ServerConfig{Addr: "127.0.0.1:0"}, NewHandler(ctx, f.deps), discardLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("server failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.BoundAddr()))
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(data), "ok"))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
