// Package httpapi exposes the search orchestrator as a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
	"metasearch/internal/infra/metrics"
	"metasearch/internal/infra/middleware"
	"metasearch/internal/plugin"
	"metasearch/internal/usecase/checker"
	"metasearch/internal/usecase/scheduling"
	"metasearch/internal/usecase/search"
)

// PluginSource provides the enabled plugins.
type PluginSource interface {
	Enabled() []search.Plugin
	List() []plugin.Info
}

// StatsSource provides per-engine statistics.
type StatsSource interface {
	Snapshot() ([]metrics.EngineSnapshot, error)
}

// CheckerSource provides the latest checker report.
type CheckerSource interface {
	Last() (checker.Report, bool)
}

// ScheduleSource reports the runs of scheduled tasks.
type ScheduleSource interface {
	NextRun(name string) *time.Time
	LastRun(name string) (scheduling.RunInfo, bool)
}

// AnswererSource describes the registered answerers.
type AnswererSource interface {
	Infos() []domain.AnswererInfo
}

// Deps are the collaborators of the API. Only Orchestrator is required.
type Deps struct {
	Orchestrator *search.Orchestrator
	Plugins      PluginSource
	Answerers    AnswererSource
	Stats        StatsSource
	Checker      CheckerSource
	Schedule     ScheduleSource
	// Metrics enables request metrics and, with MetricsPath, the
	// Prometheus endpoint.
	Metrics     *metrics.Metrics
	MetricsPath string
	Server      config.ServerConfig
	Search      config.SearchConfig
	Version     string
	Logger      *slog.Logger
}

type handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandler builds the API handler with its middleware. ctx bounds the
// rate limiter's background cleanup.
func NewHandler(ctx context.Context, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handler{deps: deps, logger: deps.Logger}

	mux := http.NewServeMux()
	paths := []string{"/search", "/stats", "/checker", "/config", "/healthz"}
	mux.HandleFunc("GET /search", h.search)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("GET /checker", h.checker)
	mux.HandleFunc("GET /config", h.config)
	mux.HandleFunc("GET /healthz", h.healthz)
	if deps.Metrics != nil && deps.MetricsPath != "" {
		mux.Handle("GET "+deps.MetricsPath, deps.Metrics.Handler())
		paths = append(paths, deps.MetricsPath)
	}

	var next http.Handler = mux
	if rl := deps.Server.RateLimit; rl.RequestsPerMin > 0 {
		cfg := middleware.RateLimitConfig{
			RequestsPerMin: rl.RequestsPerMin,
			BurstSize:      rl.Burst,
			TrustedProxies: deps.Server.TrustedProxies,
			OnReject: func(r *http.Request) {
				h.logger.Debug("request rate limited", "path", r.URL.Path)
			},
		}
		if deps.Metrics != nil {
			cfg.OnReject = func(r *http.Request) {
				deps.Metrics.HTTP.RateLimited()
				h.logger.Debug("request rate limited", "path", r.URL.Path)
			}
		}
		next = middleware.RateLimit(ctx, cfg)(next)
	}
	next = middleware.SecurityHeaders(next)
	if deps.Metrics != nil {
		next = middleware.Metrics(deps.Metrics.HTTP, paths...)(next)
	}
	return next
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if code := domain.ErrorCodeOf(err); code != domain.CodeUnknown {
		resp.Code = string(code)
	}
	writeJSON(w, status, resp)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseSearch turns the request parameters into a search query.
func (h *handler) parseSearch(r *http.Request) (domain.SearchQuery, error) {
	form := r.URL.Query()
	o := h.deps.Orchestrator

	raw := strings.TrimSpace(form.Get("q"))
	if raw == "" {
		return domain.SearchQuery{}, domain.NewDomainError("httpapi.search", domain.ErrEmptyQuery, "")
	}
	rq := o.ParseRawQuery(raw)
	if rq.Query == "" && rq.ExternalBang == "" {
		return domain.SearchQuery{}, domain.NewDomainError("httpapi.search", domain.ErrEmptyQuery, "")
	}

	refs := rq.EngineRefs
	if !rq.Specific {
		refs = append(refs, o.SelectEngines(splitList(form.Get("categories")), splitList(form.Get("engines")))...)
	}

	q := domain.SearchQuery{
		Query:        rq.Query,
		EngineRefs:   refs,
		Lang:         h.deps.Search.DefaultLanguage,
		SafeSearch:   h.deps.Search.SafeSearch,
		TimeRange:    domain.TimeRange(form.Get("time_range")),
		TimeoutLimit: rq.TimeoutLimit,
		ExternalBang: rq.ExternalBang,
		EngineData:   engineData(form),
	}
	if len(rq.Languages) > 0 {
		q.Lang = rq.Languages[0]
	} else if lang := form.Get("language"); lang != "" {
		q.Lang = lang
	}
	if v := form.Get("pageno"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.SearchQuery{}, domain.NewDomainError("httpapi.search", domain.ErrInvalidInput, "pageno: "+v)
		}
		q.PageNo = n
	}
	if v := form.Get("safesearch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.SearchQuery{}, domain.NewDomainError("httpapi.search", domain.ErrInvalidInput, "safesearch: "+v)
		}
		q.SafeSearch = n
	}
	if v := form.Get("timeout_limit"); v != "" && q.TimeoutLimit == 0 {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			return domain.SearchQuery{}, domain.NewDomainError("httpapi.search", domain.ErrInvalidInput, "timeout_limit: "+v)
		}
		q.TimeoutLimit = time.Duration(secs * float64(time.Second))
	}
	return domain.NewSearchQuery(q)
}

// engineData collects "engine_data-<engine>-<key>=<value>" parameters.
func engineData(form map[string][]string) map[string]map[string]string {
	out := map[string]map[string]string{}
	for k, vs := range form {
		rest, ok := strings.CutPrefix(k, "engine_data-")
		if !ok || len(vs) == 0 {
			continue
		}
		engine, key, ok := strings.Cut(rest, "-")
		if !ok || engine == "" || key == "" {
			continue
		}
		if out[engine] == nil {
			out[engine] = map[string]string{}
		}
		out[engine][key] = vs[0]
	}
	return out
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported format " + strconv.Quote(format)})
		return
	}

	q, err := h.parseSearch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	searchID := ulid.Make().String()
	ctx := domain.ContextWithSearchID(r.Context(), searchID)
	info := search.RequestInfo{
		RemoteAddr: middleware.ClientIP(r, h.deps.Server.TrustedProxies),
		UserAgent:  r.UserAgent(),
	}

	var plugins []search.Plugin
	if h.deps.Plugins != nil {
		plugins = h.deps.Plugins.Enabled()
	}
	c := h.deps.Orchestrator.SearchWithPlugins(ctx, q, info, plugins)

	h.logger.InfoContext(ctx, "search served",
		"results", c.ResultsLength(),
		"unresponsive", len(c.UnresponsiveEngines()),
		"redirect", c.RedirectURL() != "")

	w.Header().Set("X-Search-Id", searchID)
	if u := c.RedirectURL(); u != "" && format != "json" {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(q, searchID, c))
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"engines": []metrics.EngineSnapshot{}})
		return
	}
	snap, err := h.deps.Stats.Snapshot()
	if err != nil {
		h.logger.Error("engine stats snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("stats unavailable"))
		return
	}
	if snap == nil {
		snap = []metrics.EngineSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"engines": snap})
}

type checkRun struct {
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// checkerResponse is the last report, if any, plus the schedule of the
// check task. Status shadows the report's own field so it is set without one.
type checkerResponse struct {
	*checker.Report
	Status  string     `json:"status"`
	NextRun *time.Time `json:"next_run,omitempty"`
	LastRun *checkRun  `json:"last_run,omitempty"`
}

func (h *handler) checker(w http.ResponseWriter, _ *http.Request) {
	resp := checkerResponse{Status: "unknown"}
	if h.deps.Checker != nil {
		if report, ok := h.deps.Checker.Last(); ok {
			resp.Report = &report
			resp.Status = report.Status
		}
	}
	if h.deps.Schedule != nil {
		task := string(scheduling.ActionEngineCheck)
		resp.NextRun = h.deps.Schedule.NextRun(task)
		if info, ok := h.deps.Schedule.LastRun(task); ok {
			run := &checkRun{Started: info.Started, DurationMS: info.Duration.Milliseconds()}
			if info.Err != nil {
				run.Error = info.Err.Error()
			}
			resp.LastRun = run
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type engineInfo struct {
	Name             string   `json:"name"`
	Shortcut         string   `json:"shortcut,omitempty"`
	Categories       []string `json:"categories"`
	Processor        string   `json:"processor"`
	Paging           bool     `json:"paging"`
	LanguageSupport  bool     `json:"language_support"`
	TimeRangeSupport bool     `json:"time_range_support"`
	SafeSearch       bool     `json:"safesearch"`
	Enabled          bool     `json:"enabled"`
	Timeout          float64  `json:"timeout"`
	Network          string   `json:"network,omitempty"`
}

func (h *handler) config(w http.ResponseWriter, _ *http.Request) {
	o := h.deps.Orchestrator
	resp := struct {
		Version         string                `json:"version,omitempty"`
		Categories      []string              `json:"categories"`
		Engines         []engineInfo          `json:"engines"`
		Plugins         []plugin.Info         `json:"plugins"`
		Answerers       []domain.AnswererInfo `json:"answerers"`
		DefaultLanguage string                `json:"default_language,omitempty"`
		SafeSearch      int                   `json:"safe_search"`
	}{
		Version:         h.deps.Version,
		Categories:      o.Categories(),
		Engines:         []engineInfo{},
		Plugins:         []plugin.Info{},
		Answerers:       []domain.AnswererInfo{},
		DefaultLanguage: h.deps.Search.DefaultLanguage,
		SafeSearch:      h.deps.Search.SafeSearch,
	}
	for _, p := range o.Processors() {
		e := p.Engine()
		resp.Engines = append(resp.Engines, engineInfo{
			Name:             e.Name,
			Shortcut:         e.Shortcut,
			Categories:       e.Categories,
			Processor:        string(p.Kind()),
			Paging:           e.Paging,
			LanguageSupport:  e.LanguageSupport,
			TimeRangeSupport: e.TimeRangeSupport,
			SafeSearch:       e.SafeSearch,
			Enabled:          !e.Disabled,
			Timeout:          e.Timeout.Seconds(),
			Network:          e.Network,
		})
	}
	if h.deps.Plugins != nil {
		resp.Plugins = h.deps.Plugins.List()
	}
	if h.deps.Answerers != nil {
		resp.Answerers = h.deps.Answerers.Infos()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
