package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/internal/adapter/network"
	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
	"metasearch/internal/usecase/processor"
	"metasearch/internal/usecase/search"
)

func boolPtr(b bool) *bool { return &b }

func TestBuildDefaults(t *testing.T) {
	e, err := Build(config.EngineConfig{
		Name:     "searx",
		Engine:   "searxng",
		Shortcut: "sx",
		BaseURL:  "https://searx.test",
		Tests: []config.EngineTestConfig{
			{Name: "infobox", Query: "berlin", ResultContainer: []string{"has_infobox"}},
		},
		AdditionalTests: []config.EngineTestConfig{
			{Name: "french", Query: "paris", Lang: "fr", ResultContainer: []string{"not_empty"}},
		},
	}, 3*time.Second, NetworkInfo{Name: "__DEFAULT__", ExtraTimeout: 2 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "searx", e.Name)
	assert.Equal(t, "sx", e.Shortcut)
	assert.Equal(t, domain.ProcessorOnline, e.Kind)
	assert.Equal(t, []string{"general"}, e.Categories)
	assert.True(t, e.Paging)
	assert.True(t, e.TimeRangeSupport)
	assert.True(t, e.LanguageSupport)
	assert.True(t, e.DisplayErrorMessages)
	assert.Equal(t, 5*time.Second, e.Timeout, "request timeout plus the network's extra timeout")
	assert.Equal(t, 1.0, e.EffectiveWeight())
	assert.Equal(t, "searx", e.SuspensionKey())
	assert.NotNil(t, e.Online)
	assert.Equal(t, []domain.EngineTest{{Name: "infobox", Query: "berlin", Expect: []string{"has_infobox"}}}, e.Tests)
	assert.Equal(t, []domain.EngineTest{{Name: "french", Query: "paris", Lang: "fr", Expect: []string{"not_empty"}}}, e.AdditionalTests)
}

func TestBuildOverrides(t *testing.T) {
	e, err := Build(config.EngineConfig{
		Name:                 "ddg-rates",
		Engine:               "currency",
		Categories:           []string{"finance"},
		Paging:               boolPtr(true),
		Timeout:              time.Second,
		Weight:               2,
		Disabled:             true,
		DisplayErrorMessages: boolPtr(false),
	}, 3*time.Second, NetworkInfo{Name: "proxied", Shared: true})
	require.NoError(t, err)

	assert.Equal(t, domain.ProcessorOnlineCurrency, e.Kind)
	assert.Equal(t, []string{"finance"}, e.Categories)
	assert.True(t, e.Paging)
	assert.Equal(t, time.Second, e.Timeout)
	assert.Equal(t, 2.0, e.Weight)
	assert.True(t, e.Disabled)
	assert.False(t, e.DisplayErrorMessages)
	assert.Equal(t, "network:proxied", e.SuspensionKey())
}

func TestBuildDefinitionWeight(t *testing.T) {
	e, err := Build(config.EngineConfig{Name: "dict", Engine: "dictionary"}, time.Second, NetworkInfo{})
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessorOnlineDictionary, e.Kind)
	assert.Equal(t, 100.0, e.Weight)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(config.EngineConfig{Name: "x", Engine: "gopher"}, time.Second, NetworkInfo{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownEngine))

	_, err = Build(config.EngineConfig{Name: "x", Engine: "json_api"}, time.Second, NetworkInfo{})
	assert.ErrorContains(t, err, "search_url")

	_, err = Build(config.EngineConfig{Name: "x", Engine: "bookmarks"}, time.Second, NetworkInfo{})
	assert.ErrorContains(t, err, "path")
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{"bookmarks", "currency", "dictionary", "html", "json_api", "searxng"}, Types())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessorsSearchThroughNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"items": [{"u": "https://go.dev/", "t": "Go `+r.URL.Query().Get("q")+`"}]}`)
		default:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Engines = []config.EngineConfig{
		{
			Name:      "api",
			Engine:    "json_api",
			SearchURL: srv.URL + "/api?q={query}",
			Options:   map[string]string{"results": "items", "url": "u", "title": "t"},
		},
		{
			Name:      "down",
			Engine:    "json_api",
			SearchURL: srv.URL + "/down?q={query}",
			Options:   map[string]string{"url": "u", "title": "t"},
		},
	}

	nets, err := network.NewRegistry(cfg.Outgoing, cfg.Engines, discardLogger())
	require.NoError(t, err)
	t.Cleanup(nets.Close)

	procs, err := Processors(cfg, nets, processor.Deps{Logger: discardLogger()}, discardLogger())
	require.NoError(t, err)
	require.Len(t, procs, 2)

	o := search.NewOrchestrator(procs, discardLogger())
	q, err := domain.NewSearchQuery(domain.SearchQuery{
		Query:      "gopher",
		EngineRefs: o.SelectEngines(nil, nil),
	})
	require.NoError(t, err)

	c := o.Search(context.Background(), q)
	results := c.OrderedResults()
	require.Len(t, results, 1)
	assert.Equal(t, "Go gopher", results[0].Title)
	assert.Equal(t, []string{"api"}, results[0].Engines)

	unresponsive := c.UnresponsiveEngines()
	require.Len(t, unresponsive, 1)
	assert.Equal(t, "down", unresponsive[0].Engine)
	assert.Equal(t, "HTTP error", unresponsive[0].Reason)
}
