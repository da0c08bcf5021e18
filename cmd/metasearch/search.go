package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"metasearch/internal/domain"
	"metasearch/internal/usecase/search"
)

type searchOptions struct {
	engines    []string
	categories []string
	pageno     int
	lang       string
	safeSearch int
	timeRange  string
	timeout    time.Duration
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search and print the results as JSON",
		Long: `Run one search against the configured engines and print the merged
results as JSON. The query accepts the same modifiers as the API:

  metasearch search golang generics
  metasearch search '!wp :de Berlin'
  metasearch search --categories images --timeout 2s cats`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd.OutOrStdout(), global, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.engines, "engines", "e", nil, "Engines to query (comma separated)")
	cmd.Flags().StringSliceVar(&opts.categories, "categories", nil, "Categories to query (comma separated)")
	cmd.Flags().IntVarP(&opts.pageno, "pageno", "p", 1, "Result page")
	cmd.Flags().StringVarP(&opts.lang, "lang", "l", "", "Search language (default from config)")
	cmd.Flags().IntVar(&opts.safeSearch, "safesearch", -1, "Safe search level 0-2 (default from config)")
	cmd.Flags().StringVar(&opts.timeRange, "time-range", "", "Restrict to day, week, month or year")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Override the request time budget")
	return cmd
}

type cliResult struct {
	Query               string                       `json:"query"`
	NumberOfResults     int                          `json:"number_of_results"`
	Results             []domain.Result              `json:"results"`
	Answers             []domain.Result              `json:"answers,omitempty"`
	Suggestions         []string                     `json:"suggestions,omitempty"`
	Corrections         []string                     `json:"corrections,omitempty"`
	Infoboxes           []domain.Infobox             `json:"infoboxes,omitempty"`
	UnresponsiveEngines any                          `json:"unresponsive_engines,omitempty"`
	EngineData          map[string]map[string]string `json:"engine_data,omitempty"`
	RedirectURL         string                       `json:"redirect_url,omitempty"`
}

func runSearch(ctx context.Context, out io.Writer, global *globalOptions, raw string, opts searchOptions) error {
	a, err := newApp(ctx, global)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := buildQuery(a.orchestrator, raw, opts, a.cfg.Search.DefaultLanguage, a.cfg.Search.SafeSearch)
	if err != nil {
		return err
	}

	c := a.plugins.Search(ctx, a.orchestrator, q, search.RequestInfo{UserAgent: "metasearch-cli"})
	res := cliResult{
		Query:           q.Query,
		NumberOfResults: c.NumberOfResults(),
		Results:         c.OrderedResults(),
		Answers:         c.Answers(),
		Suggestions:     c.Suggestions(),
		Corrections:     c.Corrections(),
		Infoboxes:       c.Infoboxes(),
		EngineData:      c.EngineData(),
		RedirectURL:     c.RedirectURL(),
	}
	if res.Results == nil {
		res.Results = []domain.Result{}
	}
	if u := c.UnresponsiveEngines(); len(u) > 0 {
		res.UnresponsiveEngines = u
	}
	if len(res.EngineData) == 0 {
		res.EngineData = nil
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// buildQuery applies the raw query modifiers, then the flags.
func buildQuery(o *search.Orchestrator, raw string, opts searchOptions, defaultLang string, defaultSafeSearch int) (domain.SearchQuery, error) {
	rq := o.ParseRawQuery(raw)
	if rq.Query == "" && rq.ExternalBang == "" {
		return domain.SearchQuery{}, domain.NewDomainError("search", domain.ErrEmptyQuery, "")
	}

	refs := rq.EngineRefs
	if !rq.Specific {
		refs = append(refs, o.SelectEngines(opts.categories, opts.engines)...)
	}
	if len(refs) == 0 && rq.ExternalBang == "" {
		return domain.SearchQuery{}, domain.NewDomainError("search", domain.ErrNoEngines, "no enabled engine matches the request")
	}

	q := domain.SearchQuery{
		Query:        rq.Query,
		EngineRefs:   refs,
		Lang:         defaultLang,
		SafeSearch:   defaultSafeSearch,
		PageNo:       opts.pageno,
		TimeRange:    domain.TimeRange(opts.timeRange),
		TimeoutLimit: rq.TimeoutLimit,
		ExternalBang: rq.ExternalBang,
	}
	if len(rq.Languages) > 0 {
		q.Lang = rq.Languages[0]
	} else if opts.lang != "" {
		q.Lang = opts.lang
	}
	if opts.safeSearch >= 0 {
		q.SafeSearch = opts.safeSearch
	}
	if opts.timeout > 0 && q.TimeoutLimit == 0 {
		q.TimeoutLimit = opts.timeout
	}
	return domain.NewSearchQuery(q)
}
