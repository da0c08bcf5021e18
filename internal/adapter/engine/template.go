package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"metasearch/internal/domain"
)

// timeRangeHours is the default value substituted for {time_range_val}.
var timeRangeHours = map[domain.TimeRange]int{
	domain.TimeRangeDay:   24,
	domain.TimeRangeWeek:  24 * 7,
	domain.TimeRangeMonth: 24 * 30,
	domain.TimeRangeYear:  24 * 365,
}

// searchURL expands a configured search URL. Recognised placeholders:
// {query}, {pageno}, {lang}, {time_range}, {safe_search} and {api_key}.
type searchURL struct {
	raw    string
	apiKey string

	// pageSize and firstPage convert 1-based pages into upstream offsets.
	pageSize  int
	firstPage int

	// timeRangeURL is appended in place of {time_range} when a range is
	// requested; {time_range_val} inside it comes from timeRangeMap.
	timeRangeURL string
	timeRangeMap map[domain.TimeRange]string

	safeSearchMap map[int]string
	langAll       string
}

func newSearchURL(raw, apiKey string, opts map[string]string) (searchURL, error) {
	if raw == "" {
		return searchURL{}, fmt.Errorf("search_url is required")
	}
	s := searchURL{
		raw:          raw,
		apiKey:       apiKey,
		pageSize:     1,
		firstPage:    1,
		timeRangeURL: opts["time_range_url"],
		langAll:      optString(opts, "lang_all", "en"),
	}

	var err error
	if s.pageSize, err = optInt(opts, "page_size", 1); err != nil {
		return searchURL{}, err
	}
	if s.firstPage, err = optInt(opts, "first_page_num", 1); err != nil {
		return searchURL{}, err
	}
	if s.pageSize < 1 {
		return searchURL{}, fmt.Errorf("page_size must be >= 1")
	}

	s.timeRangeMap = make(map[domain.TimeRange]string, len(timeRangeHours))
	for tr, hours := range timeRangeHours {
		s.timeRangeMap[tr] = optString(opts, "time_range_"+string(tr), strconv.Itoa(hours))
	}
	s.safeSearchMap = map[int]string{
		domain.SafeSearchOff:      opts["safe_search_0"],
		domain.SafeSearchModerate: opts["safe_search_1"],
		domain.SafeSearchStrict:   opts["safe_search_2"],
	}
	return s, nil
}

func (s searchURL) page(pageno int) int {
	return (max(pageno, 1)-1)*s.pageSize + s.firstPage
}

func (s searchURL) expand(query string, p *domain.RequestParams) string {
	lang := p.Language
	if lang == "" || lang == "all" {
		lang = s.langAll
	}
	var timeRange string
	if p.TimeRange != domain.TimeRangeNone && s.timeRangeURL != "" {
		timeRange = strings.ReplaceAll(s.timeRangeURL, "{time_range_val}", s.timeRangeMap[p.TimeRange])
	}
	return strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{pageno}", strconv.Itoa(s.page(p.PageNo)),
		"{lang}", url.QueryEscape(lang),
		"{time_range}", timeRange,
		"{safe_search}", s.safeSearchMap[p.SafeSearch],
		"{api_key}", url.QueryEscape(s.apiKey),
	).Replace(s.raw)
}

func optString(opts map[string]string, key, def string) string {
	if v, ok := opts[key]; ok && v != "" {
		return v
	}
	return def
}

func optInt(opts map[string]string, key string, def int) (int, error) {
	v, ok := opts[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return n, nil
}

func optBool(opts map[string]string, key string) bool {
	b, _ := strconv.ParseBool(opts[key])
	return b
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// htmlToText drops markup and collapses whitespace.
func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return collapse(doc.Text())
}

// resolve makes ref absolute against the response URL.
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil || ref == "" {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func setHeader(p *domain.RequestParams, key, value string) {
	if p.Headers == nil {
		p.Headers = make(map[string][]string)
	}
	p.Headers.Set(key, value)
}
