package engine

import (
	"errors"

	"github.com/tidwall/gjson"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

// JSONAPI reads results out of a JSON API using gjson paths.
//
// Options: results (path to the result list, empty for a top-level array),
// url, title, content, thumbnail, suggestions, number_of_results,
// title_html_to_text and content_html_to_text.
type JSONAPI struct {
	search searchURL

	resultsPath     string
	urlPath         string
	titlePath       string
	contentPath     string
	thumbnailPath   string
	suggestionsPath string
	numberPath      string
	titleHTML       bool
	contentHTML     bool
}

func newJSONAPI(cfg config.EngineConfig) (*JSONAPI, error) {
	s, err := newSearchURL(cfg.SearchURL, cfg.APIKey, cfg.Options)
	if err != nil {
		return nil, err
	}
	a := &JSONAPI{
		search:          s,
		resultsPath:     cfg.Options["results"],
		urlPath:         cfg.Options["url"],
		titlePath:       cfg.Options["title"],
		contentPath:     cfg.Options["content"],
		thumbnailPath:   cfg.Options["thumbnail"],
		suggestionsPath: cfg.Options["suggestions"],
		numberPath:      cfg.Options["number_of_results"],
		titleHTML:       optBool(cfg.Options, "title_html_to_text"),
		contentHTML:     optBool(cfg.Options, "content_html_to_text"),
	}
	if a.urlPath == "" || a.titlePath == "" {
		return nil, errors.New("options url and title are required")
	}
	return a, nil
}

func (a *JSONAPI) Request(query string, params *domain.RequestParams) error {
	params.URL = a.search.expand(query, params)
	setHeader(params, "Accept", "application/json")
	return nil
}

func (a *JSONAPI) Response(resp *domain.Response) ([]domain.Result, error) {
	if !gjson.ValidBytes(resp.Body) {
		return nil, errors.New("response is not valid JSON")
	}
	doc := gjson.ParseBytes(resp.Body)

	items := doc
	if a.resultsPath != "" {
		items = doc.Get(a.resultsPath)
	}

	var out []domain.Result
	items.ForEach(func(_, item gjson.Result) bool {
		u := item.Get(a.urlPath).String()
		title := item.Get(a.titlePath).String()
		if u == "" || title == "" {
			return true
		}
		r := domain.Result{URL: u, Title: title}
		if a.titleHTML {
			r.Title = htmlToText(r.Title)
		}
		if a.contentPath != "" {
			r.Content = item.Get(a.contentPath).String()
			if a.contentHTML {
				r.Content = htmlToText(r.Content)
			}
		}
		if a.thumbnailPath != "" {
			r.Thumbnail = item.Get(a.thumbnailPath).String()
		}
		out = append(out, r)
		return true
	})

	if a.suggestionsPath != "" {
		doc.Get(a.suggestionsPath).ForEach(func(_, s gjson.Result) bool {
			if v := s.String(); v != "" {
				out = append(out, domain.Result{Suggestion: v})
			}
			return true
		})
	}
	if a.numberPath != "" {
		if n := doc.Get(a.numberPath).Int(); n > 0 {
			out = append(out, domain.Result{NumberOfResults: int(n)})
		}
	}
	return out, nil
}
