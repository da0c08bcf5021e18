package engine

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

// HTML scrapes a result page with CSS selectors.
//
// Options: results (selector of one result block), url (selector inside the
// block whose href is taken, empty for the block itself), title, content,
// thumbnail (its src is taken) and suggestion (selector over the page).
type HTML struct {
	search searchURL

	results    string
	url        string
	title      string
	content    string
	thumbnail  string
	suggestion string
}

func newHTML(cfg config.EngineConfig) (*HTML, error) {
	s, err := newSearchURL(cfg.SearchURL, cfg.APIKey, cfg.Options)
	if err != nil {
		return nil, err
	}
	h := &HTML{
		search:     s,
		results:    cfg.Options["results"],
		url:        cfg.Options["url"],
		title:      cfg.Options["title"],
		content:    cfg.Options["content"],
		thumbnail:  cfg.Options["thumbnail"],
		suggestion: cfg.Options["suggestion"],
	}
	if h.results == "" || h.title == "" {
		return nil, errors.New("options results and title are required")
	}
	return h, nil
}

func (h *HTML) Request(query string, params *domain.RequestParams) error {
	params.URL = h.search.expand(query, params)
	setHeader(params, "Accept", "text/html,application/xhtml+xml")
	return nil
}

func (h *HTML) Response(resp *domain.Response) ([]domain.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []domain.Result
	doc.Find(h.results).Each(func(_ int, s *goquery.Selection) {
		link := s
		if h.url != "" {
			link = s.Find(h.url).First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		r := domain.Result{
			URL:   resolve(resp.URL, href),
			Title: collapse(s.Find(h.title).First().Text()),
		}
		if h.content != "" {
			r.Content = collapse(s.Find(h.content).First().Text())
		}
		if h.thumbnail != "" {
			if src, ok := s.Find(h.thumbnail).First().Attr("src"); ok {
				r.Thumbnail = resolve(resp.URL, src)
			}
		}
		out = append(out, r)
	})

	if h.suggestion != "" {
		doc.Find(h.suggestion).Each(func(_ int, s *goquery.Selection) {
			if v := collapse(s.Text()); v != "" {
				out = append(out, domain.Result{Suggestion: v})
			}
		})
	}
	return out, nil
}
