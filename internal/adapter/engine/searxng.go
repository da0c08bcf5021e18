package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

// searxngResponse models the parts of a SearXNG JSON reply that are used.
type searxngResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		Engine        string `json:"engine"`
		Template      string `json:"template"`
		ImgSrc        string `json:"img_src"`
		Thumbnail     string `json:"thumbnail"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
	Answers         []json.RawMessage `json:"answers"`
	Suggestions     []string          `json:"suggestions"`
	Corrections     []string          `json:"corrections"`
	Infoboxes       []searxngInfobox  `json:"infoboxes"`
	NumberOfResults float64           `json:"number_of_results"`
}

type searxngInfobox struct {
	Infobox    string                    `json:"infobox"`
	ID         string                    `json:"id"`
	Content    string                    `json:"content"`
	ImgSrc     string                    `json:"img_src"`
	URLs       []domain.InfoboxURL       `json:"urls"`
	Attributes []domain.InfoboxAttribute `json:"attributes"`
}

// SearXNG forwards the query to another SearXNG instance and relays its
// results, answers, suggestions and infoboxes.
type SearXNG struct {
	instanceURL string
}

func newSearXNG(cfg config.EngineConfig) (*SearXNG, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("base_url: %w", err)
	}
	return &SearXNG{instanceURL: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

func (s *SearXNG) Request(query string, params *domain.RequestParams) error {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", strconv.Itoa(max(params.PageNo, 1)))
	q.Set("safesearch", strconv.Itoa(params.SafeSearch))
	if params.Category != "" {
		q.Set("categories", params.Category)
	}
	if params.Language != "" {
		q.Set("language", params.Language)
	}
	if params.TimeRange != domain.TimeRangeNone {
		q.Set("time_range", string(params.TimeRange))
	}
	params.URL = s.instanceURL + "/search?" + q.Encode()
	setHeader(params, "Accept", "application/json")
	return nil
}

func (s *SearXNG) Response(resp *domain.Response) ([]domain.Result, error) {
	var sr searxngResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	out := make([]domain.Result, 0, len(sr.Results)+len(sr.Suggestions))
	for _, r := range sr.Results {
		res := domain.Result{
			URL:       r.URL,
			Title:     r.Title,
			Content:   r.Content,
			Template:  r.Template,
			ImgSrc:    r.ImgSrc,
			Thumbnail: r.Thumbnail,
		}
		if r.Engine != "" {
			res.Extra = map[string]any{"upstream_engine": r.Engine}
		}
		if t, err := time.Parse(time.RFC3339, r.PublishedDate); err == nil {
			res.PublishedDate = &t
		}
		out = append(out, res)
	}

	for _, raw := range sr.Answers {
		if a := answerText(raw); a != "" {
			out = append(out, domain.Result{Answer: a})
		}
	}
	for _, sug := range sr.Suggestions {
		out = append(out, domain.Result{Suggestion: sug})
	}
	for _, c := range sr.Corrections {
		out = append(out, domain.Result{Correction: c})
	}
	for _, ib := range sr.Infoboxes {
		out = append(out, domain.Result{Infobox: &domain.Infobox{
			ID:         ib.ID,
			Name:       ib.Infobox,
			Content:    ib.Content,
			ImgSrc:     ib.ImgSrc,
			URLs:       ib.URLs,
			Attributes: ib.Attributes,
		}})
	}
	if sr.NumberOfResults > 0 {
		out = append(out, domain.Result{NumberOfResults: int(sr.NumberOfResults)})
	}
	return out, nil
}

// answerText accepts both plain string answers and {"answer": ...} objects.
func answerText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Answer
	}
	return ""
}
