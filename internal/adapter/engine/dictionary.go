package engine

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

const defaultDictionaryURL = "https://dictzone.com/{from_lang}-{to_lang}-dictionary/{query}"

// Dictionary looks a word up on a dictzone-style translation page: a table
// whose rows hold the source word and a list of linked translations.
type Dictionary struct {
	searchURL string
	rows      string
}

func newDictionary(cfg config.EngineConfig) (*Dictionary, error) {
	d := &Dictionary{
		searchURL: cfg.SearchURL,
		rows:      optString(cfg.Options, "rows", "table#r tr"),
	}
	if d.searchURL == "" {
		d.searchURL = defaultDictionaryURL
	}
	return d, nil
}

func (d *Dictionary) Request(_ string, params *domain.RequestParams) error {
	params.URL = strings.NewReplacer(
		"{from_lang}", url.PathEscape(params.FromLang.Name),
		"{to_lang}", url.PathEscape(params.ToLang.Name),
		"{from_code}", params.FromLang.Code,
		"{to_code}", params.ToLang.Code,
		"{query}", url.PathEscape(params.Query),
	).Replace(d.searchURL)
	return nil
}

func (d *Dictionary) Response(resp *domain.Response) ([]domain.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	rows := doc.Find(d.rows)
	if rows.Length() < 2 {
		return nil, nil
	}

	var out []domain.Result
	// The first row is the table header.
	rows.Slice(1, goquery.ToEnd).Each(func(i int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() != 2 {
			return
		}
		var translations []string
		cells.Eq(1).Find("p a").Each(func(_ int, a *goquery.Selection) {
			if t := strings.TrimSpace(a.Text()); t != "" {
				translations = append(translations, t)
			}
		})
		out = append(out, domain.Result{
			URL:     resolve(resp.URL, fmt.Sprintf("?%d", i)),
			Title:   collapse(cells.Eq(0).Text()),
			Content: strings.Join(translations, "; "),
		})
	})
	return out, nil
}
