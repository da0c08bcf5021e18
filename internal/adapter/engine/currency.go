package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

const defaultCurrencyURL = "https://duckduckgo.com/js/spice/currency/1/{from}/{to}"

// Currency converts amounts with a JSONP rate service. The reply wraps a
// JSON object whose conversion.converted-amount is the rate for one unit.
type Currency struct {
	searchURL string
	ratePath  string
}

func newCurrency(cfg config.EngineConfig) (*Currency, error) {
	c := &Currency{
		searchURL: cfg.SearchURL,
		ratePath:  optString(cfg.Options, "rate", "conversion.converted-amount"),
	}
	if c.searchURL == "" {
		c.searchURL = defaultCurrencyURL
	}
	return c, nil
}

func (c *Currency) Request(_ string, params *domain.RequestParams) error {
	params.URL = strings.NewReplacer("{from}", params.From, "{to}", params.To).Replace(c.searchURL)
	return nil
}

func (c *Currency) Response(resp *domain.Response) ([]domain.Result, error) {
	p := resp.Params
	if p == nil {
		return nil, errors.New("response without request parameters")
	}
	body := unwrapJSONP(resp.Body)
	if !gjson.ValidBytes(body) {
		return nil, nil
	}
	rate := gjson.GetBytes(body, c.ratePath).Float()
	if rate <= 0 {
		return nil, nil
	}

	answer := fmt.Sprintf("%s %s = %s %s, 1 %s (%s) = %s %s (%s)",
		formatAmount(p.Amount), p.From,
		formatAmount(p.Amount*rate), p.To,
		p.From, p.FromName,
		formatAmount(rate), p.To, p.ToName,
	)
	u := strings.NewReplacer("{from}", strings.ToUpper(p.From), "{to}", p.To).Replace(c.searchURL)
	return []domain.Result{{Answer: answer, URL: u}}, nil
}

// unwrapJSONP strips a "callback(...);" envelope when there is one.
func unwrapJSONP(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && (b[0] == '{' || b[0] == '[') {
		return b
	}
	start := bytes.IndexByte(b, '(')
	end := bytes.LastIndexByte(b, ')')
	if start < 0 || end <= start {
		return b
	}
	return bytes.TrimSpace(b[start+1 : end])
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
