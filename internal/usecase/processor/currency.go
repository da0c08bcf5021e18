package processor

import (
	_ "embed"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"metasearch/internal/domain"
)

var currencyQuery = regexp.MustCompile(`(?i)^.*?(\d+(?:\.\d+)?) ([^.0-9]+) (?:in|to) ([^.0-9]+)`)

//go:embed data/currencies.json
var currenciesJSON []byte

type currencyTable struct {
	Names   map[string]string `json:"names"`
	ISO4217 map[string]string `json:"iso4217"`
}

var currencies = loadCurrencies()

func loadCurrencies() currencyTable {
	var raw currencyTable
	if err := json.Unmarshal(currenciesJSON, &raw); err != nil {
		panic("processor: bad embedded currency table: " + err.Error())
	}
	t := currencyTable{
		Names:   make(map[string]string, len(raw.Names)),
		ISO4217: raw.ISO4217,
	}
	for name, code := range raw.Names {
		t.Names[normalizeCurrencyName(name)] = code
	}
	return t
}

var spaces = regexp.MustCompile(` +`)

// normalizeCurrencyName lower-cases, turns dashes into spaces, drops the
// plural "s", collapses spaces and applies NFKD.
func normalizeCurrencyName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.TrimRight(name, "s")
	name = spaces.ReplaceAllString(name, " ")
	return strings.ToLower(norm.NFKD.String(name))
}

// currencyCode maps a currency name or code to ISO 4217. Unknown names are
// passed through upper-cased.
func currencyCode(name string) string {
	n := normalizeCurrencyName(name)
	if code, ok := currencies.Names[n]; ok {
		return code
	}
	return strings.ToUpper(n)
}

// currencyName returns the English name of an ISO 4217 code, or the code.
func currencyName(code string) string {
	if name, ok := currencies.ISO4217[code]; ok {
		return name
	}
	return code
}

// Currency runs conversion engines queried as "10 usd in eur".
type Currency struct {
	*Online
}

// NewCurrency creates a currency processor.
func NewCurrency(engine *domain.Engine, deps Deps, fetcher Fetcher, userAgent string) *Currency {
	return &Currency{Online: NewOnline(engine, deps, fetcher, userAgent)}
}

func (p *Currency) Kind() domain.ProcessorKind { return domain.ProcessorOnlineCurrency }

func (p *Currency) GetParams(q domain.SearchQuery, category string) *domain.RequestParams {
	params := p.Online.GetParams(q, category)
	if params == nil {
		return nil
	}
	m := currencyQuery.FindStringSubmatch(q.Query)
	if m == nil {
		return nil
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	from := currencyCode(strings.TrimSpace(m[2]))
	to := currencyCode(strings.TrimSpace(m[3]))

	params.Amount = amount
	params.From = from
	params.To = to
	params.FromName = currencyName(from)
	params.ToName = currencyName(to)
	return params
}

func (p *Currency) DefaultTests() []domain.EngineTest {
	return []domain.EngineTest{{Name: "currency", Query: "1337 usd in eur", PageNo: 1, Expect: []string{"has_answer"}}}
}
