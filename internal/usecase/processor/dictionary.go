package processor

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"metasearch/internal/domain"
)

var dictionaryQuery = regexp.MustCompile(`(?i)^.*?([a-z]+)-([a-z]+) ([^ ]+)$`)

// dictionaryLanguages are the ISO 639-1 codes accepted in "<from>-<to> <word>".
var dictionaryLanguages = []string{
	"af", "ar", "bg", "bn", "ca", "cs", "cy", "da", "de", "el", "en", "eo", "es", "et",
	"eu", "fa", "fi", "fr", "ga", "gl", "he", "hi", "hr", "hu", "hy", "id", "is", "it",
	"ja", "ka", "kk", "ko", "la", "lt", "lv", "mk", "ms", "mt", "nb", "nl", "nn", "no",
	"pl", "pt", "ro", "ru", "sk", "sl", "sq", "sr", "sv", "sw", "ta", "th", "tr", "uk",
	"ur", "uz", "vi", "zh",
}

var dictionaryLookup = buildDictionaryLookup()

// buildDictionaryLookup indexes the languages by code and by lower-cased
// English name.
func buildDictionaryLookup() map[string]domain.LangInfo {
	namer := display.English.Languages()
	lookup := make(map[string]domain.LangInfo, 2*len(dictionaryLanguages))
	for _, code := range dictionaryLanguages {
		b := language.MustParseBase(code)
		info := domain.LangInfo{Code: code, Name: strings.ToLower(namer.Name(b))}
		lookup[code] = info
		if info.Name != "" {
			lookup[info.Name] = info
		}
	}
	return lookup
}

// validLang resolves a two-letter code or an English language name.
func validLang(s string) (domain.LangInfo, bool) {
	info, ok := dictionaryLookup[strings.ToLower(s)]
	return info, ok
}

// Dictionary runs translation engines queried as "en-fr word".
type Dictionary struct {
	*Online
}

// NewDictionary creates a dictionary processor.
func NewDictionary(engine *domain.Engine, deps Deps, fetcher Fetcher, userAgent string) *Dictionary {
	return &Dictionary{Online: NewOnline(engine, deps, fetcher, userAgent)}
}

func (p *Dictionary) Kind() domain.ProcessorKind { return domain.ProcessorOnlineDictionary }

func (p *Dictionary) GetParams(q domain.SearchQuery, category string) *domain.RequestParams {
	params := p.Online.GetParams(q, category)
	if params == nil {
		return nil
	}
	m := dictionaryQuery.FindStringSubmatch(q.Query)
	if m == nil {
		return nil
	}
	from, ok := validLang(m[1])
	if !ok {
		return nil
	}
	to, ok := validLang(m[2])
	if !ok {
		return nil
	}
	params.FromLang = from
	params.ToLang = to
	params.Query = m[3]
	return params
}

func (p *Dictionary) DefaultTests() []domain.EngineTest {
	if p.engine.Paging {
		return []domain.EngineTest{
			{Name: "translation_paging", Query: "en-es house", PageNo: 1, Expect: []string{"not_empty"}},
			{Name: "translation_paging", Query: "en-es house", PageNo: 2, Expect: []string{"not_empty"}},
		}
	}
	return []domain.EngineTest{{Name: "translation", Query: "en-es house", PageNo: 1, Expect: []string{"not_empty"}}}
}
