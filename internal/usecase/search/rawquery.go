package search

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"metasearch/internal/domain"
)

// RawQuery is a query typed by a user with its inline modifiers parsed out:
// "<3" (timeout in seconds, or milliseconds from 100 up), ":de" (language),
// "!!g" (external bang) and "!name", "?name" (engine, shortcut or category).
type RawQuery struct {
	// Query is the text left once the modifiers are removed.
	Query        string
	EngineRefs   []domain.EngineRef
	Languages    []string
	TimeoutLimit time.Duration
	ExternalBang string
	// Specific is set when a "!" modifier selected engines; "?" adds them
	// without making the search specific.
	Specific bool
}

// ParseRawQuery splits raw into modifiers and query text. Tokens that look
// like modifiers but resolve to nothing stay in the query text.
func (o *Orchestrator) ParseRawQuery(raw string) RawQuery {
	var (
		rq   RawQuery
		text []string
	)
	for _, part := range strings.Fields(raw) {
		if !o.parseModifier(&rq, part) {
			text = append(text, part)
		}
	}
	rq.Query = strings.Join(text, " ")
	return rq
}

func (o *Orchestrator) parseModifier(rq *RawQuery, part string) bool {
	switch {
	case strings.HasPrefix(part, "<"):
		return parseTimeout(rq, part[1:])
	case strings.HasPrefix(part, ":"):
		return parseLanguage(rq, part[1:])
	case strings.HasPrefix(part, "!!"):
		return o.parseExternalBang(rq, part[2:])
	case strings.HasPrefix(part, "!"), strings.HasPrefix(part, "?"):
		found := o.parseEngineBang(rq, part[1:])
		if found && part[0] == '!' {
			rq.Specific = true
		}
		return found
	}
	return false
}

func parseTimeout(rq *RawQuery, value string) bool {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return false
	}
	if n < 100 {
		rq.TimeoutLimit = time.Duration(n) * time.Second
	} else {
		rq.TimeoutLimit = time.Duration(n) * time.Millisecond
	}
	return true
}

func parseLanguage(rq *RawQuery, value string) bool {
	if value == "" {
		return false
	}
	if strings.EqualFold(value, "all") {
		rq.Languages = append(rq.Languages, "all")
		return true
	}
	tag, err := language.Parse(value)
	if err != nil {
		return false
	}
	rq.Languages = append(rq.Languages, tag.String())
	return true
}

func (o *Orchestrator) parseExternalBang(rq *RawQuery, value string) bool {
	if value == "" || o.bangs == nil {
		return false
	}
	if _, ok := o.bangs.Resolve(value, ""); !ok {
		return false
	}
	rq.ExternalBang = value
	return true
}

func (o *Orchestrator) parseEngineBang(rq *RawQuery, value string) bool {
	if value == "" {
		return false
	}
	value = strings.ToLower(value)
	for _, name := range o.order {
		e := o.processors[name].Engine()
		if e.Shortcut == value {
			value = name
			break
		}
	}
	if p, ok := o.processors[value]; ok {
		if p.Engine().Disabled {
			return false
		}
		rq.EngineRefs = append(rq.EngineRefs, o.SelectEngines(nil, []string{value})...)
		return true
	}
	refs := o.SelectEngines([]string{value}, nil)
	if len(refs) == 0 {
		return false
	}
	rq.EngineRefs = append(rq.EngineRefs, refs...)
	return true
}
