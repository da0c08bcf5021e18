package domain

import (
	"context"
	"time"
)

// ProcessorKind selects how an engine is executed.
type ProcessorKind string

const (
	ProcessorOnline           ProcessorKind = "online"
	ProcessorOffline          ProcessorKind = "offline"
	ProcessorOnlineDictionary ProcessorKind = "online_dictionary"
	ProcessorOnlineCurrency   ProcessorKind = "online_currency"
)

// Valid reports whether k names a known processor.
func (k ProcessorKind) Valid() bool {
	switch k {
	case ProcessorOnline, ProcessorOffline, ProcessorOnlineDictionary, ProcessorOnlineCurrency:
		return true
	}
	return false
}

// OnlineAdapter turns a query into an HTTP request and parses the reply.
// Response may return an error; the processor classifies it.
type OnlineAdapter interface {
	Request(query string, params *RequestParams) error
	Response(resp *Response) ([]Result, error)
}

// OfflineAdapter answers from local data without network access.
type OfflineAdapter interface {
	Search(ctx context.Context, query string, params *RequestParams) ([]Result, error)
}

// EngineTest is one checker self-test.
type EngineTest struct {
	Name   string
	Query  string
	PageNo int
	Lang   string
	// Expect lists container assertions: "not_empty", "has_answer", "has_infobox".
	Expect []string
}

// Engine is one configured upstream provider plus its adapter.
type Engine struct {
	Name       string
	Shortcut   string
	Kind       ProcessorKind
	Categories []string

	Paging           bool
	LanguageSupport  bool
	TimeRangeSupport bool
	SafeSearch       bool
	Timeout          time.Duration
	Weight           float64
	Disabled         bool
	// Language forces the request language regardless of the query.
	Language                 string
	DisplayErrorMessages     bool
	SendAcceptLanguageHeader bool
	MaxRedirects             int
	SoftMaxRedirects         int
	// Network names the network this engine sends through. Engines that
	// name a shared network also share its suspension state.
	Network       string
	SharedNetwork bool

	// Tests, when set, replace the default checker tests of the processor
	// kind. AdditionalTests extend the defaults instead.
	Tests           []EngineTest
	AdditionalTests []EngineTest

	Online  OnlineAdapter
	Offline OfflineAdapter
}

// EffectiveWeight returns Weight, defaulting to 1.
func (e *Engine) EffectiveWeight() float64 {
	if e.Weight <= 0 {
		return 1
	}
	return e.Weight
}

// SuspensionKey identifies the suspension state this engine uses.
func (e *Engine) SuspensionKey() string {
	if e.SharedNetwork && e.Network != "" {
		return "network:" + e.Network
	}
	return e.Name
}

// InCategory reports whether the engine serves category c.
func (e *Engine) InCategory(c string) bool {
	for _, cat := range e.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// AnswererInfo describes an answerer for help output.
type AnswererInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

// Answerer produces instant answers for queries starting with one of its keywords.
type Answerer interface {
	Keywords() []string
	Answer(q SearchQuery) []Result
	Info() AnswererInfo
}
