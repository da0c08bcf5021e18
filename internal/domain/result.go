package domain

import (
	"net/url"
	"time"
)

// ResultKind tells the aggregator how to file a Result.
type ResultKind int

const (
	KindStandard ResultKind = iota
	KindAnswer
	KindSuggestion
	KindCorrection
	KindInfobox
	KindNumberOfResults
	KindEngineData
)

// Result is one item produced by an engine adapter. Exactly one of the
// non-standard fields (Suggestion, Answer, Correction, Infobox,
// NumberOfResults, EngineDataKey) marks a non-standard result; otherwise
// URL and Title are required.
type Result struct {
	URL           string         `json:"url,omitempty"`
	Title         string         `json:"title,omitempty"`
	Content       string         `json:"content,omitempty"`
	Template      string         `json:"template,omitempty"`
	PublishedDate *time.Time     `json:"publishedDate,omitempty"`
	ImgSrc        string         `json:"img_src,omitempty"`
	Thumbnail     string         `json:"thumbnail,omitempty"`
	Category      string         `json:"category,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`

	Answer          string   `json:"answer,omitempty"`
	Suggestion      string   `json:"suggestion,omitempty"`
	Correction      string   `json:"correction,omitempty"`
	Infobox         *Infobox `json:"-"`
	NumberOfResults int      `json:"-"`
	EngineDataKey   string   `json:"-"`
	EngineDataValue string   `json:"-"`

	// Set by the aggregator.
	Engine    string   `json:"engine,omitempty"`
	Engines   []string `json:"engines,omitempty"`
	Score     float64  `json:"score,omitempty"`
	ParsedURL *url.URL `json:"-"`
}

// Kind classifies the result.
func (r *Result) Kind() ResultKind {
	switch {
	case r.Suggestion != "":
		return KindSuggestion
	case r.Answer != "":
		return KindAnswer
	case r.Correction != "":
		return KindCorrection
	case r.Infobox != nil:
		return KindInfobox
	case r.NumberOfResults > 0:
		return KindNumberOfResults
	case r.EngineDataKey != "":
		return KindEngineData
	default:
		return KindStandard
	}
}

// InfoboxURL is a link shown inside an infobox.
type InfoboxURL struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Official bool   `json:"official,omitempty"`
}

// InfoboxAttribute is a labelled fact inside an infobox.
type InfoboxAttribute struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Entity string `json:"entity,omitempty"`
}

// Infobox is a summary card about the query subject.
type Infobox struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"infobox"`
	Content    string             `json:"content,omitempty"`
	ImgSrc     string             `json:"img_src,omitempty"`
	URLs       []InfoboxURL       `json:"urls,omitempty"`
	Attributes []InfoboxAttribute `json:"attributes,omitempty"`
	Engine     string             `json:"engine,omitempty"`
	Engines    []string           `json:"engines,omitempty"`
}
