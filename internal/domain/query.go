package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// EngineRef addresses an engine within a category.
type EngineRef struct {
	Name     string
	Category string
}

func (r EngineRef) String() string { return r.Name + "/" + r.Category }

// TimeRange restricts results to a recent period.
type TimeRange string

const (
	TimeRangeNone  TimeRange = ""
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
)

// Valid reports whether t is one of the known ranges.
func (t TimeRange) Valid() bool {
	switch t {
	case TimeRangeNone, TimeRangeDay, TimeRangeWeek, TimeRangeMonth, TimeRangeYear:
		return true
	}
	return false
}

// SafeSearch levels.
const (
	SafeSearchOff      = 0
	SafeSearchModerate = 1
	SafeSearchStrict   = 2
)

// SearchQuery is the resolved, read-only description of one search request.
// Build it with NewSearchQuery; processors must not modify it.
type SearchQuery struct {
	Query      string
	EngineRefs []EngineRef
	Lang       string
	SafeSearch int
	PageNo     int
	TimeRange  TimeRange
	// TimeoutLimit is the user timeout override; zero means unset.
	TimeoutLimit time.Duration
	ExternalBang string
	// EngineData holds per-engine carry-over values keyed by engine name.
	EngineData map[string]map[string]string
}

// NewSearchQuery validates in and returns a normalized copy: engine refs
// de-duplicated in order, page number defaulted to 1, maps and slices copied.
func NewSearchQuery(in SearchQuery) (SearchQuery, error) {
	out := in
	out.Query = strings.TrimSpace(in.Query)

	if in.SafeSearch < SafeSearchOff || in.SafeSearch > SafeSearchStrict {
		return SearchQuery{}, NewDomainError("NewSearchQuery", ErrInvalidInput,
			fmt.Sprintf("safesearch %d out of range", in.SafeSearch))
	}
	if in.PageNo == 0 {
		out.PageNo = 1
	}
	if out.PageNo < 1 {
		return SearchQuery{}, NewDomainError("NewSearchQuery", ErrInvalidInput,
			fmt.Sprintf("pageno %d must be >= 1", in.PageNo))
	}
	if !in.TimeRange.Valid() {
		return SearchQuery{}, NewDomainError("NewSearchQuery", ErrInvalidInput,
			fmt.Sprintf("unknown time range %q", in.TimeRange))
	}
	if in.TimeoutLimit < 0 {
		return SearchQuery{}, NewDomainError("NewSearchQuery", ErrInvalidInput, "negative timeout limit")
	}

	seen := make(map[EngineRef]struct{}, len(in.EngineRefs))
	out.EngineRefs = make([]EngineRef, 0, len(in.EngineRefs))
	for _, ref := range in.EngineRefs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out.EngineRefs = append(out.EngineRefs, ref)
	}

	out.EngineData = make(map[string]map[string]string, len(in.EngineData))
	for name, data := range in.EngineData {
		out.EngineData[name] = maps.Clone(data)
	}
	return out, nil
}

// EngineDataFor returns a copy of the carry-over values for one engine.
func (q SearchQuery) EngineDataFor(engine string) map[string]string {
	data := maps.Clone(q.EngineData[engine])
	if data == nil {
		data = map[string]string{}
	}
	return data
}
