package httpapi

import (
	"metasearch/internal/domain"
	"metasearch/internal/usecase/results"
)

type timing struct {
	Engine string  `json:"engine"`
	Total  float64 `json:"total"`
	Load   float64 `json:"load"`
}

type searchResponse struct {
	Query               string                       `json:"query"`
	SearchID            string                       `json:"search_id"`
	NumberOfResults     int                          `json:"number_of_results"`
	Results             []domain.Result              `json:"results"`
	Answers             []domain.Result              `json:"answers"`
	Corrections         []string                     `json:"corrections"`
	Infoboxes           []domain.Infobox             `json:"infoboxes"`
	Suggestions         []string                     `json:"suggestions"`
	UnresponsiveEngines []results.UnresponsiveEngine `json:"unresponsive_engines"`
	EngineData          map[string]map[string]string `json:"engine_data"`
	Timings             []timing                     `json:"timings"`
	RedirectURL         string                       `json:"redirect_url,omitempty"`
	Paging              bool                         `json:"paging"`
}

// newSearchResponse renders a container. Empty lists are encoded as [] so
// clients never see null.
func newSearchResponse(q domain.SearchQuery, searchID string, c *results.Container) searchResponse {
	resp := searchResponse{
		Query:               q.Query,
		SearchID:            searchID,
		NumberOfResults:     c.NumberOfResults(),
		Results:             orEmpty(c.OrderedResults()),
		Answers:             orEmpty(c.Answers()),
		Corrections:         orEmpty(c.Corrections()),
		Infoboxes:           orEmpty(c.Infoboxes()),
		Suggestions:         orEmpty(c.Suggestions()),
		UnresponsiveEngines: orEmpty(c.UnresponsiveEngines()),
		EngineData:          c.EngineData(),
		Timings:             []timing{},
		RedirectURL:         c.RedirectURL(),
		Paging:              c.Paging(),
	}
	for _, t := range c.Timings() {
		resp.Timings = append(resp.Timings, timing{
			Engine: t.Engine,
			Total:  t.Total.Seconds(),
			Load:   t.HTTP.Seconds(),
		})
	}
	return resp
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
