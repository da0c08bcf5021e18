// Package answerer holds the keyword answerers that reply to a query
// without asking any engine.
package answerer

import (
	"strings"

	"metasearch/internal/domain"
)

// Registry dispatches a query to the answerers registered for its first word.
type Registry struct {
	byKeyword map[string][]domain.Answerer
	all       []domain.Answerer
}

// NewRegistry indexes answerers by keyword, in the given order.
func NewRegistry(answerers ...domain.Answerer) *Registry {
	r := &Registry{byKeyword: make(map[string][]domain.Answerer)}
	for _, a := range answerers {
		r.all = append(r.all, a)
		for _, kw := range a.Keywords() {
			r.byKeyword[kw] = append(r.byKeyword[kw], a)
		}
	}
	return r
}

// Default returns a registry with the built-in answerers.
func Default() *Registry {
	return NewRegistry(NewRandom(nil), Statistics{})
}

// Ask collects the answers of every answerer registered for the query's
// first word.
func (r *Registry) Ask(q domain.SearchQuery) []domain.Result {
	parts := strings.Fields(q.Query)
	if len(parts) == 0 {
		return nil
	}
	var out []domain.Result
	for _, a := range r.byKeyword[parts[0]] {
		out = append(out, a.Answer(q)...)
	}
	return out
}

// Infos describes the registered answerers.
func (r *Registry) Infos() []domain.AnswererInfo {
	infos := make([]domain.AnswererInfo, 0, len(r.all))
	for _, a := range r.all {
		infos = append(infos, a.Info())
	}
	return infos
}
