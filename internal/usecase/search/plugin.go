package search

import (
	"context"

	"metasearch/internal/domain"
	"metasearch/internal/usecase/results"
)

// RequestInfo is what plugins may know about the client.
type RequestInfo struct {
	RemoteAddr string
	UserAgent  string
}

// Request is one search as seen by plugins. PreSearch hooks may rewrite Query.
type Request struct {
	Query     domain.SearchQuery
	Info      RequestInfo
	Container *results.Container
}

// Plugin hooks into a search. PreSearch returning false skips the engines;
// OnResult returning false drops the result.
type Plugin interface {
	Name() string
	PreSearch(ctx context.Context, req *Request) bool
	PostSearch(ctx context.Context, req *Request)
	OnResult(ctx context.Context, req *Request, r *domain.Result) bool
}

// SearchWithPlugins runs q between the plugins' hooks. Post-search hooks run
// even when a pre-search hook vetoed the search.
func (o *Orchestrator) SearchWithPlugins(ctx context.Context, q domain.SearchQuery, info RequestInfo, plugins []Plugin) *results.Container {
	req := &Request{Query: q, Info: info, Container: o.NewContainer()}

	proceed := true
	for _, p := range plugins {
		if !p.PreSearch(ctx, req) {
			o.logger.Debug("search vetoed by plugin", "plugin", p.Name())
			proceed = false
			break
		}
	}
	if proceed {
		o.searchInto(ctx, req.Query, req.Container)
	}

	for _, p := range plugins {
		p.PostSearch(ctx, req)
	}

	if len(plugins) > 0 {
		req.Container.FilterResults(func(r *domain.Result) bool {
			for _, p := range plugins {
				if !p.OnResult(ctx, req, r) {
					return false
				}
			}
			return true
		})
	}
	return req.Container
}
