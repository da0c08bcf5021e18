package search

import (
	"slices"

	"metasearch/internal/domain"
)

// DefaultCategory is searched when a request names no category or engine.
const DefaultCategory = "general"

// SelectEngines builds the engine references for a request. Named engines
// win over categories; an engine named but unknown or disabled is ignored.
// Engines are addressed in their first category when named directly.
func (o *Orchestrator) SelectEngines(categories, engines []string) []domain.EngineRef {
	var refs []domain.EngineRef
	if len(engines) > 0 {
		for _, name := range engines {
			p, ok := o.processors[name]
			if !ok || p.Engine().Disabled {
				continue
			}
			cat := DefaultCategory
			if cs := p.Engine().Categories; len(cs) > 0 {
				cat = cs[0]
			}
			for _, c := range categories {
				if p.Engine().InCategory(c) {
					cat = c
					break
				}
			}
			refs = append(refs, domain.EngineRef{Name: name, Category: cat})
		}
		return refs
	}

	if len(categories) == 0 {
		categories = []string{DefaultCategory}
	}
	names := slices.Clone(o.order)
	slices.Sort(names)
	for _, c := range categories {
		for _, name := range names {
			e := o.processors[name].Engine()
			if !e.Disabled && e.InCategory(c) {
				refs = append(refs, domain.EngineRef{Name: name, Category: c})
			}
		}
	}
	return refs
}

// Categories lists the categories served by enabled engines.
func (o *Orchestrator) Categories() []string {
	var out []string
	for _, name := range o.order {
		e := o.processors[name].Engine()
		if e.Disabled {
			continue
		}
		for _, c := range e.Categories {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	slices.Sort(out)
	return out
}
