// Package engine holds the built-in engine adapters and builds engines and
// their processors from configuration.
package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"metasearch/internal/adapter/network"
	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
	"metasearch/internal/usecase/processor"
)

// Definition describes one adapter type and the capabilities its engines
// have unless the engine configuration says otherwise.
type Definition struct {
	Processor  domain.ProcessorKind
	Categories []string
	Paging     bool
	TimeRange  bool
	Language   bool
	SafeSearch bool
	Weight     float64

	newOnline  func(cfg config.EngineConfig) (domain.OnlineAdapter, error)
	newOffline func(cfg config.EngineConfig) (domain.OfflineAdapter, error)
}

func online[T domain.OnlineAdapter](f func(config.EngineConfig) (T, error)) func(config.EngineConfig) (domain.OnlineAdapter, error) {
	return func(cfg config.EngineConfig) (domain.OnlineAdapter, error) {
		a, err := f(cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func offline[T domain.OfflineAdapter](f func(config.EngineConfig) (T, error)) func(config.EngineConfig) (domain.OfflineAdapter, error) {
	return func(cfg config.EngineConfig) (domain.OfflineAdapter, error) {
		a, err := f(cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

var definitions = map[string]Definition{
	"json_api": {
		Processor:  domain.ProcessorOnline,
		Categories: []string{"general"},
		newOnline:  online(newJSONAPI),
	},
	"html": {
		Processor:  domain.ProcessorOnline,
		Categories: []string{"general"},
		newOnline:  online(newHTML),
	},
	"searxng": {
		Processor:  domain.ProcessorOnline,
		Categories: []string{"general"},
		Paging:     true,
		TimeRange:  true,
		Language:   true,
		SafeSearch: true,
		newOnline:  online(newSearXNG),
	},
	"currency": {
		Processor:  domain.ProcessorOnlineCurrency,
		Categories: []string{"general"},
		Weight:     100,
		newOnline:  online(newCurrency),
	},
	"dictionary": {
		Processor:  domain.ProcessorOnlineDictionary,
		Categories: []string{"general"},
		Weight:     100,
		newOnline:  online(newDictionary),
	},
	"bookmarks": {
		Processor:  domain.ProcessorOffline,
		Categories: []string{"general"},
		Paging:     true,
		newOffline: offline(newBookmarks),
	},
}

// Types lists the adapter types that can be configured, sorted.
func Types() []string {
	types := make([]string, 0, len(definitions))
	for t := range definitions {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// NetworkInfo is what an engine needs to know about the network it uses.
type NetworkInfo struct {
	Name   string
	Shared bool
	// ExtraTimeout is added to the engine timeout (Tor networks).
	ExtraTimeout time.Duration
}

// Build turns one engine configuration into an engine with its adapter.
func Build(cfg config.EngineConfig, defaultTimeout time.Duration, net NetworkInfo) (*domain.Engine, error) {
	def, ok := definitions[cfg.Engine]
	if !ok {
		return nil, domain.NewSubSystemError("engine", "engine.Build", domain.ErrUnknownEngine,
			fmt.Sprintf("%s: %q", cfg.Name, cfg.Engine))
	}

	e := &domain.Engine{
		Name:                     cfg.Name,
		Shortcut:                 cfg.Shortcut,
		Kind:                     def.Processor,
		Categories:               slices.Clone(def.Categories),
		Paging:                   boolOr(cfg.Paging, def.Paging),
		LanguageSupport:          boolOr(cfg.LanguageSupport, def.Language),
		TimeRangeSupport:         boolOr(cfg.TimeRangeSupport, def.TimeRange),
		SafeSearch:               boolOr(cfg.SafeSearch, def.SafeSearch),
		Timeout:                  cfg.Timeout,
		Weight:                   cfg.Weight,
		Disabled:                 cfg.Disabled,
		Language:                 cfg.Language,
		DisplayErrorMessages:     boolOr(cfg.DisplayErrorMessages, true),
		SendAcceptLanguageHeader: cfg.SendAcceptLanguageHeader,
		MaxRedirects:             cfg.MaxRedirects,
		SoftMaxRedirects:         cfg.SoftMaxRedirects,
		Network:                  net.Name,
		SharedNetwork:            net.Shared,
	}
	if cfg.Processor != "" {
		e.Kind = domain.ProcessorKind(cfg.Processor)
	}
	if len(cfg.Categories) > 0 {
		e.Categories = slices.Clone(cfg.Categories)
	}
	if e.Timeout <= 0 {
		e.Timeout = defaultTimeout
	}
	e.Timeout += net.ExtraTimeout
	if e.Weight <= 0 {
		e.Weight = def.Weight
	}
	e.Tests = engineTests(cfg.Tests)
	e.AdditionalTests = engineTests(cfg.AdditionalTests)

	var err error
	switch {
	case def.newOnline != nil:
		e.Online, err = def.newOnline(cfg)
	case def.newOffline != nil:
		e.Offline, err = def.newOffline(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("engine %s (%s): %w", cfg.Name, cfg.Engine, err)
	}
	return e, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Processors builds a processor for every configured engine, disabled ones
// included; engine selection skips those.
func Processors(cfg *config.Config, nets *network.Registry, deps processor.Deps, logger *slog.Logger) ([]processor.Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	procs := make([]processor.Processor, 0, len(cfg.Engines))
	for _, ec := range cfg.Engines {
		n := nets.ForEngine(ec.Name)
		info := NetworkInfo{
			Name:         nets.NetworkName(ec.Name),
			Shared:       ec.Network.Ref != "",
			ExtraTimeout: n.ExtraTimeout(),
		}
		e, err := Build(ec, cfg.Outgoing.RequestTimeout, info)
		if err != nil {
			return nil, err
		}
		p, err := processor.New(e, deps, n, cfg.Outgoing.UserAgent)
		if err != nil {
			return nil, err
		}
		logger.Debug("engine loaded", "engine", e.Name, "type", ec.Engine, "processor", p.Kind(),
			"network", info.Name, "timeout", e.Timeout)
		procs = append(procs, p)
	}
	return procs, nil
}

func engineTests(cfgs []config.EngineTestConfig) []domain.EngineTest {
	var tests []domain.EngineTest
	for _, t := range cfgs {
		tests = append(tests, domain.EngineTest{
			Name:   t.Name,
			Query:  t.Query,
			PageNo: t.PageNo,
			Lang:   t.Lang,
			Expect: slices.Clone(t.ResultContainer),
		})
	}
	return tests
}
