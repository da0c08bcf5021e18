package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"metasearch/internal/adapter/answerer"
	"metasearch/internal/adapter/bang"
	"metasearch/internal/adapter/engine"
	"metasearch/internal/adapter/network"
	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
	"metasearch/internal/infra/logger"
	"metasearch/internal/infra/metrics"
	"metasearch/internal/infra/tracer"
	"metasearch/internal/plugin"
	"metasearch/internal/usecase/checker"
	"metasearch/internal/usecase/processor"
	"metasearch/internal/usecase/search"
)

// app holds the components shared by every command.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	networks     *network.Registry
	metrics      *metrics.Metrics
	processors   []processor.Processor
	orchestrator *search.Orchestrator
	answerers    *answerer.Registry
	plugins      *plugin.Manager

	closers []func() error
}

// newApp loads the configuration and builds the search stack.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logger.Level = opts.logLevel
	}

	a := &app{cfg: cfg}

	// 1. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.logger = log
	a.closers = append(a.closers, logCloser)

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() error { return tracerShutdown(context.WithoutCancel(ctx)) })

	// 2. Networks
	a.networks, err = network.NewRegistry(cfg.Outgoing, cfg.Engines, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("networks: %w", err)
	}
	a.closers = append(a.closers, func() error { a.networks.Close(); return nil })
	if err := a.networks.CheckTor(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("tor: %w", err)
	}

	// 3. Engines
	a.metrics = metrics.New(true)
	suspensions := processor.NewSuspensionRegistry(processor.SuspensionPolicy{
		BanTimeOnFail:    cfg.Search.BanTimeOnFail,
		MaxBanTimeOnFail: cfg.Search.MaxBanTimeOnFail,
		KindDefaults: map[domain.ErrorKind]time.Duration{
			domain.KindAccessDenied:    cfg.Search.SuspendedTimes.AccessDenied,
			domain.KindCaptcha:         cfg.Search.SuspendedTimes.Captcha,
			domain.KindTooManyRequests: cfg.Search.SuspendedTimes.TooManyRequests,
		},
	})
	a.processors, err = engine.Processors(cfg, a.networks, processor.Deps{
		Suspensions: suspensions,
		Stats:       a.metrics.Engines,
		Logger:      log,
	}, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("engines: %w", err)
	}

	// 4. Orchestrator
	bangs, err := loadBangs(cfg.Search.BangsFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("bangs: %w", err)
	}
	a.answerers = answerer.Default()
	a.orchestrator = search.NewOrchestrator(a.processors, log)
	a.orchestrator.SetBangs(bangs)
	a.orchestrator.SetAnswerers(a.answerers)
	a.orchestrator.SetScoreRecorder(a.metrics.Engines)
	a.orchestrator.SetMaxRequestTimeout(cfg.Search.MaxRequestTimeout)

	// 5. Plugins
	a.plugins, err = plugin.NewDefaultManager(cfg.Plugins.Enabled, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("plugins: %w", err)
	}

	log.Info("metasearch initialized",
		"engines", len(a.processors),
		"networks", len(a.networks.Names()),
		"plugins", len(a.plugins.Enabled()),
	)
	return a, nil
}

func loadBangs(path string) (*bang.DB, error) {
	if path == "" {
		return bang.Default()
	}
	return bang.LoadFile(path)
}

// newChecker builds a checker on its own orchestrator, without answerers or
// bangs, so self-tests always reach the engines.
func (a *app) newChecker(engines []string) *checker.Checker {
	o := search.NewOrchestrator(a.processors, a.logger)
	o.SetMaxRequestTimeout(a.cfg.Search.MaxRequestTimeout)
	return checker.New(o, a.processors, checker.Options{
		Engines:     engines,
		Concurrency: a.cfg.Checker.Concurrency,
	}, a.logger)
}

// Close releases resources in reverse creation order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
