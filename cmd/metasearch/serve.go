package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"metasearch/internal/adapter/httpapi"
	"metasearch/internal/usecase/checker"
	"metasearch/internal/usecase/scheduling"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Long: `Serve the search API over HTTP until interrupted.

Endpoints:
  GET /search?q=...   run a search (format=json never redirects)
  GET /stats          per-engine statistics
  GET /checker        latest engine self-test report
  GET /config         engines, categories, plugins and answerers
  GET /healthz        liveness probe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, opts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Override the configured listen address")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, addr string) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	if addr != "" {
		a.cfg.Server.Addr = addr
	}

	var chk *checker.Checker
	var sched *scheduling.Scheduler
	if a.cfg.Checker.Enabled {
		chk = a.newChecker(a.cfg.Checker.Engines)
		sched = scheduling.NewScheduler(a.logger)
		sched.RegisterAction(scheduling.ActionEngineCheck, func(ctx context.Context) error {
			_, err := chk.Run(ctx)
			return err
		})
		if err := sched.AddTask(scheduling.ScheduledTask{
			Name:       string(scheduling.ActionEngineCheck),
			Schedule:   a.cfg.Checker.Schedule,
			Action:     scheduling.ActionEngineCheck,
			RunOnStart: true,
		}); err != nil {
			return fmt.Errorf("checker schedule: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer sched.Stop()
	}

	deps := httpapi.Deps{
		Orchestrator: a.orchestrator,
		Plugins:      a.plugins,
		Answerers:    a.answerers,
		Stats:        a.metrics.Engines,
		Server:       a.cfg.Server,
		Search:       a.cfg.Search,
		Version:      version,
		Logger:       a.logger,
	}
	if chk != nil {
		deps.Checker = chk
		deps.Schedule = sched
	}
	if a.cfg.Metrics.Enabled {
		deps.Metrics = a.metrics
		deps.MetricsPath = a.cfg.Metrics.Path
	}

	srv := httpapi.NewServer(a.cfg.Server, httpapi.NewHandler(ctx, deps), a.logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("metasearch stopped")
	return nil
}
