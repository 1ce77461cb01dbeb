package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/roster-assist/internal/config"
	"github.com/dwizi/roster-assist/internal/heartbeat"
	"github.com/dwizi/roster-assist/internal/httpapi"
	"github.com/dwizi/roster-assist/internal/mcp"
	"github.com/dwizi/roster-assist/internal/orchestrator"
	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/scheduler"
	"github.com/dwizi/roster-assist/internal/watcher"
)

const (
	componentAPI          = "api"
	componentOrchestrator = "orchestrator"
	componentPolicyJobs   = "policy-jobs"
	componentWatcher      = "watcher"
	componentScheduler    = "scheduler"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	core       *Core
	engine     *orchestrator.Engine
	httpServer *http.Server
	watcher    *watcher.Service
	scheduler  *scheduler.Service
	heartbeat  *heartbeat.Registry
	monitor    *heartbeat.Monitor
}

func New(ctx context.Context, cfg config.Config, version string, logger *slog.Logger) (*Runtime, error) {
	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	registry := heartbeat.NewRegistry()

	engine := orchestrator.New(1, PolicyJobExecutor(core.Policies), logger)
	engine.SetObserver(orchestrator.Observer{
		OnStarted: func(job orchestrator.Job) {
			registry.Beat(componentPolicyJobs, "running "+string(job.Kind))
		},
		OnCompleted: func(job orchestrator.Job, duration time.Duration) {
			registry.Beat(componentPolicyJobs, fmt.Sprintf("%s completed in %s", job.Kind, duration.Round(time.Millisecond)))
		},
		OnFailed: func(job orchestrator.Job, err error) {
			registry.Degrade(componentPolicyJobs, string(job.Kind)+" failed", err)
		},
	})

	schedulerService, err := scheduler.New(cfg.PolicyReindexCron, orchestrator.JobKindReindexPolicies, engine, 0, logger)
	if err != nil {
		core.Close()
		return nil, err
	}
	watchService, err := watcher.New([]string{cfg.PolicyDir}, policy.IsPolicyFile, logger.With("component", "watcher"), core.Policies.QueueFile)
	if err != nil {
		core.Close()
		return nil, err
	}

	mcpServer := mcp.NewServer(core.Pipeline, core.Search, mcp.Config{
		Version:     version,
		DefaultTopK: cfg.PolicySearchTopK,
	}, logger)
	handler := httpapi.NewRouter(httpapi.Dependencies{
		Config:    cfg,
		Store:     core.Store,
		Pipeline:  core.Pipeline,
		Policies:  core.Policies,
		Models:    core.Models,
		Jobs:      engine,
		Heartbeat: registry,
		MCP:       mcpServer.Handler(),
		Logger:    logger.With("component", "api"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		core:       core,
		engine:     engine,
		httpServer: httpServer,
		watcher:    watchService,
		scheduler:  schedulerService,
		heartbeat:  registry,
		monitor:    heartbeat.NewMonitor(registry, heartbeat.MonitorConfig{StaleAfter: 2 * time.Minute, Logger: logger}),
	}, nil
}

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("roster-assist runtime starting", "addr", r.cfg.HTTPAddr, "policy_dir", r.cfg.PolicyDir)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, componentOrchestrator, 20*time.Second, r.engine.Start)
	})
	if _, err := r.engine.Enqueue(orchestrator.Job{Kind: orchestrator.JobKindSyncPolicyDir, Source: "startup"}); err != nil {
		r.logger.Error("startup policy sync enqueue failed", "error", err)
	}
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, componentWatcher, 20*time.Second, r.watcher.Start)
	})
	group.Go(func() error {
		if r.cfg.PolicyReindexCron == "" {
			r.heartbeat.Disabled(componentScheduler, "no reindex cron configured")
			return r.scheduler.Start(groupCtx)
		}
		return runMonitored(groupCtx, r.heartbeat, componentScheduler, 20*time.Second, r.scheduler.Start)
	})
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, componentAPI, 20*time.Second, func(context.Context) error {
			err := r.httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	})
	group.Go(func() error {
		return r.monitor.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func (r *Runtime) Close() error {
	if r.core == nil {
		return nil
	}
	return r.core.Close()
}

// PolicyJobExecutor runs orchestrator jobs against the policy service.
func PolicyJobExecutor(policies *policy.Service) orchestrator.ExecutorFunc {
	return func(ctx context.Context, job orchestrator.Job) error {
		switch job.Kind {
		case orchestrator.JobKindReindexPolicies:
			_, err := policies.Reindex(ctx)
			return err
		case orchestrator.JobKindSyncPolicyDir:
			_, err := policies.SyncDirectory(ctx)
			return err
		default:
			return fmt.Errorf("%w: %s", orchestrator.ErrUnknownJobKind, job.Kind)
		}
	}
}

func runMonitored(
	ctx context.Context,
	reporter heartbeat.Reporter,
	component string,
	beatInterval time.Duration,
	run func(context.Context) error,
) error {
	reporter.Starting(component, "starting")
	reporter.Beat(component, "running")

	beatCtx, stopBeats := context.WithCancel(ctx)
	defer stopBeats()
	if beatInterval > 0 {
		go func() {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-beatCtx.Done():
					return
				case <-ticker.C:
					reporter.Beat(component, "running")
				}
			}
		}()
	}

	err := run(ctx)
	stopBeats()
	if err != nil && ctx.Err() == nil {
		reporter.Degrade(component, "component failed", err)
		return err
	}
	reporter.Stopped(component, "stopped")
	return err
}
