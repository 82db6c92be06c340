// Package app wires the report pipeline into a long-running service: the
// iteration scheduler loop and the HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cam3ron2/iteration-report/internal/config"
	"github.com/cam3ron2/iteration-report/internal/exporter"
	"github.com/cam3ron2/iteration-report/internal/health"
	"github.com/cam3ron2/iteration-report/internal/pipeline"
	"github.com/cam3ron2/iteration-report/internal/schedule"
	"github.com/cam3ron2/iteration-report/internal/store"
	"go.uber.org/zap"
)

// ReportRunner is the pipeline surface the runtime drives.
type ReportRunner interface {
	Run(ctx context.Context, force bool) (pipeline.Result, error)
	Preview(ctx context.Context) (string, error)
	Tick(ctx context.Context) (pipeline.Result, bool, error)
	Schedule() (schedule.State, error)
}

type storePinger interface {
	Ping(ctx context.Context) error
}

var metricHelp = exporter.HelpTexts{
	pipeline.MetricRunsTotal:             "Report runs by outcome since process start.",
	pipeline.MetricLastRunTimestamp:      "Unix time of the last report run by outcome.",
	pipeline.MetricLastPublishTimestamp:  "Unix time of the last published report.",
	pipeline.MetricRunDuration:           "Duration of the last report run in seconds.",
	pipeline.MetricRepositoriesTotal:     "Repositories selected by the last accumulation.",
	pipeline.MetricRepositoriesProcessed: "Repositories fully processed by the last accumulation.",
	pipeline.MetricRepositoriesFailed:    "Repositories skipped after fetch failures in the last accumulation.",
	pipeline.MetricCommits:               "Commits counted in the last accumulation.",
	pipeline.MetricUnresolvedCommits:     "Commits whose author matched no member in the last accumulation.",
	pipeline.MetricContributors:          "Members with activity in the last accumulation.",
}

// Runtime is the application runtime orchestrator.
type Runtime struct {
	cfg       *config.Config
	runner    ReportRunner
	store     store.Store
	evaluator *health.StatusEvaluator
	logger    *zap.Logger

	mu               sync.RWMutex
	schedulerHealthy bool
	lastRunSucceeded bool
	lastResult       *pipeline.Result
	schedulerCancel  context.CancelFunc

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime instance.
func NewRuntime(cfg *config.Config, runner ReportRunner, storeBackend store.Store, logger ...*zap.Logger) *Runtime {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if storeBackend == nil {
		storeBackend = store.NewMemoryStore(metricRetention, metricMaxSeries)
	}
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}

	return &Runtime{
		cfg:              cfg,
		runner:           runner,
		store:            storeBackend,
		evaluator:        health.NewStatusEvaluator(),
		logger:           baseLogger,
		lastRunSucceeded: true,
		Now:              time.Now,
	}
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	cached := exporter.NewCachedSnapshotReader(r.store, exporter.CacheConfig{Now: r.Now})
	metricsHandler := exporter.NewOpenMetricsHandler(cached, metricHelp)
	healthHandler := health.NewHandler(r)
	return NewHTTPHandler(metricsHandler, healthHandler, newReportsAPI(r))
}

// Publish runs the pipeline on demand and records the outcome.
func (r *Runtime) Publish(ctx context.Context, force bool) (pipeline.Result, error) {
	if r.runner == nil {
		return pipeline.Result{}, errors.New("report runner is not configured")
	}
	result, err := r.runner.Run(ctx, force)
	r.recordOutcome(result, err)
	return result, err
}

// LastResult returns the outcome of the most recent completed run.
func (r *Runtime) LastResult() (pipeline.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastResult == nil {
		return pipeline.Result{}, false
	}
	return *r.lastResult, true
}

// StartScheduler starts the schedule loop: one check after the startup
// delay, then one per check interval.
func (r *Runtime) StartScheduler(ctx context.Context) {
	r.mu.Lock()
	if r.schedulerCancel != nil {
		r.schedulerCancel()
	}
	schedulerCtx, cancel := context.WithCancel(ctx)
	r.schedulerCancel = cancel
	r.schedulerHealthy = true
	r.mu.Unlock()

	r.logger.Info(
		"starting scheduler loop",
		zap.Duration("startup_delay", r.cfg.Schedule.StartupDelay),
		zap.Duration("interval", r.checkInterval()),
	)
	go r.runSchedulerLoop(schedulerCtx)
}

// StopScheduler stops the schedule loop.
func (r *Runtime) StopScheduler() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schedulerCancel != nil {
		r.schedulerCancel()
		r.schedulerCancel = nil
	}
	r.schedulerHealthy = false
	r.logger.Info("stopped scheduler loop")
}

// RunSchedulerCycle performs one schedule check and collects expired store entries.
func (r *Runtime) RunSchedulerCycle(ctx context.Context) error {
	defer r.store.GC(r.Now())
	if r.runner == nil {
		return errors.New("report runner is not configured")
	}

	result, ran, err := r.runner.Tick(ctx)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		r.logger.Info("scheduled run skipped; another run holds the lock")
		return nil
	}
	if !ran && err == nil {
		return nil
	}
	r.recordOutcome(result, err)
	if err != nil {
		return err
	}
	r.logger.Info(
		"scheduled report run finished",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)),
		zap.String("iteration", result.Iteration),
		zap.String("path", result.ReportPath),
	)
	return nil
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(ctx context.Context) health.Status {
	storeHealthy := true
	if pinger, ok := r.store.(storePinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		storeHealthy = pinger.Ping(pingCtx) == nil
		cancel()
	}

	r.mu.RLock()
	input := health.Input{
		StoreHealthy:       storeHealthy,
		ReportsWritable:    dirWritable(r.cfg.Publish.ReportsDir),
		GitHubClientUsable: r.runner != nil,
		SchedulerEnabled:   r.cfg.Schedule.Enabled,
		SchedulerHealthy:   r.schedulerHealthy,
		LastRunSucceeded:   r.lastRunSucceeded,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

func (r *Runtime) recordOutcome(result pipeline.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return
	}
	r.lastRunSucceeded = err == nil
	r.lastResult = &result
}

func (r *Runtime) runSchedulerLoop(ctx context.Context) {
	delay := time.NewTimer(r.cfg.Schedule.StartupDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}

	ticker := time.NewTicker(r.checkInterval())
	defer ticker.Stop()

	if err := r.RunSchedulerCycle(ctx); err != nil {
		r.logger.Warn("scheduled report run failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("scheduler loop stopped")
			return
		case <-ticker.C:
			if err := r.RunSchedulerCycle(ctx); err != nil {
				r.logger.Warn("scheduled report run failed", zap.Error(err))
			}
		}
	}
}

func (r *Runtime) checkInterval() time.Duration {
	if r.cfg.Schedule.CheckInterval <= 0 {
		return time.Hour
	}
	return r.cfg.Schedule.CheckInterval
}

// dirWritable creates dir when missing and probes it with a temp file.
func dirWritable(dir string) bool {
	if dir == "" {
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name) == nil
}
