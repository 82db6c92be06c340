// Package pipeline runs one report: resolve the window, guard against
// duplicates, accumulate, format, publish and roll the schedule forward.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/iteration-report/internal/activity"
	"github.com/cam3ron2/iteration-report/internal/iteration"
	"github.com/cam3ron2/iteration-report/internal/publish"
	"github.com/cam3ron2/iteration-report/internal/report"
	"github.com/cam3ron2/iteration-report/internal/schedule"
	"github.com/cam3ron2/iteration-report/internal/store"
	"github.com/cam3ron2/iteration-report/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	defaultLockTTL = 30 * time.Minute
	// maxScheduleSteps bounds how far one run rolls a stale schedule forward.
	maxScheduleSteps = 520
)

// ErrRunInProgress reports that another process holds the publish lock.
var ErrRunInProgress = errors.New("report run already in progress")

// WindowResolver resolves the reporting window.
type WindowResolver interface {
	Resolve(ctx context.Context, now time.Time) iteration.Window
	Location() *time.Location
}

// Accumulator builds the report model.
type Accumulator interface {
	Accumulate(ctx context.Context, org string, window iteration.Window) (activity.ReportModel, error)
}

// Publisher checks for and writes report artifacts.
type Publisher interface {
	Existing(org, label string) ([]string, error)
	Publish(ctx context.Context, model activity.ReportModel, body string, force bool) (publish.Result, error)
}

// ScheduleStore persists the iteration schedule.
type ScheduleStore interface {
	Load() (schedule.State, error)
	LoadOrCreate(def schedule.State) (schedule.State, bool, error)
	CompareAndSwap(expectedVersion int64, next schedule.State) (schedule.State, error)
}

// RunStore holds the cross-process run lock and run metrics.
type RunStore interface {
	AcquireLock(key, owner string, ttl time.Duration, now time.Time) bool
	ReleaseLock(key, owner string) bool
	UpsertMetric(point store.MetricPoint) error
}

// Committer records published artifacts in version control.
type Committer interface {
	Commit(ctx context.Context, message string, paths ...string) error
}

// Config configures a Runner.
type Config struct {
	Org string
	// IterationLengthDays is how far the schedule moves per iteration.
	IterationLengthDays int
	LockTTL             time.Duration
	Now                 func() time.Time
}

// Dependencies are the collaborators of a Runner. Git is optional.
type Dependencies struct {
	Windows     WindowResolver
	Accumulator Accumulator
	Publisher   Publisher
	Schedule    ScheduleStore
	Store       RunStore
	Git         Committer
}

// Result is the outcome of one run.
type Result struct {
	RunID                 string         `json:"run_id"`
	Status                publish.Status `json:"status"`
	Iteration             string         `json:"iteration"`
	ReportPath            string         `json:"report_path,omitempty"`
	HTMLPath              string         `json:"html_path,omitempty"`
	Reason                string         `json:"reason,omitempty"`
	RepositoriesTotal     int            `json:"repositories_total"`
	RepositoriesProcessed int            `json:"repositories_processed"`
	RepositoriesFailed    int            `json:"repositories_failed"`
	ScheduleAdvanced      bool           `json:"schedule_advanced"`
	GitError              string         `json:"git_error,omitempty"`
	Duration              time.Duration  `json:"duration_ns"`
}

// Runner executes report runs one at a time.
type Runner struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger

	mu   sync.Mutex
	runs map[publish.Status]int
}

// New creates a runner.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Runner, error) {
	if strings.TrimSpace(cfg.Org) == "" {
		return nil, fmt.Errorf("organization is required")
	}
	if deps.Windows == nil || deps.Accumulator == nil || deps.Publisher == nil || deps.Schedule == nil || deps.Store == nil {
		return nil, fmt.Errorf("windows, accumulator, publisher, schedule and store are required")
	}
	if cfg.IterationLengthDays <= 0 {
		cfg.IterationLengthDays = 14
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		runs:   make(map[publish.Status]int),
	}, nil
}

// Run produces and publishes the report of the current window. Without
// force an existing report for the window's iteration skips the run before
// any repository is fetched.
func (r *Runner) Run(ctx context.Context, force bool) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.cfg.Now()
	result := Result{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", result.RunID), zap.String("org", r.cfg.Org))

	lockKey := "publish:" + strings.ToLower(r.cfg.Org)
	if !r.deps.Store.AcquireLock(lockKey, result.RunID, r.cfg.LockTTL, started) {
		return result, ErrRunInProgress
	}
	defer r.deps.Store.ReleaseLock(lockKey, result.RunID)

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run",
		attribute.String("org", r.cfg.Org),
		attribute.Bool("force", force),
		attribute.String("run_id", result.RunID),
	)
	defer span.End()

	result, err := r.run(ctx, logger, result, force, started)
	result.Duration = r.cfg.Now().Sub(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("report run failed", zap.Duration("duration", result.Duration), zap.Error(err))
		r.recordRun(logger, "failed", result, started)
		return result, err
	}
	span.SetAttributes(attribute.String("status", string(result.Status)))
	logger.Info(
		"report run finished",
		zap.String("status", string(result.Status)),
		zap.String("iteration", result.Iteration),
		zap.String("path", result.ReportPath),
		zap.Bool("schedule_advanced", result.ScheduleAdvanced),
		zap.Duration("duration", result.Duration),
	)
	r.recordRun(logger, string(result.Status), result, started)
	return result, nil
}

func (r *Runner) run(ctx context.Context, logger *zap.Logger, result Result, force bool, now time.Time) (Result, error) {
	window := r.deps.Windows.Resolve(ctx, now)
	result.Iteration = window.Name

	if !force {
		existing, err := r.deps.Publisher.Existing(r.cfg.Org, window.Name)
		if err != nil {
			return result, fmt.Errorf("check existing reports: %w", err)
		}
		if len(existing) > 0 {
			result.Status = publish.StatusSkipped
			result.ReportPath = existing[len(existing)-1]
			result.Reason = fmt.Sprintf("report for %q already exists", window.Name)
			result.ScheduleAdvanced = r.advanceSchedule(logger, window, now)
			return result, nil
		}
	}

	model, err := r.deps.Accumulator.Accumulate(ctx, r.cfg.Org, window)
	if err != nil {
		return result, fmt.Errorf("accumulate activity: %w", err)
	}
	result.RepositoriesTotal = model.RepositoriesTotal
	result.RepositoriesProcessed = model.RepositoriesProcessed
	result.RepositoriesFailed = len(model.Failures)
	r.recordModel(logger, model, now)

	body, err := report.Format(model)
	if err != nil {
		return result, fmt.Errorf("format report: %w", err)
	}

	published, err := r.deps.Publisher.Publish(ctx, model, body, force)
	if err != nil {
		return result, fmt.Errorf("publish report: %w", err)
	}
	result.Status = published.Status
	result.ReportPath = published.Path
	result.HTMLPath = published.HTMLPath
	result.Reason = published.Reason

	if published.Status == publish.StatusPublished && r.deps.Git != nil {
		message := fmt.Sprintf("Add %s report for %s", window.Name, r.cfg.Org)
		if err := r.deps.Git.Commit(ctx, message, published.Path, published.HTMLPath); err != nil {
			logger.Warn("git commit of report failed", zap.Error(err))
			result.GitError = err.Error()
		}
	}

	result.ScheduleAdvanced = r.advanceSchedule(logger, window, now)
	return result, nil
}

// Preview renders the report of the current window without publishing it.
func (r *Runner) Preview(ctx context.Context) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.preview", attribute.String("org", r.cfg.Org))
	defer span.End()

	now := r.cfg.Now()
	window := r.deps.Windows.Resolve(ctx, now)
	model, err := r.deps.Accumulator.Accumulate(ctx, r.cfg.Org, window)
	if err != nil {
		return "", fmt.Errorf("accumulate activity: %w", err)
	}
	return report.Format(model)
}

// Tick is the scheduler check: it creates the schedule from the current
// window when missing and runs an unforced publish once the scheduled
// iteration has ended. The boolean reports whether a run was attempted.
func (r *Runner) Tick(ctx context.Context) (Result, bool, error) {
	now := r.cfg.Now()
	loc := r.deps.Windows.Location()

	state, err := r.deps.Schedule.Load()
	if errors.Is(err, schedule.ErrNotFound) {
		window := r.deps.Windows.Resolve(ctx, now)
		var created bool
		state, created, err = r.deps.Schedule.LoadOrCreate(schedule.FromWindow(window, now, loc, r.cfg.IterationLengthDays))
		if created {
			r.logger.Info(
				"created iteration schedule",
				zap.String("next_iteration_name", state.NextIterationName),
				zap.String("next_iteration_end_date", state.NextIterationEndDate),
			)
		}
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("load schedule: %w", err)
	}

	due, err := state.Due(now, loc)
	if err != nil {
		return Result{}, false, err
	}
	if !due {
		r.logger.Debug(
			"schedule not due",
			zap.String("next_iteration_name", state.NextIterationName),
			zap.String("next_iteration_end_date", state.NextIterationEndDate),
		)
		return Result{}, false, nil
	}

	result, err := r.Run(ctx, false)
	return result, true, err
}

// Schedule returns the stored schedule record.
func (r *Runner) Schedule() (schedule.State, error) {
	return r.deps.Schedule.Load()
}

// SyncSchedule overwrites the schedule with the current window.
func (r *Runner) SyncSchedule(ctx context.Context) (schedule.State, error) {
	now := r.cfg.Now()
	window := r.deps.Windows.Resolve(ctx, now)
	next := schedule.FromWindow(window, now, r.deps.Windows.Location(), r.cfg.IterationLengthDays)

	current, err := r.deps.Schedule.Load()
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		current = schedule.State{}
	case err != nil:
		return schedule.State{}, err
	}
	written, err := r.deps.Schedule.CompareAndSwap(current.Version, next)
	if err != nil {
		return schedule.State{}, fmt.Errorf("write schedule: %w", err)
	}
	r.logger.Info(
		"synced iteration schedule",
		zap.String("next_iteration_name", written.NextIterationName),
		zap.String("next_iteration_end_date", written.NextIterationEndDate),
	)
	return written, nil
}

// advanceSchedule rolls the schedule past window when the schedule names
// that iteration or its end has passed. Failures are logged: the artifacts
// on disk stay the record of what was published.
func (r *Runner) advanceSchedule(logger *zap.Logger, window iteration.Window, now time.Time) bool {
	loc := r.deps.Windows.Location()
	state, _, err := r.deps.Schedule.LoadOrCreate(schedule.FromWindow(window, now, loc, r.cfg.IterationLengthDays))
	if err != nil {
		logger.Warn("load schedule for advance failed", zap.Error(err))
		return false
	}

	matches := strings.EqualFold(strings.TrimSpace(state.NextIterationName), strings.TrimSpace(window.Name))
	due, err := state.Due(now, loc)
	if err != nil {
		logger.Warn("invalid schedule record", zap.Error(err))
		return false
	}
	if !matches && !due {
		return false
	}

	next, err := state.Advance(r.cfg.IterationLengthDays)
	for step := 1; err == nil && step < maxScheduleSteps; step++ {
		stillDue, dueErr := next.Due(now, loc)
		if dueErr != nil || !stillDue {
			break
		}
		next, err = next.Advance(r.cfg.IterationLengthDays)
	}
	if err != nil {
		logger.Warn("advance schedule failed", zap.Error(err))
		return false
	}

	written, err := r.deps.Schedule.CompareAndSwap(state.Version, next)
	if err != nil {
		logger.Warn("write advanced schedule failed", zap.Error(err))
		return false
	}
	logger.Info(
		"advanced iteration schedule",
		zap.String("next_iteration_name", written.NextIterationName),
		zap.String("next_iteration_end_date", written.NextIterationEndDate),
	)
	return true
}
