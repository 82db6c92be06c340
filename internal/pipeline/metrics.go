package pipeline

import (
	"time"

	"github.com/cam3ron2/iteration-report/internal/activity"
	"github.com/cam3ron2/iteration-report/internal/publish"
	"github.com/cam3ron2/iteration-report/internal/store"
	"go.uber.org/zap"
)

// Metric names written to the run store.
const (
	MetricRunsTotal             = "iteration_report_runs_total"
	MetricLastRunTimestamp      = "iteration_report_last_run_timestamp_seconds"
	MetricLastPublishTimestamp  = "iteration_report_last_publish_timestamp_seconds"
	MetricRunDuration           = "iteration_report_run_duration_seconds"
	MetricRepositoriesTotal     = "iteration_report_repositories_total"
	MetricRepositoriesProcessed = "iteration_report_repositories_processed"
	MetricRepositoriesFailed    = "iteration_report_repositories_failed"
	MetricCommits               = "iteration_report_commits"
	MetricUnresolvedCommits     = "iteration_report_unresolved_commits"
	MetricContributors          = "iteration_report_active_contributors"
)

// recordRun must be called with r.mu held.
func (r *Runner) recordRun(logger *zap.Logger, status string, result Result, now time.Time) {
	r.runs[publish.Status(status)]++
	points := []store.MetricPoint{
		{Name: MetricRunsTotal, Labels: r.labels("status", status), Value: float64(r.runs[publish.Status(status)])},
		{Name: MetricLastRunTimestamp, Labels: r.labels("status", status), Value: float64(now.Unix())},
		{Name: MetricRunDuration, Labels: r.labels(), Value: result.Duration.Seconds()},
	}
	if result.Status == publish.StatusPublished {
		points = append(points, store.MetricPoint{Name: MetricLastPublishTimestamp, Labels: r.labels(), Value: float64(now.Unix())})
	}
	r.upsert(logger, now, points)
}

func (r *Runner) recordModel(logger *zap.Logger, model activity.ReportModel, now time.Time) {
	active := 0
	for _, stats := range model.Stats {
		if !stats.IsZero() {
			active++
		}
	}
	r.upsert(logger, now, []store.MetricPoint{
		{Name: MetricRepositoriesTotal, Labels: r.labels(), Value: float64(model.RepositoriesTotal)},
		{Name: MetricRepositoriesProcessed, Labels: r.labels(), Value: float64(model.RepositoriesProcessed)},
		{Name: MetricRepositoriesFailed, Labels: r.labels(), Value: float64(len(model.Failures))},
		{Name: MetricCommits, Labels: r.labels(), Value: float64(model.Totals.Commits)},
		{Name: MetricUnresolvedCommits, Labels: r.labels(), Value: float64(model.Totals.UnresolvedCommits)},
		{Name: MetricContributors, Labels: r.labels(), Value: float64(active)},
	})
}

func (r *Runner) upsert(logger *zap.Logger, now time.Time, points []store.MetricPoint) {
	for _, point := range points {
		point.UpdatedAt = now
		if err := r.deps.Store.UpsertMetric(point); err != nil {
			logger.Warn("record run metric failed", zap.String("metric", point.Name), zap.Error(err))
		}
	}
}

func (r *Runner) labels(pairs ...string) map[string]string {
	labels := map[string]string{"org": r.cfg.Org}
	for i := 0; i+1 < len(pairs); i += 2 {
		labels[pairs[i]] = pairs[i+1]
	}
	return labels
}
