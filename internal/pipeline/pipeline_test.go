package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/iteration-report/internal/activity"
	"github.com/cam3ron2/iteration-report/internal/iteration"
	"github.com/cam3ron2/iteration-report/internal/publish"
	"github.com/cam3ron2/iteration-report/internal/schedule"
	"github.com/cam3ron2/iteration-report/internal/store"
)

var runNow = time.Date(2025, 11, 18, 10, 0, 0, 0, time.UTC)

var sprintFive = iteration.Window{
	Name:   "Sprint 5",
	Start:  time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
	End:    time.Date(2025, 11, 17, 23, 59, 59, 0, time.UTC),
	Origin: iteration.OriginProject,
}

type fakeWindows struct {
	window iteration.Window
}

func (f fakeWindows) Resolve(context.Context, time.Time) iteration.Window { return f.window }

func (f fakeWindows) Location() *time.Location { return time.UTC }

type fakeAccumulator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeAccumulator) Accumulate(_ context.Context, org string, window iteration.Window) (activity.ReportModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return activity.ReportModel{}, f.err
	}
	return activity.ReportModel{
		Organization:          org,
		Window:                window,
		Location:              time.UTC,
		Sources:               activity.AllSources,
		RepositoriesTotal:     2,
		RepositoriesProcessed: 2,
		Totals:                activity.RepoTotals{Commits: 2},
		GeneratedAt:           runNow,
		Stats: map[string]activity.ContributorStats{
			"alice": {Commits: []activity.CommitRecord{{Repository: "api", SHA: "abcdef1234", Message: "Fix", Timestamp: window.Start.Add(time.Hour)}}},
			"bob":   {},
		},
	}, nil
}

type fakeCommitter struct {
	message string
	paths   []string
	err     error
}

func (f *fakeCommitter) Commit(_ context.Context, message string, paths ...string) error {
	f.message = message
	f.paths = paths
	return f.err
}

type harness struct {
	runner      *Runner
	accumulator *fakeAccumulator
	schedule    *schedule.Store
	store       *store.MemoryStore
	reportsDir  string
}

func newHarness(t *testing.T, window iteration.Window, git Committer) harness {
	t.Helper()

	root := t.TempDir()
	now := func() time.Time { return runNow }
	publisher, err := publish.NewPublisher(publish.Config{
		ReportsDir: filepath.Join(root, "reports"),
		Now:        now,
	}, nil)
	if err != nil {
		t.Fatalf("NewPublisher() unexpected error: %v", err)
	}
	scheduleStore, err := schedule.NewStore(filepath.Join(root, "schedule.yaml"), time.UTC, now)
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}

	accumulator := &fakeAccumulator{}
	memStore := store.NewMemoryStore(0, 0)
	runner, err := New(Config{Org: "acme", IterationLengthDays: 14, Now: now}, Dependencies{
		Windows:     fakeWindows{window: window},
		Accumulator: accumulator,
		Publisher:   publisher,
		Schedule:    scheduleStore,
		Store:       memStore,
		Git:         git,
	}, nil)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return harness{
		runner:      runner,
		accumulator: accumulator,
		schedule:    scheduleStore,
		store:       memStore,
		reportsDir:  filepath.Join(root, "reports"),
	}
}

func countReports(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() unexpected error: %v", err)
	}
	return len(entries)
}

func metricValue(points []store.MetricPoint, name string, labels map[string]string) (float64, bool) {
	for _, point := range points {
		if point.Name != name {
			continue
		}
		matched := true
		for key, value := range labels {
			if point.Labels[key] != value {
				matched = false
			}
		}
		if matched {
			return point.Value, true
		}
	}
	return 0, false
}

func TestRunIsIdempotentWithoutForce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)

	first, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if first.Status != publish.StatusPublished {
		t.Fatalf("first Run().Status = %q, want published", first.Status)
	}
	if first.RunID == "" {
		t.Fatalf("Run().RunID is empty")
	}
	if !strings.HasSuffix(first.ReportPath, "20251118_100000_acme_sprint-5.md") {
		t.Fatalf("Run().ReportPath = %q", first.ReportPath)
	}

	second, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run() unexpected error: %v", err)
	}
	if second.Status != publish.StatusSkipped {
		t.Fatalf("second Run().Status = %q, want skipped", second.Status)
	}
	if second.ReportPath != first.ReportPath {
		t.Fatalf("second Run().ReportPath = %q, want %q", second.ReportPath, first.ReportPath)
	}
	if h.accumulator.calls != 1 {
		t.Fatalf("Accumulate() calls = %d, want 1", h.accumulator.calls)
	}
	if got := countReports(t, h.reportsDir); got != 1 {
		t.Fatalf("report files = %d, want 1", got)
	}

	body, err := os.ReadFile(first.ReportPath)
	if err != nil {
		t.Fatalf("ReadFile() unexpected error: %v", err)
	}
	if !strings.Contains(string(body), "User: alice") || strings.Contains(string(body), "User: bob") {
		t.Fatalf("report body detail section unexpected:\n%s", body)
	}
}

func TestRunForceWritesDistinctArtifacts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	paths := make(map[string]struct{})
	for range 2 {
		result, err := h.runner.Run(context.Background(), true)
		if err != nil {
			t.Fatalf("Run(force) unexpected error: %v", err)
		}
		if result.Status != publish.StatusPublished {
			t.Fatalf("Run(force).Status = %q, want published", result.Status)
		}
		paths[result.ReportPath] = struct{}{}
	}
	if len(paths) != 2 {
		t.Fatalf("distinct report paths = %d, want 2", len(paths))
	}
	if got := countReports(t, h.reportsDir); got != 2 {
		t.Fatalf("report files = %d, want 2", got)
	}
}

func TestRunAdvancesScheduleAfterPublish(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	result, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if !result.ScheduleAdvanced {
		t.Fatalf("Run().ScheduleAdvanced = false, want true")
	}

	state, err := h.schedule.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if state.NextIterationName != "Sprint 6" || state.NextIterationEndDate != "2025-12-01" {
		t.Fatalf("schedule = %+v, want Sprint 6 ending 2025-12-01", state)
	}
}

func TestRunSkipRepairsStaleSchedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	if _, err := h.runner.Run(context.Background(), false); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	// Simulate a crash between the write and the schedule advance.
	current, err := h.schedule.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	stale := schedule.State{NextIterationName: "Sprint 5", NextIterationEndDate: "2025-11-17"}
	if _, err := h.schedule.CompareAndSwap(current.Version, stale); err != nil {
		t.Fatalf("CompareAndSwap() unexpected error: %v", err)
	}

	result, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if result.Status != publish.StatusSkipped || !result.ScheduleAdvanced {
		t.Fatalf("Run() = %+v, want skipped with schedule advanced", result)
	}
	state, err := h.schedule.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if state.NextIterationName != "Sprint 6" {
		t.Fatalf("NextIterationName = %q, want Sprint 6", state.NextIterationName)
	}
}

func TestRunRollsLongStaleScheduleForward(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	if _, err := h.schedule.CompareAndSwap(0, schedule.State{NextIterationName: "Sprint 2", NextIterationEndDate: "2025-09-22"}); err != nil {
		t.Fatalf("CompareAndSwap() unexpected error: %v", err)
	}

	if _, err := h.runner.Run(context.Background(), false); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	state, err := h.schedule.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if state.NextIterationEndDate != "2025-12-01" || state.NextIterationName != "Sprint 7" {
		t.Fatalf("schedule = %+v, want Sprint 7 ending 2025-12-01", state)
	}
}

func TestRunRejectsHeldLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	if !h.store.AcquireLock("publish:acme", "other-process", time.Hour, runNow) {
		t.Fatalf("AcquireLock() = false, want true")
	}
	if _, err := h.runner.Run(context.Background(), false); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("Run() error = %v, want ErrRunInProgress", err)
	}
	if h.accumulator.calls != 0 {
		t.Fatalf("Accumulate() calls = %d, want 0", h.accumulator.calls)
	}
}

func TestRunSerializesConcurrentTriggers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	var wg sync.WaitGroup
	results := make([]Result, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Go(func() {
			results[i], errs[i] = h.runner.Run(context.Background(), false)
		})
	}
	wg.Wait()

	published := 0
	for i, result := range results {
		if errs[i] != nil {
			t.Fatalf("Run() unexpected error: %v", errs[i])
		}
		if result.Status == publish.StatusPublished {
			published++
		}
	}
	if published != 1 {
		t.Fatalf("published runs = %d, want 1", published)
	}
	if got := countReports(t, h.reportsDir); got != 1 {
		t.Fatalf("report files = %d, want 1", got)
	}
}

func TestRunCommitsPublishedArtifacts(t *testing.T) {
	t.Parallel()

	git := &fakeCommitter{}
	h := newHarness(t, sprintFive, git)
	result, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if git.message != "Add Sprint 5 report for acme" {
		t.Fatalf("commit message = %q", git.message)
	}
	if len(git.paths) == 0 || git.paths[0] != result.ReportPath {
		t.Fatalf("commit paths = %v, want report path first", git.paths)
	}

	failing := &fakeCommitter{err: errors.New("push rejected")}
	h = newHarness(t, sprintFive, failing)
	result, err = h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if result.Status != publish.StatusPublished || result.GitError != "push rejected" {
		t.Fatalf("Run() = %+v, want published with git error", result)
	}
}

func TestRunAccumulateFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	h.accumulator.err = errors.New("list repositories: rate_limited")

	if _, err := h.runner.Run(context.Background(), false); err == nil {
		t.Fatalf("Run() expected error")
	}
	points := h.store.Snapshot()
	if got, ok := metricValue(points, MetricRunsTotal, map[string]string{"status": "failed"}); !ok || got != 1 {
		t.Fatalf("%s{status=failed} = %v (found %t), want 1", MetricRunsTotal, got, ok)
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	if _, err := h.runner.Run(context.Background(), false); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if _, err := h.runner.Run(context.Background(), false); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	points := h.store.Snapshot()
	testCases := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{name: MetricRunsTotal, labels: map[string]string{"org": "acme", "status": "published"}, want: 1},
		{name: MetricRunsTotal, labels: map[string]string{"org": "acme", "status": "skipped"}, want: 1},
		{name: MetricRepositoriesProcessed, labels: map[string]string{"org": "acme"}, want: 2},
		{name: MetricCommits, labels: map[string]string{"org": "acme"}, want: 2},
		{name: MetricContributors, labels: map[string]string{"org": "acme"}, want: 1},
		{name: MetricLastPublishTimestamp, labels: map[string]string{"org": "acme"}, want: float64(runNow.Unix())},
	}
	for _, tc := range testCases {
		got, ok := metricValue(points, tc.name, tc.labels)
		if !ok || got != tc.want {
			t.Fatalf("%s%v = %v (found %t), want %v", tc.name, tc.labels, got, ok, tc.want)
		}
	}
}

func TestTick(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		state       *schedule.State
		wantRan     bool
		wantReports int
	}{
		{
			name:        "due_schedule_publishes",
			state:       &schedule.State{NextIterationName: "Sprint 5", NextIterationEndDate: "2025-11-17"},
			wantRan:     true,
			wantReports: 1,
		},
		{
			name:  "future_schedule_waits",
			state: &schedule.State{NextIterationName: "Sprint 6", NextIterationEndDate: "2025-12-01"},
		},
		{
			name:        "missing_schedule_is_created_from_window",
			wantRan:     true,
			wantReports: 1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, sprintFive, nil)
			if tc.state != nil {
				if _, err := h.schedule.CompareAndSwap(0, *tc.state); err != nil {
					t.Fatalf("CompareAndSwap() unexpected error: %v", err)
				}
			}

			result, ran, err := h.runner.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick() unexpected error: %v", err)
			}
			if ran != tc.wantRan {
				t.Fatalf("Tick() ran = %t, want %t", ran, tc.wantRan)
			}
			if ran && result.Status != publish.StatusPublished {
				t.Fatalf("Tick().Status = %q, want published", result.Status)
			}
			entries, _ := os.ReadDir(h.reportsDir)
			if len(entries) != tc.wantReports {
				t.Fatalf("report files = %d, want %d", len(entries), tc.wantReports)
			}
		})
	}
}

func TestSyncSchedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	if _, err := h.schedule.CompareAndSwap(0, schedule.State{NextIterationName: "Old", NextIterationEndDate: "2020-01-01"}); err != nil {
		t.Fatalf("CompareAndSwap() unexpected error: %v", err)
	}

	state, err := h.runner.SyncSchedule(context.Background())
	if err != nil {
		t.Fatalf("SyncSchedule() unexpected error: %v", err)
	}
	if state.NextIterationName != "Sprint 5" || state.NextIterationEndDate != "2025-11-17" {
		t.Fatalf("SyncSchedule() = %+v, want Sprint 5 ending 2025-11-17", state)
	}
	loaded, err := h.runner.Schedule()
	if err != nil {
		t.Fatalf("Schedule() unexpected error: %v", err)
	}
	if loaded.Version != state.Version {
		t.Fatalf("Schedule().Version = %d, want %d", loaded.Version, state.Version)
	}
}

func TestPreviewDoesNotPublish(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sprintFive, nil)
	body, err := h.runner.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview() unexpected error: %v", err)
	}
	if !strings.Contains(body, "Sprint 5") {
		t.Fatalf("Preview() body missing iteration name:\n%s", body)
	}
	if _, err := os.Stat(h.reportsDir); !os.IsNotExist(err) {
		t.Fatalf("reports directory exists after preview: %v", err)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, Dependencies{}, nil); err == nil {
		t.Fatalf("New() expected error without org")
	}
	if _, err := New(Config{Org: "acme"}, Dependencies{}, nil); err == nil {
		t.Fatalf("New() expected error without dependencies")
	}
}
