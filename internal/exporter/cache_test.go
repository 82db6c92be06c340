package exporter

import (
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/iteration-report/internal/store"
)

type fakeCacheSource struct {
	mu            sync.Mutex
	snapshots     [][]store.MetricPoint
	snapshotCalls int
}

func (f *fakeCacheSource) Snapshot() []store.MetricPoint {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshotCalls++
	if len(f.snapshots) == 0 {
		return nil
	}
	index := min(f.snapshotCalls-1, len(f.snapshots)-1)
	return clonePoints(f.snapshots[index])
}

func (f *fakeCacheSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotCalls
}

func TestCachedSnapshotReaderRefresh(t *testing.T) {
	t.Parallel()

	base := time.Unix(1739836800, 0)
	now := base
	source := &fakeCacheSource{
		snapshots: [][]store.MetricPoint{
			{{Name: "iteration_report_commits", Labels: map[string]string{"org": "acme"}, Value: 1, UpdatedAt: base}},
			{{Name: "iteration_report_commits", Labels: map[string]string{"org": "acme"}, Value: 5, UpdatedAt: base}},
		},
	}
	reader := NewCachedSnapshotReader(source, CacheConfig{
		RefreshInterval: time.Minute,
		Now:             func() time.Time { return now },
	})

	testCases := []struct {
		name      string
		advance   time.Duration
		wantValue float64
		wantCalls int
	}{
		{name: "first_read_loads", wantValue: 1, wantCalls: 1},
		{name: "inside_interval_reuses", advance: 30 * time.Second, wantValue: 1, wantCalls: 1},
		{name: "after_interval_refreshes", advance: 31 * time.Second, wantValue: 5, wantCalls: 2},
	}
	for _, tc := range testCases {
		now = now.Add(tc.advance)
		points := reader.Snapshot()
		if len(points) != 1 || points[0].Value != tc.wantValue {
			t.Fatalf("%s: Snapshot() = %+v, want value %v", tc.name, points, tc.wantValue)
		}
		if got := source.calls(); got != tc.wantCalls {
			t.Fatalf("%s: source calls = %d, want %d", tc.name, got, tc.wantCalls)
		}
	}
}

func TestCachedSnapshotReaderReturnsCopies(t *testing.T) {
	t.Parallel()

	source := &fakeCacheSource{snapshots: [][]store.MetricPoint{
		{{Name: "m", Labels: map[string]string{"org": "acme"}, UpdatedAt: time.Unix(1, 0)}},
	}}
	reader := NewCachedSnapshotReader(source, CacheConfig{RefreshInterval: time.Hour})

	first := reader.Snapshot()
	first[0].Labels["org"] = "mutated"
	second := reader.Snapshot()
	if second[0].Labels["org"] != "acme" {
		t.Fatalf("cached labels = %v, want unchanged", second[0].Labels)
	}
}

func TestNewCachedSnapshotReaderEdgeCases(t *testing.T) {
	t.Parallel()

	if got := NewCachedSnapshotReader(nil, CacheConfig{}).Snapshot(); got != nil {
		t.Fatalf("nil source Snapshot() = %v, want nil", got)
	}
	wrapped := NewCachedSnapshotReader(&fakeCacheSource{}, CacheConfig{})
	if again := NewCachedSnapshotReader(wrapped, CacheConfig{}); again != wrapped {
		t.Fatalf("NewCachedSnapshotReader() rewrapped a cached reader")
	}
}
