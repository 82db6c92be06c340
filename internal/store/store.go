// Package store keeps run locks and run metric points shared between
// report runs, in memory or in Redis.
package store

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the backend contract used by the pipeline and the exporter.
type Store interface {
	UpsertMetric(point MetricPoint) error
	Snapshot() []MetricPoint
	AcquireLock(key, owner string, ttl time.Duration, now time.Time) bool
	ReleaseLock(key, owner string) bool
	GC(now time.Time)
	Close() error
}

// MetricPoint is a single metric sample.
type MetricPoint struct {
	Name      string
	Labels    map[string]string
	Value     float64
	UpdatedAt time.Time
}

type heldLock struct {
	owner  string
	expiry time.Time
}

// MemoryStore is an in-process store.
type MemoryStore struct {
	mu        sync.RWMutex
	retention time.Duration
	maxSeries int
	metrics   map[string]MetricPoint
	locks     map[string]heldLock
}

// NewMemoryStore creates a memory store. A zero retention keeps points
// forever; a zero maxSeries is unbounded.
func NewMemoryStore(retention time.Duration, maxSeries int) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		maxSeries: maxSeries,
		metrics:   make(map[string]MetricPoint),
		locks:     make(map[string]heldLock),
	}
}

// UpsertMetric inserts or replaces a metric point.
func (s *MemoryStore) UpsertMetric(point MetricPoint) error {
	if err := validatePoint(point); err != nil {
		return err
	}
	key := metricKey(point.Name, point.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.metrics[key]; !exists && s.maxSeries > 0 && len(s.metrics) >= s.maxSeries {
		return fmt.Errorf("max series budget exceeded")
	}
	point.Labels = maps.Clone(point.Labels)
	s.metrics[key] = point
	return nil
}

// AcquireLock takes key for owner until ttl elapses. It fails while another
// owner holds an unexpired lock.
func (s *MemoryStore) AcquireLock(key, owner string, ttl time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, exists := s.locks[key]; exists && now.Before(held.expiry) {
		return false
	}
	s.locks[key] = heldLock{owner: owner, expiry: now.Add(ttl)}
	return true
}

// ReleaseLock drops key when owner still holds it.
func (s *MemoryStore) ReleaseLock(key, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.locks[key]
	if !exists || held.owner != owner {
		return false
	}
	delete(s.locks, key)
	return true
}

// GC deletes expired metrics and locks.
func (s *MemoryStore) GC(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retention > 0 {
		for key, point := range s.metrics {
			if now.Sub(point.UpdatedAt) > s.retention {
				delete(s.metrics, key)
			}
		}
	}
	for key, held := range s.locks {
		if !now.Before(held.expiry) {
			delete(s.locks, key)
		}
	}
}

// Snapshot returns all stored metrics ordered by series key.
func (s *MemoryStore) Snapshot() []MetricPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]MetricPoint, 0, len(s.metrics))
	for _, point := range s.metrics {
		point.Labels = maps.Clone(point.Labels)
		result = append(result, point)
	}
	sortPoints(result)
	return result
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func validatePoint(point MetricPoint) error {
	if point.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	if point.UpdatedAt.IsZero() {
		return fmt.Errorf("metric updated time is required")
	}
	return nil
}

func sortPoints(points []MetricPoint) {
	sort.Slice(points, func(i, j int) bool {
		return metricKey(points[i].Name, points[i].Labels) < metricKey(points[j].Name, points[j].Labels)
	})
}

func metricKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	builder.WriteString(name)
	builder.WriteString("|")
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(labels[key])
		builder.WriteString(";")
	}
	return builder.String()
}
