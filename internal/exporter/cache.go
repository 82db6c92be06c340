package exporter

import (
	"maps"
	"sync"
	"time"

	"github.com/cam3ron2/iteration-report/internal/store"
)

// CacheConfig configures the snapshot cache used by /metrics rendering.
type CacheConfig struct {
	RefreshInterval time.Duration
	Now             func() time.Time
}

type cachedSnapshotReader struct {
	source          SnapshotReader
	refreshInterval time.Duration
	now             func() time.Time

	mu          sync.RWMutex
	initialized bool
	lastRefresh time.Time
	points      []store.MetricPoint
}

// NewCachedSnapshotReader wraps a snapshot reader so scrapes inside
// RefreshInterval reuse the last snapshot instead of reading the backend.
func NewCachedSnapshotReader(source SnapshotReader, cfg CacheConfig) SnapshotReader {
	if source == nil {
		return &cachedSnapshotReader{}
	}
	if _, alreadyCached := source.(*cachedSnapshotReader); alreadyCached {
		return source
	}

	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = 30 * time.Second
	}

	return &cachedSnapshotReader{
		source:          source,
		refreshInterval: refreshInterval,
		now:             nowFn,
	}
}

func (c *cachedSnapshotReader) Snapshot() []store.MetricPoint {
	if c == nil || c.source == nil {
		return nil
	}
	c.refreshIfNeeded()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePoints(c.points)
}

func (c *cachedSnapshotReader) refreshIfNeeded() {
	now := c.now()

	c.mu.RLock()
	if c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval {
		return
	}

	c.points = clonePoints(c.source.Snapshot())
	c.lastRefresh = now
	c.initialized = true
}

func clonePoints(points []store.MetricPoint) []store.MetricPoint {
	if len(points) == 0 {
		return nil
	}
	copied := make([]store.MetricPoint, 0, len(points))
	for _, point := range points {
		copied = append(copied, store.MetricPoint{
			Name:      point.Name,
			Labels:    maps.Clone(point.Labels),
			Value:     point.Value,
			UpdatedAt: point.UpdatedAt,
		})
	}
	return copied
}
