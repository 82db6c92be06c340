// Package exporter renders stored run metrics in the OpenMetrics format.
package exporter

import (
	"net/http"
	"sort"
	"strings"

	"github.com/cam3ron2/iteration-report/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotReader reads metric snapshots.
type SnapshotReader interface {
	Snapshot() []store.MetricPoint
}

// HelpTexts maps metric names to their HELP line. Unknown names use the
// metric name itself.
type HelpTexts map[string]string

// NewOpenMetricsHandler returns a handler that renders store snapshots through the Prometheus OpenMetrics encoder.
func NewOpenMetricsHandler(reader SnapshotReader, help HelpTexts) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&snapshotCollector{reader: reader, help: help})

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

type snapshotCollector struct {
	reader SnapshotReader
	help   HelpTexts
}

func (c *snapshotCollector) Describe(_ chan<- *prometheus.Desc) {}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}

	for _, point := range c.reader.Snapshot() {
		if point.Name == "" {
			continue
		}

		labelKeys := make([]string, 0, len(point.Labels))
		for key := range point.Labels {
			labelKeys = append(labelKeys, key)
		}
		sort.Strings(labelKeys)

		labelValues := make([]string, 0, len(labelKeys))
		for _, key := range labelKeys {
			labelValues = append(labelValues, point.Labels[key])
		}

		help := c.help[point.Name]
		if help == "" {
			help = point.Name
		}
		desc := prometheus.NewDesc(point.Name, help, labelKeys, nil)
		metric, err := prometheus.NewConstMetric(desc, valueType(point.Name), point.Value, labelValues...)
		if err != nil {
			continue
		}
		ch <- metric
	}
}

func valueType(name string) prometheus.ValueType {
	if strings.HasSuffix(name, "_total") {
		return prometheus.CounterValue
	}
	return prometheus.GaugeValue
}
