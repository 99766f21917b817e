package training

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// MeanMetric accumulates scalar observations and reports their mean.
// Reset starts a fresh accumulation window, typically once per epoch.
type MeanMetric struct {
	values []float64
}

// Update records one observation.
func (m *MeanMetric) Update(v float64) {
	m.values = append(m.values, v)
}

// Value returns the mean of all observations since the last Reset, or
// zero when nothing has been recorded.
func (m *MeanMetric) Value() float64 {
	if len(m.values) == 0 {
		return 0
	}
	return floats.Sum(m.values) / float64(len(m.values))
}

// Count returns the number of recorded observations.
func (m *MeanMetric) Count() int {
	return len(m.values)
}

// Reset discards all observations.
func (m *MeanMetric) Reset() {
	m.values = m.values[:0]
}

// MetricSet tracks the four per-network loss metrics of a training run.
type MetricSet struct {
	metrics map[string]*MeanMetric
}

// Loss metric names, matching the checkpoint group names.
const (
	MetricDiscriminatorA = "dA_loss"
	MetricDiscriminatorB = "dB_loss"
	MetricGeneratorAB    = "gAB_loss"
	MetricGeneratorBA    = "gBA_loss"
)

// NewMetricSet creates the standard loss metrics.
func NewMetricSet() *MetricSet {
	return &MetricSet{
		metrics: map[string]*MeanMetric{
			MetricDiscriminatorA: {},
			MetricDiscriminatorB: {},
			MetricGeneratorAB:    {},
			MetricGeneratorBA:    {},
		},
	}
}

// Update records one observation for the named metric.
func (s *MetricSet) Update(name string, v float64) {
	if m, ok := s.metrics[name]; ok {
		m.Update(v)
	}
}

// Value returns the running mean of the named metric.
func (s *MetricSet) Value(name string) float64 {
	if m, ok := s.metrics[name]; ok {
		return m.Value()
	}
	return 0
}

// Values returns all running means keyed by metric name.
func (s *MetricSet) Values() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for name, m := range s.metrics {
		out[name] = m.Value()
	}
	return out
}

// Reset starts a fresh accumulation window for all metrics.
func (s *MetricSet) Reset() {
	for _, m := range s.metrics {
		m.Reset()
	}
}

// String renders the metrics in a stable order for log lines.
func (s *MetricSet) String() string {
	names := make([]string, 0, len(s.metrics))
	for name := range s.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.4f", name, s.metrics[name].Value()))
	}
	return strings.Join(parts, " ")
}
