package metric

import (
	"context"
	"sort"

	"github.com/deepaksharma/signalpipe/attribute"
)

// Meter creates instruments under one scope name. Meters are cheap handles
// over the registry that owns all aggregation state, so two meters with the
// same name feed the same streams.
type Meter struct {
	name string
	reg  *Registry
}

// NewMeter returns a meter writing into reg.
func NewMeter(name string, reg *Registry) *Meter {
	return &Meter{name: name, reg: reg}
}

// Name returns the meter's scope name.
func (m *Meter) Name() string { return m.name }

// Counter is a monotonic accumulator. Negative increments are rejected and
// counted, never applied.
type Counter struct {
	meter *Meter
	name  string
}

// Counter returns a counter instrument with the given name.
func (m *Meter) Counter(name string) *Counter {
	return &Counter{meter: m, name: name}
}

// Add accumulates v into the stream selected by the attribute set.
func (c *Counter) Add(_ context.Context, v float64, kvs ...attribute.KeyValue) {
	c.meter.reg.addCounter(c.meter.name, c.name, v, kvs)
}

// HistogramOption configures a histogram at creation.
type HistogramOption func(*histogramConfig)

type histogramConfig struct {
	bounds []float64
}

// WithBounds sets explicit bucket upper bounds. They are sorted and
// deduplicated; an empty list falls back to the defaults.
func WithBounds(bounds ...float64) HistogramOption {
	return func(c *histogramConfig) { c.bounds = bounds }
}

// Histogram records a distribution of values into fixed buckets.
type Histogram struct {
	meter  *Meter
	name   string
	bounds []float64
}

// Histogram returns a histogram instrument with the given name.
func (m *Meter) Histogram(name string, opts ...HistogramOption) *Histogram {
	var cfg histogramConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	bounds := cfg.bounds
	if len(bounds) == 0 {
		bounds = DefaultHistogramBounds
	}
	bounds = append([]float64(nil), bounds...)
	sort.Float64s(bounds)
	bounds = dedupe(bounds)
	return &Histogram{meter: m, name: name, bounds: bounds}
}

// Record adds one observation to the stream selected by the attribute set.
func (h *Histogram) Record(_ context.Context, v float64, kvs ...attribute.KeyValue) {
	h.meter.reg.recordHistogram(h.meter.name, h.name, h.bounds, v, kvs)
}

// Gauge tracks the latest value per stream.
type Gauge struct {
	meter *Meter
	name  string
}

// Gauge returns a gauge instrument with the given name.
func (m *Meter) Gauge(name string) *Gauge {
	return &Gauge{meter: m, name: name}
}

// Record replaces the stream's value with v.
func (g *Gauge) Record(_ context.Context, v float64, kvs ...attribute.KeyValue) {
	g.meter.reg.recordGauge(g.meter.name, g.name, v, kvs)
}

func dedupe(sorted []float64) []float64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
