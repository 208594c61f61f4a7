// Package metric provides the instrument half of the pipeline API: counters,
// histograms, and gauges whose measurements are aggregated in memory and
// snapshotted into Points on a fixed collection interval.
package metric

import (
	"time"

	"github.com/deepaksharma/signalpipe/attribute"
)

// Kind discriminates the aggregation a Point carries.
type Kind int

const (
	KindCounter Kind = iota
	KindHistogram
	KindGauge
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindHistogram:
		return "histogram"
	case KindGauge:
		return "gauge"
	default:
		return "unknown"
	}
}

// Point is one aggregated metric stream snapshot. Counter and gauge points
// use Value; histogram points use Bounds, BucketCounts, Count, Sum, Min and
// Max. Counters and histograms report cumulative totals since Start.
type Point struct {
	Meter      string
	Instrument string
	Kind       Kind
	Attributes *attribute.Set
	Start      time.Time
	Time       time.Time

	Value float64

	Bounds       []float64
	BucketCounts []uint64
	Count        uint64
	Sum          float64
	Min          float64
	Max          float64
	HasMinMax    bool
}
