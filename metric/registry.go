package metric

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"

	"github.com/deepaksharma/signalpipe/attribute"
)

// DefaultHistogramBounds are the bucket upper bounds used when a histogram
// is created without explicit ones.
var DefaultHistogramBounds = []float64{0, 5, 10, 25, 50, 75, 100, 250, 500, 750, 1000, 2500, 5000, 7500, 10000}

// Registry aggregates measurements into cumulative streams. One stream
// exists per (meter, instrument, kind, attribute set); Collect snapshots
// every known stream without resetting it.
type Registry struct {
	mu      sync.Mutex
	series  map[uint64]*series
	rejects *atomic.Int64
}

type series struct {
	meter      string
	instrument string
	kind       Kind
	attrs      *attribute.Set
	start      time.Time

	sum float64 // counter running total, gauge last value

	bounds    []float64
	counts    []uint64
	count     uint64
	histSum   float64
	min, max  float64
	hasMinMax bool

	updated time.Time
}

// NewRegistry returns an empty registry. rejects counts measurements that
// violate instrument contracts, such as negative counter increments; pass
// nil to keep a private counter.
func NewRegistry(rejects *atomic.Int64) *Registry {
	if rejects == nil {
		rejects = atomic.NewInt64(0)
	}
	return &Registry{
		series:  make(map[uint64]*series),
		rejects: rejects,
	}
}

// Rejected returns how many measurements were refused so far.
func (r *Registry) Rejected() int64 { return r.rejects.Load() }

// seriesKey hashes the full stream identity. Attributes are encoded in key
// order after sorting, so insertion order does not split streams.
func seriesKey(meter, instrument string, kind Kind, attrs []attribute.KeyValue) uint64 {
	sorted := make([]attribute.KeyValue, len(attrs))
	copy(sorted, attrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	h := xxhash.New()
	_, _ = h.WriteString(meter)
	_, _ = h.Write([]byte{0, byte(kind), 0})
	_, _ = h.WriteString(instrument)
	for _, kv := range sorted {
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(kv.Key)
		_, _ = h.Write([]byte{0, byte(kv.Value.Kind()), 0})
		_, _ = h.WriteString(kv.Value.AsString())
	}
	return h.Sum64()
}

func (r *Registry) get(meter, instrument string, kind Kind, bounds []float64, attrs []attribute.KeyValue) *series {
	key := seriesKey(meter, instrument, kind, attrs)
	s, ok := r.series[key]
	if !ok {
		set := &attribute.Set{}
		set.PutAll(attrs...)
		s = &series{
			meter:      meter,
			instrument: instrument,
			kind:       kind,
			attrs:      set,
			start:      time.Now(),
		}
		if kind == KindHistogram {
			s.bounds = bounds
			s.counts = make([]uint64, len(bounds)+1)
		}
		r.series[key] = s
	}
	return s
}

func (r *Registry) addCounter(meter, instrument string, v float64, attrs []attribute.KeyValue) {
	if v < 0 {
		r.rejects.Inc()
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(meter, instrument, KindCounter, nil, attrs)
	s.sum += v
	s.updated = time.Now()
}

func (r *Registry) recordHistogram(meter, instrument string, bounds []float64, v float64, attrs []attribute.KeyValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(meter, instrument, KindHistogram, bounds, attrs)
	// Buckets use upper-inclusive bounds: bucket i counts v <= bounds[i],
	// the final bucket counts everything above the last bound.
	idx := sort.SearchFloat64s(s.bounds, v)
	s.counts[idx]++
	s.count++
	s.histSum += v
	if !s.hasMinMax || v < s.min {
		s.min = v
	}
	if !s.hasMinMax || v > s.max {
		s.max = v
	}
	s.hasMinMax = true
	s.updated = time.Now()
}

func (r *Registry) recordGauge(meter, instrument string, v float64, attrs []attribute.KeyValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(meter, instrument, KindGauge, nil, attrs)
	s.sum = v
	s.updated = time.Now()
}

// Collect snapshots every stream into Points stamped with now. Cumulative
// state is kept, not reset, so successive collections report running totals.
// Attribute sets and bucket slices are copied; callers may mutate the
// returned points freely.
func (r *Registry) Collect(now time.Time) []Point {
	r.mu.Lock()
	defer r.mu.Unlock()

	points := make([]Point, 0, len(r.series))
	for _, s := range r.series {
		p := Point{
			Meter:      s.meter,
			Instrument: s.instrument,
			Kind:       s.kind,
			Attributes: s.attrs.Clone(),
			Start:      s.start,
			Time:       now,
		}
		switch s.kind {
		case KindCounter, KindGauge:
			p.Value = s.sum
		case KindHistogram:
			p.Bounds = append([]float64(nil), s.bounds...)
			p.BucketCounts = append([]uint64(nil), s.counts...)
			p.Count = s.count
			p.Sum = s.histSum
			p.Min = s.min
			p.Max = s.max
			p.HasMinMax = s.hasMinMax
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Meter != points[j].Meter {
			return points[i].Meter < points[j].Meter
		}
		if points[i].Instrument != points[j].Instrument {
			return points[i].Instrument < points[j].Instrument
		}
		return points[i].Attributes.Len() < points[j].Attributes.Len()
	})
	return points
}

// Len returns the number of live streams, mostly for tests and stats.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}
