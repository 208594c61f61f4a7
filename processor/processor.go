// Package processor holds the in-pipeline transform stages that run on
// every signal between the producer API and the export buffer: redaction,
// truncation, enrichment, and operation exclusion, composed into a Chain.
package processor

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

// Processor transforms one signal in place. Returning false vetoes the
// signal: it is filtered out and never buffered. Implementations must be
// safe for concurrent use; the pipeline runs them from producer goroutines.
type Processor interface {
	Name() string
	ProcessSpan(s *trace.Span) bool
	ProcessMetric(p *metric.Point) bool
	ProcessLog(r *logs.Record) bool
}

// Chain runs processors in order. A panicking processor is skipped, logged,
// and counted; the signal continues down the chain rather than being lost
// to an instrumentation bug.
type Chain struct {
	procs  []Processor
	faults *atomic.Int64
	logger *zap.Logger
}

// NewChain builds a chain. faults counts processor panics; pass nil to keep
// a private counter.
func NewChain(logger *zap.Logger, faults *atomic.Int64, procs ...Processor) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if faults == nil {
		faults = atomic.NewInt64(0)
	}
	return &Chain{procs: procs, faults: faults, logger: logger}
}

// Len returns the number of processors in the chain.
func (c *Chain) Len() int { return len(c.procs) }

// Faults returns how many processor panics were absorbed so far.
func (c *Chain) Faults() int64 { return c.faults.Load() }

// Span runs the chain over a finished span. False means the span was
// vetoed and must not be buffered.
func (c *Chain) Span(s *trace.Span) bool {
	for _, p := range c.procs {
		if !c.run(p, func() bool { return p.ProcessSpan(s) }) {
			return false
		}
	}
	return true
}

// Metric runs the chain over a collected point.
func (c *Chain) Metric(pt *metric.Point) bool {
	for _, p := range c.procs {
		if !c.run(p, func() bool { return p.ProcessMetric(pt) }) {
			return false
		}
	}
	return true
}

// Log runs the chain over an emitted record.
func (c *Chain) Log(r *logs.Record) bool {
	for _, p := range c.procs {
		if !c.run(p, func() bool { return p.ProcessLog(r) }) {
			return false
		}
	}
	return true
}

func (c *Chain) run(p Processor, f func() bool) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			c.faults.Inc()
			c.logger.Warn("processor panicked, passing signal through",
				zap.String("processor", p.Name()),
				zap.Any("panic", r))
			keep = true
		}
	}()
	return f()
}
