// Package pipestat tracks pipeline self-observation counters. Components
// receive the individual atomic counters as dependencies and increment them
// lock-free; the pipeline snapshots the whole set on demand.
package pipestat

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Counters holds every counter the pipeline maintains about itself.
type Counters struct {
	droppedSpans   *atomic.Int64
	droppedMetrics *atomic.Int64
	droppedLogs    *atomic.Int64

	filteredSignals   *atomic.Int64
	processorFaults   *atomic.Int64
	rejectedMeasures  *atomic.Int64
	exportedBatches   *atomic.Int64
	failedBatches     *atomic.Int64
	retriedExports    *atomic.Int64
	droppedOnShutdown *atomic.Int64
	spilledBatches    *atomic.Int64
	recoveredBatches  *atomic.Int64
}

// NewCounters returns a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{
		droppedSpans:      atomic.NewInt64(0),
		droppedMetrics:    atomic.NewInt64(0),
		droppedLogs:       atomic.NewInt64(0),
		filteredSignals:   atomic.NewInt64(0),
		processorFaults:   atomic.NewInt64(0),
		rejectedMeasures:  atomic.NewInt64(0),
		exportedBatches:   atomic.NewInt64(0),
		failedBatches:     atomic.NewInt64(0),
		retriedExports:    atomic.NewInt64(0),
		droppedOnShutdown: atomic.NewInt64(0),
		spilledBatches:    atomic.NewInt64(0),
		recoveredBatches:  atomic.NewInt64(0),
	}
}

// DroppedSpans counts spans discarded on buffer overflow or after close.
func (c *Counters) DroppedSpans() *atomic.Int64 { return c.droppedSpans }

// DroppedMetrics counts metric points discarded on buffer overflow or after close.
func (c *Counters) DroppedMetrics() *atomic.Int64 { return c.droppedMetrics }

// DroppedLogs counts log records discarded on buffer overflow or after close.
func (c *Counters) DroppedLogs() *atomic.Int64 { return c.droppedLogs }

// FilteredSignals counts signals vetoed by a processor.
func (c *Counters) FilteredSignals() *atomic.Int64 { return c.filteredSignals }

// ProcessorFaults counts processor panics absorbed by the chain.
func (c *Counters) ProcessorFaults() *atomic.Int64 { return c.processorFaults }

// RejectedMeasures counts measurements refused by instrument contracts.
func (c *Counters) RejectedMeasures() *atomic.Int64 { return c.rejectedMeasures }

// ExportedBatches counts batches acknowledged by the exporter.
func (c *Counters) ExportedBatches() *atomic.Int64 { return c.exportedBatches }

// FailedBatches counts batches dropped after the retry budget ran out.
func (c *Counters) FailedBatches() *atomic.Int64 { return c.failedBatches }

// RetriedExports counts individual export attempts beyond the first.
func (c *Counters) RetriedExports() *atomic.Int64 { return c.retriedExports }

// DroppedOnShutdown counts signals abandoned when the drain deadline passed.
func (c *Counters) DroppedOnShutdown() *atomic.Int64 { return c.droppedOnShutdown }

// SpilledBatches counts batches written to the spill store at shutdown.
func (c *Counters) SpilledBatches() *atomic.Int64 { return c.spilledBatches }

// RecoveredBatches counts spilled batches re-exported on a later start.
func (c *Counters) RecoveredBatches() *atomic.Int64 { return c.recoveredBatches }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	DroppedSpans      int64
	DroppedMetrics    int64
	DroppedLogs       int64
	FilteredSignals   int64
	ProcessorFaults   int64
	RejectedMeasures  int64
	ExportedBatches   int64
	FailedBatches     int64
	RetriedExports    int64
	DroppedOnShutdown int64
	SpilledBatches    int64
	RecoveredBatches  int64
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DroppedSpans:      c.droppedSpans.Load(),
		DroppedMetrics:    c.droppedMetrics.Load(),
		DroppedLogs:       c.droppedLogs.Load(),
		FilteredSignals:   c.filteredSignals.Load(),
		ProcessorFaults:   c.processorFaults.Load(),
		RejectedMeasures:  c.rejectedMeasures.Load(),
		ExportedBatches:   c.exportedBatches.Load(),
		FailedBatches:     c.failedBatches.Load(),
		RetriedExports:    c.retriedExports.Load(),
		DroppedOnShutdown: c.droppedOnShutdown.Load(),
		SpilledBatches:    c.spilledBatches.Load(),
		RecoveredBatches:  c.recoveredBatches.Load(),
	}
}

// LogSummary writes the full counter set, used once at shutdown.
func (c *Counters) LogSummary(logger *zap.Logger) {
	s := c.Snapshot()
	logger.Info("pipeline counters",
		zap.Int64("dropped_spans", s.DroppedSpans),
		zap.Int64("dropped_metrics", s.DroppedMetrics),
		zap.Int64("dropped_logs", s.DroppedLogs),
		zap.Int64("filtered_signals", s.FilteredSignals),
		zap.Int64("processor_faults", s.ProcessorFaults),
		zap.Int64("rejected_measures", s.RejectedMeasures),
		zap.Int64("exported_batches", s.ExportedBatches),
		zap.Int64("failed_batches", s.FailedBatches),
		zap.Int64("retried_exports", s.RetriedExports),
		zap.Int64("dropped_on_shutdown", s.DroppedOnShutdown),
		zap.Int64("spilled_batches", s.SpilledBatches),
		zap.Int64("recovered_batches", s.RecoveredBatches),
	)
}
