// Package exporter defines the delivery contracts at the end of the
// pipeline and the error classification the retry loop keys on.
package exporter

import (
	"context"
	"errors"

	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

// Signal names one of the three telemetry kinds, used in logs, spill
// records, and endpoint routing.
type Signal string

const (
	SignalTraces  Signal = "traces"
	SignalMetrics Signal = "metrics"
	SignalLogs    Signal = "logs"
)

// Traces delivers finished span batches.
type Traces interface {
	ExportSpans(ctx context.Context, spans []*trace.Span) error
	Shutdown(ctx context.Context) error
}

// Metrics delivers collected metric point batches.
type Metrics interface {
	ExportMetrics(ctx context.Context, points []metric.Point) error
	Shutdown(ctx context.Context) error
}

// Logs delivers emitted log record batches.
type Logs interface {
	ExportLogs(ctx context.Context, records []*logs.Record) error
	Shutdown(ctx context.Context) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying: the same payload would be
// rejected again, as with an authentication failure or a malformed request.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err or anything it wraps was marked
// permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
